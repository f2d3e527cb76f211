package domain

import "context"

// Notifier is the push-notification sink consumed by the lifecycle service.
// Deliveries are best effort: the service logs failures and never lets them
// abort the triggering operation.
type Notifier interface {
	// NewVettingMovie announces a movie entering vetting to every member.
	NewVettingMovie(ctx context.Context, title string) error
	// PendingVetting reminds specific members to answer the vetting question.
	PendingVetting(ctx context.Context, memberIDs []string, title string) error
	// PendingVotes reminds specific members to score a watched movie.
	PendingVotes(ctx context.Context, memberIDs []string, title string) error
	// MovieCompleted announces the final average score to every member.
	MovieCompleted(ctx context.Context, title string, averageScore float64) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) NewVettingMovie(context.Context, string) error          { return nil }
func (NopNotifier) PendingVetting(context.Context, []string, string) error { return nil }
func (NopNotifier) PendingVotes(context.Context, []string, string) error   { return nil }
func (NopNotifier) MovieCompleted(context.Context, string, float64) error  { return nil }
