package domain

import (
	"context"
	"errors"
	"time"

	"github.com/torresgol10/movie-club/internal/club/storage"
)

// voteReminderAge is how long a movie must have been watchable before vote
// reminders go out.
const voteReminderAge = 48 * time.Hour

// TransitionResult reports what one weekly transition run changed.
type TransitionResult struct {
	Phase           storage.Phase
	PreviousWeek    int
	CurrentWeek     int
	PromotedMovieID string
}

// RunWeeklyTransition is the sole writer of week advancement. It is meant
// to be invoked by an external periodic trigger, is idempotent, and never
// moves the week backwards. When a scheduled movie's vetting start date has
// arrived, the movie is promoted to VETTING and the phase returns to
// ACTIVE.
func (s *Service) RunWeeklyTransition(ctx context.Context) (TransitionResult, error) {
	if s == nil || s.store == nil {
		return TransitionResult{}, ErrStoreNotConfigured
	}
	now := s.clock()

	state, err := s.store.LoadState(ctx)
	if err != nil {
		return TransitionResult{}, err
	}
	result := TransitionResult{
		Phase:        state.Phase,
		PreviousWeek: state.Week,
		CurrentWeek:  state.Week,
	}

	highest, err := s.store.HighestDueWeek(ctx, now)
	if err != nil {
		return TransitionResult{}, err
	}
	if highest > result.CurrentWeek {
		result.CurrentWeek = highest
	}

	due, err := s.store.NextDueProposedMovie(ctx, now)
	switch {
	case err == nil:
		changed, err := s.store.SetMovieStatus(ctx, due.ID, storage.StatusProposed, storage.StatusVetting)
		if err != nil {
			return TransitionResult{}, err
		}
		if changed {
			result.PromotedMovieID = due.ID
			result.Phase = storage.PhaseActive
			s.notify(ctx, "new vetting movie", func(ctx context.Context) error {
				return s.notifier.NewVettingMovie(ctx, due.Title)
			})
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return TransitionResult{}, err
	}

	if result.CurrentWeek != state.Week || result.Phase != state.Phase {
		if err := s.store.SaveState(ctx, storage.StateRecord{Phase: result.Phase, Week: result.CurrentWeek}); err != nil {
			return TransitionResult{}, err
		}
	}
	return result, nil
}

// ReminderResult counts the reminders sent in one run.
type ReminderResult struct {
	VettingReminders int
	VoteReminders    int
}

// SendReminders nudges members that are holding up the current week: first
// anyone who has not answered the vetting question, then anyone who has
// not scored a movie that has been watchable for two days or more.
func (s *Service) SendReminders(ctx context.Context) (ReminderResult, error) {
	if s == nil || s.store == nil {
		return ReminderResult{}, ErrStoreNotConfigured
	}
	var result ReminderResult
	now := s.clock()

	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return ReminderResult{}, err
	}
	if len(members) == 0 {
		return result, nil
	}

	vetting, err := s.store.GetVettingMovie(ctx)
	switch {
	case err == nil:
		pending, err := s.PendingVetting(ctx, vetting.ID)
		if err != nil {
			return ReminderResult{}, err
		}
		if len(pending) > 0 {
			ids := make([]string, len(pending))
			for i, member := range pending {
				ids[i] = member.ID
			}
			s.notify(ctx, "pending vetting", func(ctx context.Context) error {
				return s.notifier.PendingVetting(ctx, ids, vetting.Title)
			})
			result.VettingReminders = len(pending)
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return ReminderResult{}, err
	}

	state, err := s.store.LoadState(ctx)
	if err != nil {
		return ReminderResult{}, err
	}
	watching, err := s.store.ListWatchingMoviesThroughWeek(ctx, state.Week)
	if err != nil {
		return ReminderResult{}, err
	}
	for _, movie := range watching {
		responses, err := s.store.CountVettingResponses(ctx, movie.ID)
		if err != nil {
			return ReminderResult{}, err
		}
		if responses < len(members) {
			// Voting has not opened yet.
			continue
		}
		// The vetting start date approximates when the movie became
		// watchable; recent movies are left alone.
		if movie.VettingStartAt != nil && now.Sub(*movie.VettingStartAt) < voteReminderAge {
			continue
		}
		pending, err := s.PendingVotersForMovie(ctx, movie.ID)
		if err != nil {
			return ReminderResult{}, err
		}
		if len(pending) == 0 {
			continue
		}
		ids := make([]string, len(pending))
		for i, member := range pending {
			ids[i] = member.ID
		}
		title := movie.Title
		s.notify(ctx, "pending votes", func(ctx context.Context) error {
			return s.notifier.PendingVotes(ctx, ids, title)
		})
		result.VoteReminders += len(pending)
	}
	return result, nil
}
