// Package storage declares the persistence boundary for the movie club
// lifecycle: member, movie, vetting-response, and vote records plus the
// typed process state. Implementations live in subpackages.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// Phase identifies the club-wide cycle phase.
type Phase string

const (
	// PhaseSubmission means members are proposing movies for the next batch.
	PhaseSubmission Phase = "SUBMISSION"
	// PhaseActive means a scheduled batch is running week by week.
	PhaseActive Phase = "ACTIVE"
)

// Valid reports whether the phase is a known value.
func (p Phase) Valid() bool {
	return p == PhaseSubmission || p == PhaseActive
}

// Status identifies one movie lifecycle state.
type Status string

const (
	// StatusProposed means the movie waits in the batch or for its week.
	StatusProposed Status = "PROPOSED"
	// StatusVetting means the movie is being screened for prior exposure.
	StatusVetting Status = "VETTING"
	// StatusWatching means the movie passed vetting and is being watched.
	StatusWatching Status = "WATCHING"
	// StatusRejected means a member had already seen the movie. Terminal,
	// but the owner's slot reopens for a replacement in the same week.
	StatusRejected Status = "REJECTED"
	// StatusCompleted means every member scored the movie. Terminal.
	StatusCompleted Status = "COMPLETED"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusProposed, StatusVetting, StatusWatching, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether the status ends a movie's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// StateRecord is the persisted process state read and written as one unit.
type StateRecord struct {
	Phase Phase
	Week  int
}

// MemberRecord stores one club member.
type MemberRecord struct {
	ID        string
	Name      string
	PIN       string
	CreatedAt time.Time
}

// MovieRecord stores one proposed movie and its lifecycle position.
// WeekNumber is zero until scheduling assigns a slot; VettingStartAt is nil
// until scheduling assigns a start date.
type MovieRecord struct {
	ID             string
	Title          string
	Description    string
	Year           int
	CoverURL       string
	ProposedBy     string
	Status         Status
	WeekNumber     int
	VettingStartAt *time.Time
	CreatedAt      time.Time
}

// VettingResponseRecord stores one member's NOT_SEEN acknowledgment for a
// movie. Unique per (movie, member).
type VettingResponseRecord struct {
	ID        string
	MovieID   string
	MemberID  string
	CreatedAt time.Time
}

// VoteRecord stores one member's score for a movie. Unique per
// (movie, member); a re-vote updates the row in place.
type VoteRecord struct {
	ID        string
	MovieID   string
	MemberID  string
	Score     int
	Comment   string
	CreatedAt time.Time
}

// PushSubscriptionRecord stores one Web Push subscription for a member.
type PushSubscriptionRecord struct {
	ID        string
	MemberID  string
	Endpoint  string
	P256dh    string
	Auth      string
	CreatedAt time.Time
}

// ScheduleAssignment pins one movie to a weekly slot during batch scheduling.
type ScheduleAssignment struct {
	MovieID        string
	WeekNumber     int
	VettingStartAt time.Time
	Status         Status
}

// StateStore reads and writes the typed process state.
type StateStore interface {
	// LoadState returns the persisted state, defaulting to
	// {SUBMISSION, 0} when nothing was stored yet.
	LoadState(ctx context.Context) (StateRecord, error)
	SaveState(ctx context.Context, state StateRecord) error
}

// MemberStore persists club members.
type MemberStore interface {
	PutMember(ctx context.Context, record MemberRecord) error
	GetMember(ctx context.Context, id string) (MemberRecord, error)
	GetMemberByName(ctx context.Context, name string) (MemberRecord, error)
	ListMembers(ctx context.Context) ([]MemberRecord, error)
	CountMembers(ctx context.Context) (int, error)
}

// MovieStore persists movies and their lifecycle transitions.
type MovieStore interface {
	PutMovie(ctx context.Context, record MovieRecord) error
	// PutMovieWithState atomically inserts a movie and saves process state.
	// Used by the replacement path so a rejected slot cannot be half-filled.
	PutMovieWithState(ctx context.Context, record MovieRecord, state StateRecord) error
	UpdateMovieDetails(ctx context.Context, id, title, description, coverURL string, year int) error
	GetMovie(ctx context.Context, id string) (MovieRecord, error)
	// GetActiveMovieByProposer returns the proposer's movie in a
	// non-terminal status, enforcing reads for the one-slot invariant.
	GetActiveMovieByProposer(ctx context.Context, memberID string) (MovieRecord, error)
	GetRejectedMovieByProposer(ctx context.Context, memberID string, week int) (MovieRecord, error)
	// GetVettingMovie returns the vetting movie with the lowest week number.
	GetVettingMovie(ctx context.Context) (MovieRecord, error)
	GetMovieByStatusAndWeek(ctx context.Context, status Status, week int) (MovieRecord, error)
	ListMoviesByStatus(ctx context.Context, status Status) ([]MovieRecord, error)
	// ListWatchingMoviesThroughWeek returns WATCHING movies with week
	// numbers up to and including week, oldest week first.
	ListWatchingMoviesThroughWeek(ctx context.Context, week int) ([]MovieRecord, error)
	// NextDueProposedMovie returns the earliest-week PROPOSED movie whose
	// vetting start date is at or before now.
	NextDueProposedMovie(ctx context.Context, now time.Time) (MovieRecord, error)
	// NextScheduledProposedMovie returns the earliest-week PROPOSED movie
	// with an assigned slot regardless of its start date.
	NextScheduledProposedMovie(ctx context.Context) (MovieRecord, error)
	// HighestDueWeek returns the largest week number among non-terminal
	// movies whose vetting start date is at or before now, or zero.
	HighestDueWeek(ctx context.Context, now time.Time) (int, error)
	CountMoviesByStatus(ctx context.Context, statuses ...Status) (int, error)
	// SetMovieStatus transitions id from one status to another and reports
	// whether the row changed. The conditional write is what keeps
	// concurrent quorum hits from promoting twice.
	SetMovieStatus(ctx context.Context, id string, from, to Status) (bool, error)
	// ApplySchedule atomically writes a full batch schedule plus the new
	// process state.
	ApplySchedule(ctx context.Context, assignments []ScheduleAssignment, state StateRecord) error
}

// VettingStore persists NOT_SEEN acknowledgments.
type VettingStore interface {
	// AddVettingResponse inserts the response if absent and reports whether
	// a row was created. Duplicates are a no-op, enforced by the store's
	// unique index rather than a check made by the caller.
	AddVettingResponse(ctx context.Context, record VettingResponseRecord) (bool, error)
	CountVettingResponses(ctx context.Context, movieID string) (int, error)
	ListVettingResponseMemberIDs(ctx context.Context, movieID string) ([]string, error)
}

// VoteStore persists scores.
type VoteStore interface {
	UpsertVote(ctx context.Context, record VoteRecord) error
	CountVotes(ctx context.Context, movieID string) (int, error)
	ListVotes(ctx context.Context, movieID string) ([]VoteRecord, error)
	ListVoteMemberIDs(ctx context.Context, movieID string) ([]string, error)
}

// PushSubscriptionStore persists Web Push subscriptions.
type PushSubscriptionStore interface {
	PutPushSubscription(ctx context.Context, record PushSubscriptionRecord) error
	ListPushSubscriptionsByMember(ctx context.Context, memberID string) ([]PushSubscriptionRecord, error)
	ListPushSubscriptions(ctx context.Context) ([]PushSubscriptionRecord, error)
	DeletePushSubscription(ctx context.Context, id string) error
}

// Store is the full persistence surface the domain service depends on.
type Store interface {
	StateStore
	MemberStore
	MovieStore
	VettingStore
	VoteStore
}
