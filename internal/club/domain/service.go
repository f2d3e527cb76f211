// Package domain implements the weekly movie-club lifecycle: proposal
// submission, batch scheduling, vetting, voting, and the scheduled weekly
// transition. All state lives in the store; every operation re-reads what
// it needs instead of holding snapshots across calls.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/torresgol10/movie-club/internal/club/storage"
	"github.com/torresgol10/movie-club/internal/platform/id"
)

// State is the resolved phase and week pair.
type State struct {
	Phase storage.Phase
	Week  int
}

// Service orchestrates the club lifecycle on top of the store.
type Service struct {
	store    storage.Store
	notifier Notifier
	clock    func() time.Time
	newID    func() (string, error)
	shuffle  func(n int, swap func(i, j int))
}

// NewService constructs the lifecycle service. A nil notifier disables
// notifications; nil clock, id, and shuffle dependencies fall back to
// production defaults.
func NewService(store storage.Store, notifier Notifier, clock func() time.Time, newID func() (string, error), shuffle func(n int, swap func(i, j int))) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	if shuffle == nil {
		shuffle = seededShuffle
	}
	return &Service{
		store:    store,
		notifier: notifier,
		clock:    clock,
		newID:    newID,
		shuffle:  shuffle,
	}
}

// AppState returns the persisted phase and week. It is a pure read; week
// advancement happens only in RunWeeklyTransition.
func (s *Service) AppState(ctx context.Context) (State, error) {
	if s == nil || s.store == nil {
		return State{}, ErrStoreNotConfigured
	}
	state, err := s.store.LoadState(ctx)
	if err != nil {
		return State{}, err
	}
	return State{Phase: state.Phase, Week: state.Week}, nil
}

// SubmitMovieInput describes one proposal submission.
type SubmitMovieInput struct {
	MemberID    string
	Title       string
	Description string
	Year        int
	CoverURL    string
}

// SubmitMovie records a member's proposal. During SUBMISSION a member's
// existing proposal is updated in place; once every member has proposed,
// the batch is scheduled. A member whose movie was rejected this week
// submits a replacement that goes straight into vetting.
func (s *Service) SubmitMovie(ctx context.Context, input SubmitMovieInput) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	memberID := strings.TrimSpace(input.MemberID)
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return ErrTitleRequired
	}
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrMemberNotFound
		}
		return err
	}

	state, err := s.store.LoadState(ctx)
	if err != nil {
		return err
	}
	if state.Phase != storage.PhaseSubmission {
		return ErrInvalidPhase
	}

	if state.Week > 0 {
		rejected, err := s.store.GetRejectedMovieByProposer(ctx, memberID, state.Week)
		switch {
		case err == nil:
			return s.submitReplacement(ctx, input, memberID, title, state, rejected)
		case errors.Is(err, storage.ErrNotFound):
		default:
			return err
		}
	}

	existing, err := s.store.GetActiveMovieByProposer(ctx, memberID)
	switch {
	case err == nil:
		if existing.Status != storage.StatusProposed {
			return ErrSlotConflict
		}
		if err := s.store.UpdateMovieDetails(ctx, existing.ID, title, strings.TrimSpace(input.Description), strings.TrimSpace(input.CoverURL), input.Year); err != nil {
			return err
		}
	case errors.Is(err, storage.ErrNotFound):
		movieID, idErr := s.newID()
		if idErr != nil {
			return idErr
		}
		movie := storage.MovieRecord{
			ID:          movieID,
			Title:       title,
			Description: strings.TrimSpace(input.Description),
			Year:        input.Year,
			CoverURL:    strings.TrimSpace(input.CoverURL),
			ProposedBy:  memberID,
			Status:      storage.StatusProposed,
			CreatedAt:   s.clock(),
		}
		if err := s.store.PutMovie(ctx, movie); err != nil {
			return err
		}
	default:
		return err
	}

	members, err := s.store.CountMembers(ctx)
	if err != nil {
		return err
	}
	proposed, err := s.store.CountMoviesByStatus(ctx, storage.StatusProposed)
	if err != nil {
		return err
	}
	if members > 0 && proposed >= members {
		return s.scheduleBatch(ctx)
	}
	return nil
}

// submitReplacement fills a rejected weekly slot with a new movie that goes
// straight into vetting, reactivating the cycle.
func (s *Service) submitReplacement(ctx context.Context, input SubmitMovieInput, memberID, title string, state storage.StateRecord, rejected storage.MovieRecord) error {
	_, err := s.store.GetMovieByStatusAndWeek(ctx, storage.StatusVetting, state.Week)
	switch {
	case err == nil:
		return ErrSlotConflict
	case errors.Is(err, storage.ErrNotFound):
	default:
		return err
	}

	movieID, err := s.newID()
	if err != nil {
		return err
	}
	now := s.clock()
	movie := storage.MovieRecord{
		ID:             movieID,
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Year:           input.Year,
		CoverURL:       strings.TrimSpace(input.CoverURL),
		ProposedBy:     memberID,
		Status:         storage.StatusVetting,
		WeekNumber:     rejected.WeekNumber,
		VettingStartAt: &now,
		CreatedAt:      now,
	}
	newState := storage.StateRecord{Phase: storage.PhaseActive, Week: state.Week}
	if err := s.store.PutMovieWithState(ctx, movie, newState); err != nil {
		return err
	}
	s.notify(ctx, "new vetting movie", func(ctx context.Context) error {
		return s.notifier.NewVettingMovie(ctx, title)
	})
	return nil
}

// scheduleBatch shuffles the completed batch into weekly slots. The first
// slot opens immediately; the rest keep PROPOSED status with future vetting
// start dates.
func (s *Service) scheduleBatch(ctx context.Context) error {
	proposals, err := s.store.ListMoviesByStatus(ctx, storage.StatusProposed)
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		return nil
	}

	s.shuffle(len(proposals), func(i, j int) {
		proposals[i], proposals[j] = proposals[j], proposals[i]
	})

	anchor := nextVettingAnchor(s.clock())
	assignments := make([]storage.ScheduleAssignment, len(proposals))
	for i, movie := range proposals {
		status := storage.StatusProposed
		if i == 0 {
			status = storage.StatusVetting
		}
		assignments[i] = storage.ScheduleAssignment{
			MovieID:        movie.ID,
			WeekNumber:     i + 1,
			VettingStartAt: anchor.Add(time.Duration(i) * 7 * 24 * time.Hour),
			Status:         status,
		}
	}

	state := storage.StateRecord{Phase: storage.PhaseActive, Week: 1}
	if err := s.store.ApplySchedule(ctx, assignments, state); err != nil {
		return err
	}

	first := proposals[0].Title
	s.notify(ctx, "new vetting movie", func(ctx context.Context) error {
		return s.notifier.NewVettingMovie(ctx, first)
	})
	return nil
}

// notify runs one best-effort notification. Failures are logged, never
// propagated: push delivery is not essential to state correctness.
func (s *Service) notify(ctx context.Context, what string, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		log.Printf("notify %s: %v", what, err)
	}
}

func averageScore(votes []storage.VoteRecord) float64 {
	if len(votes) == 0 {
		return 0
	}
	total := 0
	for _, vote := range votes {
		total += vote.Score
	}
	return float64(total) / float64(len(votes))
}

func memberIDSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s *Service) requireMember(ctx context.Context, memberID string) error {
	_, err := s.store.GetMember(ctx, strings.TrimSpace(memberID))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("load member: %w", err)
	}
	return nil
}
