package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/torresgol10/movie-club/internal/club/storage"
)

// WatchingMovies returns movies open for watching in the current week or
// any past week. Future weeks stay hidden.
func (s *Service) WatchingMovies(ctx context.Context) ([]storage.MovieRecord, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	state, err := s.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListWatchingMoviesThroughWeek(ctx, state.Week)
}

// PendingVotesForMember lists watchable movies the member has not scored
// yet. Movies still short of vetting quorum are excluded because voting on
// them is not open.
func (s *Service) PendingVotesForMember(ctx context.Context, memberID string) ([]storage.MovieRecord, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	memberID = strings.TrimSpace(memberID)
	movies, err := s.WatchingMovies(ctx)
	if err != nil {
		return nil, err
	}
	members, err := s.store.CountMembers(ctx)
	if err != nil {
		return nil, err
	}

	var pending []storage.MovieRecord
	for _, movie := range movies {
		responses, err := s.store.CountVettingResponses(ctx, movie.ID)
		if err != nil {
			return nil, err
		}
		if members == 0 || responses < members {
			continue
		}
		voted, err := s.store.ListVoteMemberIDs(ctx, movie.ID)
		if err != nil {
			return nil, err
		}
		if _, ok := memberIDSet(voted)[memberID]; ok {
			continue
		}
		pending = append(pending, movie)
	}
	return pending, nil
}

// PendingVotersForMovie lists members that have not scored the movie yet.
func (s *Service) PendingVotersForMovie(ctx context.Context, movieID string) ([]storage.MemberRecord, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	voted, err := s.store.ListVoteMemberIDs(ctx, movieID)
	if err != nil {
		return nil, err
	}
	seen := memberIDSet(voted)
	var pending []storage.MemberRecord
	for _, member := range members {
		if _, ok := seen[member.ID]; !ok {
			pending = append(pending, member)
		}
	}
	return pending, nil
}

// SubmitVoteInput describes one score submission.
type SubmitVoteInput struct {
	MemberID string
	MovieID  string
	Score    int
	Comment  string
}

// SubmitVote records a member's score for a watchable movie. A second vote
// by the same member updates the score in place. When the last member
// votes, the movie completes, the average is announced, and the next
// scheduled movie may be promoted.
func (s *Service) SubmitVote(ctx context.Context, input SubmitVoteInput) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	if input.Score < 0 || input.Score > 10 {
		return ErrInvalidScore
	}
	if err := s.requireMember(ctx, input.MemberID); err != nil {
		return err
	}

	movie, err := s.store.GetMovie(ctx, strings.TrimSpace(input.MovieID))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrMovieNotAvailable
	}
	if err != nil {
		return err
	}
	state, err := s.store.LoadState(ctx)
	if err != nil {
		return err
	}
	// Late voters may finish past weeks; future weeks are not open yet.
	if movie.Status != storage.StatusWatching || movie.WeekNumber > state.Week {
		return ErrMovieNotAvailable
	}

	members, err := s.store.CountMembers(ctx)
	if err != nil {
		return err
	}
	responses, err := s.store.CountVettingResponses(ctx, movie.ID)
	if err != nil {
		return err
	}
	if members == 0 || responses < members {
		return ErrVettingIncomplete
	}

	voteID, err := s.newID()
	if err != nil {
		return err
	}
	if err := s.store.UpsertVote(ctx, storage.VoteRecord{
		ID:        voteID,
		MovieID:   movie.ID,
		MemberID:  strings.TrimSpace(input.MemberID),
		Score:     input.Score,
		Comment:   strings.TrimSpace(input.Comment),
		CreatedAt: s.clock(),
	}); err != nil {
		return err
	}

	votes, err := s.store.CountVotes(ctx, movie.ID)
	if err != nil {
		return err
	}
	if votes < members {
		return nil
	}
	return s.completeMovie(ctx, movie, state.Week)
}

// completeMovie closes a fully-voted movie. The conditional update makes
// sure only one of the racing quorum voters runs the completion side
// effects.
func (s *Service) completeMovie(ctx context.Context, movie storage.MovieRecord, currentWeek int) error {
	changed, err := s.store.SetMovieStatus(ctx, movie.ID, storage.StatusWatching, storage.StatusCompleted)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	votes, err := s.store.ListVotes(ctx, movie.ID)
	if err != nil {
		return err
	}
	avg := averageScore(votes)
	s.notify(ctx, "movie completed", func(ctx context.Context) error {
		return s.notifier.MovieCompleted(ctx, movie.Title, avg)
	})

	if err := s.promoteNext(ctx, currentWeek); err != nil {
		return err
	}

	remaining, err := s.store.CountMoviesByStatus(ctx,
		storage.StatusProposed, storage.StatusVetting, storage.StatusWatching)
	if err != nil {
		return err
	}
	if remaining == 0 {
		return s.store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseSubmission, Week: 0})
	}
	return nil
}

// promoteNext opens the next scheduled movie for vetting. A movie whose
// start date has arrived advances the stored week to its slot; when no
// dated movie is due, the next proposed movie is promoted early without
// moving the week, so the cycle never stalls waiting on the calendar.
func (s *Service) promoteNext(ctx context.Context, currentWeek int) error {
	now := s.clock()
	due, err := s.store.NextDueProposedMovie(ctx, now)
	switch {
	case err == nil:
		changed, err := s.store.SetMovieStatus(ctx, due.ID, storage.StatusProposed, storage.StatusVetting)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if due.WeekNumber > currentWeek {
			if err := s.store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseActive, Week: due.WeekNumber}); err != nil {
				return err
			}
		}
		s.notify(ctx, "new vetting movie", func(ctx context.Context) error {
			return s.notifier.NewVettingMovie(ctx, due.Title)
		})
		return nil
	case errors.Is(err, storage.ErrNotFound):
	default:
		return err
	}

	next, err := s.store.NextScheduledProposedMovie(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	changed, err := s.store.SetMovieStatus(ctx, next.ID, storage.StatusProposed, storage.StatusVetting)
	if err != nil {
		return err
	}
	if changed {
		s.notify(ctx, "new vetting movie", func(ctx context.Context) error {
			return s.notifier.NewVettingMovie(ctx, next.Title)
		})
	}
	return nil
}
