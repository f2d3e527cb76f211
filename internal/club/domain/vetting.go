package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/torresgol10/movie-club/internal/club/storage"
)

// VettingMovie returns the movie currently open for vetting.
func (s *Service) VettingMovie(ctx context.Context) (storage.MovieRecord, error) {
	if s == nil || s.store == nil {
		return storage.MovieRecord{}, ErrStoreNotConfigured
	}
	movie, err := s.store.GetVettingMovie(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.MovieRecord{}, ErrNoVettingMovie
	}
	if err != nil {
		return storage.MovieRecord{}, err
	}
	return movie, nil
}

// PendingVetting lists members that have not acknowledged the movie yet.
func (s *Service) PendingVetting(ctx context.Context, movieID string) ([]storage.MemberRecord, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	responded, err := s.store.ListVettingResponseMemberIDs(ctx, movieID)
	if err != nil {
		return nil, err
	}
	seen := memberIDSet(responded)
	var pending []storage.MemberRecord
	for _, member := range members {
		if _, ok := seen[member.ID]; !ok {
			pending = append(pending, member)
		}
	}
	return pending, nil
}

// SubmitVetting records one member's answer for the current vetting movie.
//
// seen=true is a one-shot veto: the movie is rejected immediately, no
// quorum required. seen=false records a NOT_SEEN acknowledgment; when every
// member has acknowledged, the movie is promoted to WATCHING. Both
// transitions go through a conditional status update so concurrent calls
// promote at most once.
func (s *Service) SubmitVetting(ctx context.Context, memberID string, seen bool) error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	if err := s.requireMember(ctx, memberID); err != nil {
		return err
	}

	movie, err := s.store.GetVettingMovie(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoVettingMovie
	}
	if err != nil {
		return err
	}

	if seen {
		return s.rejectMovie(ctx, movie)
	}

	responseID, err := s.newID()
	if err != nil {
		return err
	}
	// Duplicate acknowledgments hit the unique index and insert nothing.
	if _, err := s.store.AddVettingResponse(ctx, storage.VettingResponseRecord{
		ID:        responseID,
		MovieID:   movie.ID,
		MemberID:  strings.TrimSpace(memberID),
		CreatedAt: s.clock(),
	}); err != nil {
		return err
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
		return nil
	}

	_, err = s.store.SetMovieStatus(ctx, movie.ID, storage.StatusVetting, storage.StatusWatching)
	return err
}

// rejectMovie applies the veto and, when nothing else is in flight, hands
// the phase back to SUBMISSION so the owner can propose a replacement.
// Future PROPOSED slots stay scheduled and untouched.
func (s *Service) rejectMovie(ctx context.Context, movie storage.MovieRecord) error {
	changed, err := s.store.SetMovieStatus(ctx, movie.ID, storage.StatusVetting, storage.StatusRejected)
	if err != nil {
		return err
	}
	if !changed {
		// Lost the race: the movie was already rejected or promoted.
		return nil
	}

	active, err := s.store.CountMoviesByStatus(ctx, storage.StatusVetting, storage.StatusWatching)
	if err != nil {
		return err
	}
	if active > 0 {
		return nil
	}
	state, err := s.store.LoadState(ctx)
	if err != nil {
		return err
	}
	return s.store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseSubmission, Week: state.Week})
}
