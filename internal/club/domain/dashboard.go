package domain

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/torresgol10/movie-club/internal/club/storage"
)

// maskedTitle replaces other members' queued titles so the upcoming order
// stays a surprise.
const maskedTitle = "Mystery Movie"

// QueueEntry is one scheduled movie as shown to a viewer. Entries proposed
// by other members carry the masked title and no details.
type QueueEntry struct {
	MovieID    string
	Title      string
	WeekNumber int
	Mine       bool
}

// CompletedMovie is one finished movie with its final average score.
type CompletedMovie struct {
	Movie        storage.MovieRecord
	AverageScore float64
	Votes        []storage.VoteRecord
}

// DashboardView aggregates everything the member landing page shows.
type DashboardView struct {
	State           State
	MySubmission    *storage.MovieRecord
	ActiveProposals int
	TotalMembers    int
	Queue           []QueueEntry
	History         []CompletedMovie
}

// Dashboard assembles the viewer's landing page in one pass: the process
// state, the viewer's own submission, submission progress, the masked
// upcoming queue, and the scored history.
func (s *Service) Dashboard(ctx context.Context, viewerID string) (DashboardView, error) {
	if s == nil || s.store == nil {
		return DashboardView{}, ErrStoreNotConfigured
	}
	viewerID = strings.TrimSpace(viewerID)

	state, err := s.store.LoadState(ctx)
	if err != nil {
		return DashboardView{}, err
	}
	view := DashboardView{State: State{Phase: state.Phase, Week: state.Week}}

	view.TotalMembers, err = s.store.CountMembers(ctx)
	if err != nil {
		return DashboardView{}, err
	}
	view.ActiveProposals, err = s.store.CountMoviesByStatus(ctx, storage.StatusProposed)
	if err != nil {
		return DashboardView{}, err
	}

	mine, err := s.store.GetActiveMovieByProposer(ctx, viewerID)
	switch {
	case err == nil:
		view.MySubmission = &mine
	case errors.Is(err, storage.ErrNotFound):
	default:
		return DashboardView{}, err
	}

	proposed, err := s.store.ListMoviesByStatus(ctx, storage.StatusProposed)
	if err != nil {
		return DashboardView{}, err
	}
	sort.Slice(proposed, func(i, j int) bool {
		return proposed[i].WeekNumber < proposed[j].WeekNumber
	})
	for _, movie := range proposed {
		if movie.WeekNumber == 0 {
			// Unscheduled proposals are not part of the queue yet.
			continue
		}
		entry := QueueEntry{
			MovieID:    movie.ID,
			Title:      maskedTitle,
			WeekNumber: movie.WeekNumber,
		}
		if movie.ProposedBy == viewerID {
			entry.Title = movie.Title
			entry.Mine = true
		}
		view.Queue = append(view.Queue, entry)
	}

	completed, err := s.store.ListMoviesByStatus(ctx, storage.StatusCompleted)
	if err != nil {
		return DashboardView{}, err
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].WeekNumber < completed[j].WeekNumber
	})
	for _, movie := range completed {
		votes, err := s.store.ListVotes(ctx, movie.ID)
		if err != nil {
			return DashboardView{}, err
		}
		view.History = append(view.History, CompletedMovie{
			Movie:        movie,
			AverageScore: averageScore(votes),
			Votes:        votes,
		})
	}
	return view, nil
}
