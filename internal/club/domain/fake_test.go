package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/torresgol10/movie-club/internal/club/storage"
)

// fakeStore is an in-memory storage.Store for exercising the lifecycle
// without a database. It enforces the same uniqueness rules the sqlite
// store enforces through its indexes.
type fakeStore struct {
	mu sync.Mutex

	state    storage.StateRecord
	stateSet bool

	members []storage.MemberRecord

	movieOrder []string
	movies     map[string]storage.MovieRecord

	vettingResponses []storage.VettingResponseRecord
	votes            []storage.VoteRecord

	statusChanges []statusChange
}

// statusChange records one successful conditional status update.
type statusChange struct {
	movieID string
	to      storage.Status
}

func newFakeStore() *fakeStore {
	return &fakeStore{movies: make(map[string]storage.MovieRecord)}
}

func (f *fakeStore) LoadState(_ context.Context) (storage.StateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stateSet {
		return storage.StateRecord{Phase: storage.PhaseSubmission, Week: 0}, nil
	}
	return f.state, nil
}

func (f *fakeStore) SaveState(_ context.Context, state storage.StateRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.stateSet = true
	return nil
}

func (f *fakeStore) PutMember(_ context.Context, record storage.MemberRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members {
		if member.Name == record.Name || member.ID == record.ID {
			return storage.ErrConflict
		}
	}
	f.members = append(f.members, record)
	return nil
}

func (f *fakeStore) GetMember(_ context.Context, id string) (storage.MemberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members {
		if member.ID == id {
			return member, nil
		}
	}
	return storage.MemberRecord{}, storage.ErrNotFound
}

func (f *fakeStore) GetMemberByName(_ context.Context, name string) (storage.MemberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members {
		if member.Name == name {
			return member, nil
		}
	}
	return storage.MemberRecord{}, storage.ErrNotFound
}

func (f *fakeStore) ListMembers(_ context.Context) ([]storage.MemberRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.MemberRecord, len(f.members))
	copy(out, f.members)
	return out, nil
}

func (f *fakeStore) CountMembers(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.members), nil
}

func (f *fakeStore) PutMovie(_ context.Context, record storage.MovieRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putMovieLocked(record)
	return nil
}

func (f *fakeStore) PutMovieWithState(_ context.Context, record storage.MovieRecord, state storage.StateRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putMovieLocked(record)
	f.state = state
	f.stateSet = true
	return nil
}

func (f *fakeStore) putMovieLocked(record storage.MovieRecord) {
	if _, ok := f.movies[record.ID]; !ok {
		f.movieOrder = append(f.movieOrder, record.ID)
	}
	f.movies[record.ID] = record
}

func (f *fakeStore) UpdateMovieDetails(_ context.Context, id, title, description, coverURL string, year int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	movie, ok := f.movies[id]
	if !ok {
		return storage.ErrNotFound
	}
	movie.Title = title
	movie.Description = description
	movie.CoverURL = coverURL
	movie.Year = year
	f.movies[id] = movie
	return nil
}

func (f *fakeStore) GetMovie(_ context.Context, id string) (storage.MovieRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	movie, ok := f.movies[id]
	if !ok {
		return storage.MovieRecord{}, storage.ErrNotFound
	}
	return movie, nil
}

func (f *fakeStore) GetActiveMovieByProposer(_ context.Context, memberID string) (storage.MovieRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.movieOrder {
		movie := f.movies[id]
		if movie.ProposedBy == memberID && !movie.Status.Terminal() {
			return movie, nil
		}
	}
	return storage.MovieRecord{}, storage.ErrNotFound
}

func (f *fakeStore) GetRejectedMovieByProposer(_ context.Context, memberID string, week int) (storage.MovieRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.movieOrder {
		movie := f.movies[id]
		if movie.ProposedBy == memberID && movie.Status == storage.StatusRejected && movie.WeekNumber == week {
			return movie, nil
		}
	}
	return storage.MovieRecord{}, storage.ErrNotFound
}

func (f *fakeStore) GetVettingMovie(_ context.Context) (storage.MovieRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *storage.MovieRecord
	for _, id := range f.movieOrder {
		movie := f.movies[id]
		if movie.Status != storage.StatusVetting {
			continue
		}
		if found == nil || movie.WeekNumber < found.WeekNumber {
			m := movie
			found = &m
		}
	}
	if found == nil {
		return storage.MovieRecord{}, storage.ErrNotFound
	}
	return *found, nil
}

func (f *fakeStore) GetMovieByStatusAndWeek(_ context.Context, status storage.Status, week int) (storage.MovieRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.movieOrder {
		movie := f.movies[id]
		if movie.Status == status && movie.WeekNumber == week {
			return movie, nil
		}
	}
	return storage.MovieRecord{}, storage.ErrNotFound
}

func (f *fakeStore) ListMoviesByStatus(_ context.Context, status storage.Status) ([]storage.MovieRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.MovieRecord
	for _, id := range f.movieOrder {
		if movie := f.movies[id]; movie.Status == status {
			out = append(out, movie)
		}
	}
	return out, nil
}

func (f *fakeStore) ListWatchingMoviesThroughWeek(_ context.Context, week int) ([]storage.MovieRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.MovieRecord
	for _, id := range f.movieOrder {
		movie := f.movies[id]
		if movie.Status == storage.StatusWatching && movie.WeekNumber <= week {
			out = append(out, movie)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].WeekNumber < out[j-1].WeekNumber; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeStore) NextDueProposedMovie(_ context.Context, now time.Time) (storage.MovieRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *storage.MovieRecord
	for _, id := range f.movieOrder {
		movie := f.movies[id]
		if movie.Status != storage.StatusProposed || movie.VettingStartAt == nil || movie.VettingStartAt.After(now) {
			continue
		}
		if found == nil || movie.WeekNumber < found.WeekNumber {
			m := movie
			found = &m
		}
	}
	if found == nil {
		return storage.MovieRecord{}, storage.ErrNotFound
	}
	return *found, nil
}

func (f *fakeStore) NextScheduledProposedMovie(_ context.Context) (storage.MovieRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *storage.MovieRecord
	for _, id := range f.movieOrder {
		movie := f.movies[id]
		if movie.Status != storage.StatusProposed || movie.WeekNumber == 0 {
			continue
		}
		if found == nil || movie.WeekNumber < found.WeekNumber {
			m := movie
			found = &m
		}
	}
	if found == nil {
		return storage.MovieRecord{}, storage.ErrNotFound
	}
	return *found, nil
}

func (f *fakeStore) HighestDueWeek(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	highest := 0
	for _, movie := range f.movies {
		if movie.Status.Terminal() || movie.VettingStartAt == nil || movie.VettingStartAt.After(now) {
			continue
		}
		if movie.WeekNumber > highest {
			highest = movie.WeekNumber
		}
	}
	return highest, nil
}

func (f *fakeStore) CountMoviesByStatus(_ context.Context, statuses ...storage.Status) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, movie := range f.movies {
		for _, status := range statuses {
			if movie.Status == status {
				count++
				break
			}
		}
	}
	return count, nil
}

func (f *fakeStore) SetMovieStatus(_ context.Context, id string, from, to storage.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	movie, ok := f.movies[id]
	if !ok || movie.Status != from {
		return false, nil
	}
	movie.Status = to
	f.movies[id] = movie
	f.statusChanges = append(f.statusChanges, statusChange{movieID: id, to: to})
	return true, nil
}

// statusChangeCount reports how many conditional updates moved the movie
// into the given status.
func (f *fakeStore) statusChangeCount(movieID string, to storage.Status) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, change := range f.statusChanges {
		if change.movieID == movieID && change.to == to {
			count++
		}
	}
	return count
}

func (f *fakeStore) ApplySchedule(_ context.Context, assignments []storage.ScheduleAssignment, state storage.StateRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range assignments {
		movie, ok := f.movies[a.MovieID]
		if !ok {
			return storage.ErrNotFound
		}
		start := a.VettingStartAt
		movie.WeekNumber = a.WeekNumber
		movie.VettingStartAt = &start
		movie.Status = a.Status
		f.movies[a.MovieID] = movie
	}
	f.state = state
	f.stateSet = true
	return nil
}

func (f *fakeStore) AddVettingResponse(_ context.Context, record storage.VettingResponseRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, response := range f.vettingResponses {
		if response.MovieID == record.MovieID && response.MemberID == record.MemberID {
			return false, nil
		}
	}
	f.vettingResponses = append(f.vettingResponses, record)
	return true, nil
}

func (f *fakeStore) CountVettingResponses(_ context.Context, movieID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, response := range f.vettingResponses {
		if response.MovieID == movieID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) ListVettingResponseMemberIDs(_ context.Context, movieID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, response := range f.vettingResponses {
		if response.MovieID == movieID {
			out = append(out, response.MemberID)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertVote(_ context.Context, record storage.VoteRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, vote := range f.votes {
		if vote.MovieID == record.MovieID && vote.MemberID == record.MemberID {
			f.votes[i].Score = record.Score
			f.votes[i].Comment = record.Comment
			return nil
		}
	}
	f.votes = append(f.votes, record)
	return nil
}

func (f *fakeStore) CountVotes(_ context.Context, movieID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, vote := range f.votes {
		if vote.MovieID == movieID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) ListVotes(_ context.Context, movieID string) ([]storage.VoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.VoteRecord
	for _, vote := range f.votes {
		if vote.MovieID == movieID {
			out = append(out, vote)
		}
	}
	return out, nil
}

func (f *fakeStore) ListVoteMemberIDs(_ context.Context, movieID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, vote := range f.votes {
		if vote.MovieID == movieID {
			out = append(out, vote.MemberID)
		}
	}
	return out, nil
}

// recordingNotifier captures notification calls in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingNotifier) NewVettingMovie(_ context.Context, title string) error {
	r.record("vetting:" + title)
	return nil
}

func (r *recordingNotifier) PendingVetting(_ context.Context, memberIDs []string, title string) error {
	r.record(fmt.Sprintf("vetting-reminder:%s:%d", title, len(memberIDs)))
	return nil
}

func (r *recordingNotifier) PendingVotes(_ context.Context, memberIDs []string, title string) error {
	r.record(fmt.Sprintf("vote-reminder:%s:%d", title, len(memberIDs)))
	return nil
}

func (r *recordingNotifier) MovieCompleted(_ context.Context, title string, averageScore float64) error {
	r.record(fmt.Sprintf("completed:%s:%.1f", title, averageScore))
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() (string, error) {
	var mu sync.Mutex
	n := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n), nil
	}
}

// identityShuffle keeps batch order deterministic in tests.
func identityShuffle(int, func(i, j int)) {}

func ptrTime(t time.Time) *time.Time { return &t }
