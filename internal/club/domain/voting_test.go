package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/torresgol10/movie-club/internal/club/storage"
)

// seedWatchingMovie adds a fully-vetted WATCHING movie for the given week.
func seedWatchingMovie(ctx context.Context, t *testing.T, store *fakeStore, id string, week int, memberIDs []string) storage.MovieRecord {
	t.Helper()
	movie := storage.MovieRecord{
		ID: id, Title: "Watching " + id, ProposedBy: memberIDs[0],
		Status: storage.StatusWatching, WeekNumber: week,
		VettingStartAt: ptrTime(testNow.Add(-72 * time.Hour)), CreatedAt: testNow,
	}
	store.PutMovie(ctx, movie)
	for i, memberID := range memberIDs {
		if _, err := store.AddVettingResponse(ctx, storage.VettingResponseRecord{
			ID: id + "-ack-" + memberID, MovieID: id, MemberID: memberID,
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("AddVettingResponse: %v", err)
		}
	}
	return movie
}

func TestSubmitVoteScoreBounds(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	addMembers(t, store, "ana")
	svc := newTestService(store, nil)

	for _, score := range []int{-1, 11} {
		err := svc.SubmitVote(context.Background(), SubmitVoteInput{MemberID: "member-ana", MovieID: "x", Score: score})
		if !errors.Is(err, ErrInvalidScore) {
			t.Fatalf("score %d: err = %v, want ErrInvalidScore", score, err)
		}
	}
}

func TestSubmitVoteRequiresWatchingMovie(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	addMembers(t, store, "ana")
	svc := newTestService(store, nil)
	ctx := context.Background()

	store.PutMovie(ctx, storage.MovieRecord{
		ID: "proposed-1", Title: "Queued", ProposedBy: "member-ana",
		Status: storage.StatusProposed, WeekNumber: 2, CreatedAt: testNow,
	})

	err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-ana", MovieID: "proposed-1", Score: 7})
	if !errors.Is(err, ErrMovieNotAvailable) {
		t.Fatalf("err = %v, want ErrMovieNotAvailable", err)
	}

	err = svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-ana", MovieID: "missing", Score: 7})
	if !errors.Is(err, ErrMovieNotAvailable) {
		t.Fatalf("missing movie: err = %v, want ErrMovieNotAvailable", err)
	}
}

func TestSubmitVoteRejectsFutureWeek(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	members := addMembers(t, store, "ana")
	svc := newTestService(store, nil)
	ctx := context.Background()

	ids := []string{members[0].ID}
	seedWatchingMovie(ctx, t, store, "future-1", 3, ids)
	store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseActive, Week: 1})

	err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-ana", MovieID: "future-1", Score: 7})
	if !errors.Is(err, ErrMovieNotAvailable) {
		t.Fatalf("err = %v, want ErrMovieNotAvailable", err)
	}
}

func TestSubmitVoteRequiresVettingQuorum(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	addMembers(t, store, "ana", "bob")
	svc := newTestService(store, nil)
	ctx := context.Background()

	store.PutMovie(ctx, storage.MovieRecord{
		ID: "watching-1", Title: "Half Vetted", ProposedBy: "member-ana",
		Status: storage.StatusWatching, WeekNumber: 1, CreatedAt: testNow,
	})
	store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseActive, Week: 1})
	store.AddVettingResponse(ctx, storage.VettingResponseRecord{
		ID: "ack-1", MovieID: "watching-1", MemberID: "member-ana", CreatedAt: testNow,
	})

	err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-ana", MovieID: "watching-1", Score: 7})
	if !errors.Is(err, ErrVettingIncomplete) {
		t.Fatalf("err = %v, want ErrVettingIncomplete", err)
	}
}

func TestSubmitVoteUpsertsScore(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	members := addMembers(t, store, "ana", "bob")
	svc := newTestService(store, nil)
	ctx := context.Background()

	ids := []string{members[0].ID, members[1].ID}
	movie := seedWatchingMovie(ctx, t, store, "watching-1", 1, ids)
	store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseActive, Week: 1})

	if err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-ana", MovieID: movie.ID, Score: 4}); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-ana", MovieID: movie.ID, Score: 9, Comment: "grew on me"}); err != nil {
		t.Fatalf("second vote: %v", err)
	}

	votes, err := store.ListVotes(ctx, movie.ID)
	if err != nil {
		t.Fatalf("ListVotes: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("votes = %d, want 1", len(votes))
	}
	if votes[0].Score != 9 || votes[0].Comment != "grew on me" {
		t.Fatalf("vote = %+v, want updated score and comment", votes[0])
	}
}

func TestSubmitVoteQuorumCompletesAndPromotesDueMovie(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	members := addMembers(t, store, "ana", "bob")
	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier)
	ctx := context.Background()

	ids := []string{members[0].ID, members[1].ID}
	movie := seedWatchingMovie(ctx, t, store, "watching-1", 1, ids)
	store.PutMovie(ctx, storage.MovieRecord{
		ID: "queued-2", Title: "Next Up", ProposedBy: "member-bob",
		Status: storage.StatusProposed, WeekNumber: 2,
		VettingStartAt: ptrTime(testNow.Add(-time.Hour)), CreatedAt: testNow,
	})
	store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseActive, Week: 1})

	if err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-ana", MovieID: movie.ID, Score: 6}); err != nil {
		t.Fatalf("vote ana: %v", err)
	}
	if err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-bob", MovieID: movie.ID, Score: 9}); err != nil {
		t.Fatalf("vote bob: %v", err)
	}

	got, _ := store.GetMovie(ctx, movie.ID)
	if got.Status != storage.StatusCompleted {
		t.Fatalf("status = %v, want COMPLETED", got.Status)
	}
	next, _ := store.GetMovie(ctx, "queued-2")
	if next.Status != storage.StatusVetting {
		t.Fatalf("next status = %v, want VETTING", next.Status)
	}
	state, _ := store.LoadState(ctx)
	if state.Phase != storage.PhaseActive || state.Week != 2 {
		t.Fatalf("state = %+v, want {ACTIVE 2}", state)
	}

	events := notifier.all()
	want := []string{"completed:Watching watching-1:7.5", "vetting:Next Up"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestSubmitVoteConcurrentQuorumCompletesOnce(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	members := addMembers(t, store, "ana", "bob", "cat", "dan")
	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier)
	ctx := context.Background()

	ids := make([]string, len(members))
	for i, member := range members {
		ids[i] = member.ID
	}
	movie := seedWatchingMovie(ctx, t, store, "watching-1", 1, ids)
	store.PutMovie(ctx, storage.MovieRecord{
		ID: "queued-2", Title: "Next Up", ProposedBy: "member-bob",
		Status: storage.StatusProposed, WeekNumber: 2,
		VettingStartAt: ptrTime(testNow.Add(-time.Hour)), CreatedAt: testNow,
	})
	store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseActive, Week: 1})

	var wg sync.WaitGroup
	errs := make(chan error, len(members))
	for _, member := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.SubmitVote(ctx, SubmitVoteInput{MemberID: member.ID, MovieID: movie.ID, Score: 8})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("SubmitVote: %v", err)
		}
	}

	got, _ := store.GetMovie(ctx, movie.ID)
	if got.Status != storage.StatusCompleted {
		t.Fatalf("status = %v, want COMPLETED", got.Status)
	}
	next, _ := store.GetMovie(ctx, "queued-2")
	if next.Status != storage.StatusVetting {
		t.Fatalf("next status = %v, want VETTING", next.Status)
	}
	if n := store.statusChangeCount(movie.ID, storage.StatusCompleted); n != 1 {
		t.Fatalf("completions = %d, want exactly 1", n)
	}
	if n := store.statusChangeCount("queued-2", storage.StatusVetting); n != 1 {
		t.Fatalf("promotions of next movie = %d, want exactly 1", n)
	}

	completed, promoted := 0, 0
	for _, event := range notifier.all() {
		switch event {
		case "completed:Watching watching-1:8.0":
			completed++
		case "vetting:Next Up":
			promoted++
		default:
			t.Fatalf("unexpected event %q", event)
		}
	}
	if completed != 1 || promoted != 1 {
		t.Fatalf("events: completed = %d, promoted = %d, want 1 and 1", completed, promoted)
	}
}

func TestSubmitVoteQuorumPromotesEarlyWithoutWeekAdvance(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	members := addMembers(t, store, "ana", "bob")
	svc := newTestService(store, nil)
	ctx := context.Background()

	ids := []string{members[0].ID, members[1].ID}
	movie := seedWatchingMovie(ctx, t, store, "watching-1", 1, ids)
	store.PutMovie(ctx, storage.MovieRecord{
		ID: "queued-2", Title: "Not Due Yet", ProposedBy: "member-bob",
		Status: storage.StatusProposed, WeekNumber: 2,
		VettingStartAt: ptrTime(testNow.Add(96 * time.Hour)), CreatedAt: testNow,
	})
	store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseActive, Week: 1})

	if err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-ana", MovieID: movie.ID, Score: 6}); err != nil {
		t.Fatalf("vote ana: %v", err)
	}
	if err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-bob", MovieID: movie.ID, Score: 8}); err != nil {
		t.Fatalf("vote bob: %v", err)
	}

	next, _ := store.GetMovie(ctx, "queued-2")
	if next.Status != storage.StatusVetting {
		t.Fatalf("next status = %v, want VETTING", next.Status)
	}
	state, _ := store.LoadState(ctx)
	if state.Week != 1 {
		t.Fatalf("week = %d, want 1 (early promotion keeps the week)", state.Week)
	}
}

func TestSubmitVoteLastMovieResetsCycle(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	members := addMembers(t, store, "ana", "bob")
	svc := newTestService(store, nil)
	ctx := context.Background()

	ids := []string{members[0].ID, members[1].ID}
	movie := seedWatchingMovie(ctx, t, store, "watching-1", 3, ids)
	store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseActive, Week: 3})

	if err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-ana", MovieID: movie.ID, Score: 6}); err != nil {
		t.Fatalf("vote ana: %v", err)
	}
	if err := svc.SubmitVote(ctx, SubmitVoteInput{MemberID: "member-bob", MovieID: movie.ID, Score: 9}); err != nil {
		t.Fatalf("vote bob: %v", err)
	}

	state, _ := store.LoadState(ctx)
	if state.Phase != storage.PhaseSubmission || state.Week != 0 {
		t.Fatalf("state = %+v, want {SUBMISSION 0}", state)
	}
}

func TestPendingVotesForMember(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	members := addMembers(t, store, "ana", "bob")
	svc := newTestService(store, nil)
	ctx := context.Background()

	ids := []string{members[0].ID, members[1].ID}
	vetted := seedWatchingMovie(ctx, t, store, "watching-1", 1, ids)
	store.PutMovie(ctx, storage.MovieRecord{
		ID: "watching-2", Title: "Half Vetted", ProposedBy: "member-bob",
		Status: storage.StatusWatching, WeekNumber: 2, CreatedAt: testNow,
	})
	store.SaveState(ctx, storage.StateRecord{Phase: storage.PhaseActive, Week: 2})
	store.UpsertVote(ctx, storage.VoteRecord{
		ID: "vote-1", MovieID: vetted.ID, MemberID: "member-bob", Score: 8, CreatedAt: testNow,
	})

	pending, err := svc.PendingVotesForMember(ctx, "member-ana")
	if err != nil {
		t.Fatalf("PendingVotesForMember: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != vetted.ID {
		t.Fatalf("pending = %+v, want only the fully-vetted movie", pending)
	}

	pending, err = svc.PendingVotesForMember(ctx, "member-bob")
	if err != nil {
		t.Fatalf("PendingVotesForMember: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending for voter = %+v, want none", pending)
	}
}
