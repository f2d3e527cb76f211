// Package sqlite provides SQLite-backed persistence for the movie club.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/torresgol10/movie-club/internal/club/storage"
	"github.com/torresgol10/movie-club/internal/club/storage/sqlite/migrations"
	sqlitemigrate "github.com/torresgol10/movie-club/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for club state.
type Store struct {
	sqlDB *sql.DB
}

const (
	stateKeyPhase = "current_phase"
	stateKeyWeek  = "current_week"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a club SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS)
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// LoadState reads the persisted process state, defaulting to
// {SUBMISSION, 0} for keys that were never written.
func (s *Store) LoadState(ctx context.Context) (storage.StateRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.StateRecord{}, err
	}

	state := storage.StateRecord{Phase: storage.PhaseSubmission, Week: 0}

	var phase string
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT value FROM app_state WHERE key = ?", stateKeyPhase,
	).Scan(&phase)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return storage.StateRecord{}, fmt.Errorf("load phase: %w", err)
	default:
		parsed := storage.Phase(phase)
		if !parsed.Valid() {
			return storage.StateRecord{}, fmt.Errorf("stored phase %q is not valid", phase)
		}
		state.Phase = parsed
	}

	var week string
	err = s.sqlDB.QueryRowContext(ctx,
		"SELECT value FROM app_state WHERE key = ?", stateKeyWeek,
	).Scan(&week)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return storage.StateRecord{}, fmt.Errorf("load week: %w", err)
	default:
		parsed, convErr := strconv.Atoi(week)
		if convErr != nil {
			return storage.StateRecord{}, fmt.Errorf("stored week %q is not a number: %w", week, convErr)
		}
		state.Week = parsed
	}

	return state, nil
}

// SaveState upserts both process state keys in one transaction.
func (s *Store) SaveState(ctx context.Context, state storage.StateRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if !state.Phase.Valid() {
		return fmt.Errorf("phase %q is not valid", state.Phase)
	}
	if state.Week < 0 {
		return fmt.Errorf("week %d is negative", state.Week)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state write: %w", err)
	}
	if err := saveStateExec(ctx, tx, state); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state write: %w", err)
	}
	return nil
}

func saveStateExec(ctx context.Context, execer sqlExecer, state storage.StateRecord) error {
	const upsert = `
INSERT INTO app_state (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := execer.ExecContext(ctx, upsert, stateKeyPhase, string(state.Phase)); err != nil {
		return fmt.Errorf("save phase: %w", err)
	}
	if _, err := execer.ExecContext(ctx, upsert, stateKeyWeek, strconv.Itoa(state.Week)); err != nil {
		return fmt.Errorf("save week: %w", err)
	}
	return nil
}

// PutMember persists one member row.
func (s *Store) PutMember(ctx context.Context, record storage.MemberRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(record.Name) == "" {
		return fmt.Errorf("member name is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO members (id, name, pin, created_at) VALUES (?, ?, ?, ?)`,
		record.ID, record.Name, record.PIN, toMillis(createdAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// GetMember loads one member by id.
func (s *Store) GetMember(ctx context.Context, id string) (storage.MemberRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MemberRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, pin, created_at FROM members WHERE id = ?`, id)
	return scanMember(row.Scan)
}

// GetMemberByName loads one member by display name.
func (s *Store) GetMemberByName(ctx context.Context, name string) (storage.MemberRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MemberRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, pin, created_at FROM members WHERE name = ?`, name)
	return scanMember(row.Scan)
}

// ListMembers returns all members ordered by creation time.
func (s *Store) ListMembers(ctx context.Context) ([]storage.MemberRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, pin, created_at FROM members ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []storage.MemberRecord
	for rows.Next() {
		member, err := scanMember(rows.Scan)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// CountMembers returns the number of members.
func (s *Store) CountMembers(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM members").Scan(&count); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

// PutMovie persists one movie row.
func (s *Store) PutMovie(ctx context.Context, record storage.MovieRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	normalized, err := normalizeMovieRecord(record)
	if err != nil {
		return err
	}
	return putMovieExec(ctx, s.sqlDB, normalized)
}

// PutMovieWithState atomically inserts a movie and saves process state.
func (s *Store) PutMovieWithState(ctx context.Context, record storage.MovieRecord, state storage.StateRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	normalized, err := normalizeMovieRecord(record)
	if err != nil {
		return err
	}
	if !state.Phase.Valid() {
		return fmt.Errorf("phase %q is not valid", state.Phase)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin movie write: %w", err)
	}
	if err := putMovieExec(ctx, tx, normalized); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := saveStateExec(ctx, tx, state); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit movie write: %w", err)
	}
	return nil
}

// UpdateMovieDetails rewrites the proposer-editable metadata in place.
func (s *Store) UpdateMovieDetails(ctx context.Context, id, title, description, coverURL string, year int) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE movies SET title = ?, description = ?, cover_url = ?, year = ? WHERE id = ?`,
		title, description, coverURL, year, id)
	if err != nil {
		return fmt.Errorf("update movie details: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update movie details affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetMovie loads one movie by id.
func (s *Store) GetMovie(ctx context.Context, id string) (storage.MovieRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MovieRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, movieSelect+" WHERE id = ?", id)
	return scanMovie(row.Scan)
}

// GetActiveMovieByProposer returns the proposer's non-terminal movie.
func (s *Store) GetActiveMovieByProposer(ctx context.Context, memberID string) (storage.MovieRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MovieRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, movieSelect+`
 WHERE proposed_by = ? AND status IN (?, ?, ?)
 ORDER BY created_at LIMIT 1`,
		memberID,
		string(storage.StatusProposed), string(storage.StatusVetting), string(storage.StatusWatching))
	return scanMovie(row.Scan)
}

// GetRejectedMovieByProposer returns the proposer's rejected movie for the week.
func (s *Store) GetRejectedMovieByProposer(ctx context.Context, memberID string, week int) (storage.MovieRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MovieRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, movieSelect+`
 WHERE proposed_by = ? AND status = ? AND week_number = ?
 ORDER BY created_at DESC LIMIT 1`,
		memberID, string(storage.StatusRejected), week)
	return scanMovie(row.Scan)
}

// GetVettingMovie returns the vetting movie with the lowest week number.
func (s *Store) GetVettingMovie(ctx context.Context) (storage.MovieRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MovieRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, movieSelect+`
 WHERE status = ? ORDER BY week_number, created_at LIMIT 1`,
		string(storage.StatusVetting))
	return scanMovie(row.Scan)
}

// GetMovieByStatusAndWeek returns one movie matching status and week.
func (s *Store) GetMovieByStatusAndWeek(ctx context.Context, status storage.Status, week int) (storage.MovieRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MovieRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, movieSelect+`
 WHERE status = ? AND week_number = ? ORDER BY created_at LIMIT 1`,
		string(status), week)
	return scanMovie(row.Scan)
}

// ListMoviesByStatus returns all movies in the given status.
func (s *Store) ListMoviesByStatus(ctx context.Context, status storage.Status) ([]storage.MovieRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, movieSelect+`
 WHERE status = ? ORDER BY week_number, created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	return collectMovies(rows)
}

// ListWatchingMoviesThroughWeek returns WATCHING movies up to the given week.
func (s *Store) ListWatchingMoviesThroughWeek(ctx context.Context, week int) ([]storage.MovieRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, movieSelect+`
 WHERE status = ? AND week_number <= ? ORDER BY week_number, created_at`,
		string(storage.StatusWatching), week)
	if err != nil {
		return nil, fmt.Errorf("list watching movies: %w", err)
	}
	return collectMovies(rows)
}

// NextDueProposedMovie returns the earliest-week PROPOSED movie whose
// vetting start date has arrived.
func (s *Store) NextDueProposedMovie(ctx context.Context, now time.Time) (storage.MovieRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MovieRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, movieSelect+`
 WHERE status = ? AND vetting_start_at IS NOT NULL AND vetting_start_at <= ?
 ORDER BY week_number, created_at LIMIT 1`,
		string(storage.StatusProposed), toMillis(now))
	return scanMovie(row.Scan)
}

// NextScheduledProposedMovie returns the earliest scheduled PROPOSED movie.
func (s *Store) NextScheduledProposedMovie(ctx context.Context) (storage.MovieRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MovieRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, movieSelect+`
 WHERE status = ? AND week_number > 0
 ORDER BY week_number, created_at LIMIT 1`,
		string(storage.StatusProposed))
	return scanMovie(row.Scan)
}

// HighestDueWeek returns the largest due week among non-terminal movies.
func (s *Store) HighestDueWeek(ctx context.Context, now time.Time) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var week sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT MAX(week_number) FROM movies
 WHERE status IN (?, ?, ?) AND vetting_start_at IS NOT NULL AND vetting_start_at <= ?`,
		string(storage.StatusProposed), string(storage.StatusVetting), string(storage.StatusWatching),
		toMillis(now)).Scan(&week)
	if err != nil {
		return 0, fmt.Errorf("highest due week: %w", err)
	}
	if !week.Valid {
		return 0, nil
	}
	return int(week.Int64), nil
}

// CountMoviesByStatus counts movies in any of the given statuses.
func (s *Store) CountMoviesByStatus(ctx context.Context, statuses ...storage.Status) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = string(status)
	}
	query := "SELECT COUNT(*) FROM movies WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count movies: %w", err)
	}
	return count, nil
}

// SetMovieStatus transitions a movie between statuses with a conditional
// update. It reports whether the row changed, so callers can detect lost
// races instead of repeating promotion side effects.
func (s *Store) SetMovieStatus(ctx context.Context, id string, from, to storage.Status) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if !from.Valid() || !to.Valid() {
		return false, fmt.Errorf("status transition %q -> %q is not valid", from, to)
	}
	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE movies SET status = ? WHERE id = ? AND status = ?",
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("set movie status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set movie status affected rows: %w", err)
	}
	return affected > 0, nil
}

// ApplySchedule atomically writes a batch schedule and the new state.
func (s *Store) ApplySchedule(ctx context.Context, assignments []storage.ScheduleAssignment, state storage.StateRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if !state.Phase.Valid() {
		return fmt.Errorf("phase %q is not valid", state.Phase)
	}
	for _, assignment := range assignments {
		if strings.TrimSpace(assignment.MovieID) == "" {
			return fmt.Errorf("schedule assignment movie id is required")
		}
		if assignment.WeekNumber <= 0 {
			return fmt.Errorf("schedule assignment week %d is not positive", assignment.WeekNumber)
		}
		if !assignment.Status.Valid() {
			return fmt.Errorf("schedule assignment status %q is not valid", assignment.Status)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule write: %w", err)
	}
	for _, assignment := range assignments {
		if _, err := tx.ExecContext(ctx, `
UPDATE movies SET week_number = ?, vetting_start_at = ?, status = ? WHERE id = ?`,
			assignment.WeekNumber, toMillis(assignment.VettingStartAt),
			string(assignment.Status), assignment.MovieID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("schedule movie %s: %w", assignment.MovieID, err)
		}
	}
	if err := saveStateExec(ctx, tx, state); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule write: %w", err)
	}
	return nil
}

// AddVettingResponse inserts a NOT_SEEN acknowledgment if absent. The
// unique index makes the duplicate case a no-op rather than an error.
func (s *Store) AddVettingResponse(ctx context.Context, record storage.VettingResponseRecord) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return false, fmt.Errorf("vetting response id is required")
	}
	if strings.TrimSpace(record.MovieID) == "" || strings.TrimSpace(record.MemberID) == "" {
		return false, fmt.Errorf("vetting response movie and member ids are required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO vetting_responses (id, movie_id, member_id, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (movie_id, member_id) DO NOTHING`,
		record.ID, record.MovieID, record.MemberID, toMillis(createdAt))
	if err != nil {
		return false, fmt.Errorf("insert vetting response: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert vetting response affected rows: %w", err)
	}
	return affected > 0, nil
}

// CountVettingResponses counts acknowledgments for a movie.
func (s *Store) CountVettingResponses(ctx context.Context, movieID string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vetting_responses WHERE movie_id = ?", movieID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count vetting responses: %w", err)
	}
	return count, nil
}

// ListVettingResponseMemberIDs lists members that acknowledged a movie.
func (s *Store) ListVettingResponseMemberIDs(ctx context.Context, movieID string) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.listMemberIDs(ctx,
		"SELECT member_id FROM vetting_responses WHERE movie_id = ? ORDER BY created_at", movieID)
}

// UpsertVote inserts or updates one member's score for a movie.
func (s *Store) UpsertVote(ctx context.Context, record storage.VoteRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("vote id is required")
	}
	if strings.TrimSpace(record.MovieID) == "" || strings.TrimSpace(record.MemberID) == "" {
		return fmt.Errorf("vote movie and member ids are required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO votes (id, movie_id, member_id, score, comment, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (movie_id, member_id) DO UPDATE SET
    score = excluded.score,
    comment = excluded.comment`,
		record.ID, record.MovieID, record.MemberID, record.Score, record.Comment, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

// CountVotes counts votes for a movie.
func (s *Store) CountVotes(ctx context.Context, movieID string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM votes WHERE movie_id = ?", movieID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return count, nil
}

// ListVotes lists all votes for a movie.
func (s *Store) ListVotes(ctx context.Context, movieID string) ([]storage.VoteRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, movie_id, member_id, score, comment, created_at
FROM votes WHERE movie_id = ? ORDER BY created_at, id`, movieID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []storage.VoteRecord
	for rows.Next() {
		var vote storage.VoteRecord
		var createdAt int64
		if err := rows.Scan(&vote.ID, &vote.MovieID, &vote.MemberID, &vote.Score, &vote.Comment, &createdAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		vote.CreatedAt = fromMillis(createdAt)
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}

// ListVoteMemberIDs lists members that voted on a movie.
func (s *Store) ListVoteMemberIDs(ctx context.Context, movieID string) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.listMemberIDs(ctx,
		"SELECT member_id FROM votes WHERE movie_id = ? ORDER BY created_at", movieID)
}

// PutPushSubscription persists one Web Push subscription, replacing an
// existing row for the same endpoint.
func (s *Store) PutPushSubscription(ctx context.Context, record storage.PushSubscriptionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("push subscription id is required")
	}
	if strings.TrimSpace(record.Endpoint) == "" {
		return fmt.Errorf("push subscription endpoint is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO push_subscriptions (id, member_id, endpoint, p256dh, auth, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (endpoint) DO UPDATE SET
    member_id = excluded.member_id,
    p256dh = excluded.p256dh,
    auth = excluded.auth`,
		record.ID, record.MemberID, record.Endpoint, record.P256dh, record.Auth, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}
	return nil
}

// ListPushSubscriptionsByMember lists one member's push subscriptions.
func (s *Store) ListPushSubscriptionsByMember(ctx context.Context, memberID string) ([]storage.PushSubscriptionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, pushSubscriptionSelect+`
 WHERE member_id = ? ORDER BY created_at`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	return collectPushSubscriptions(rows)
}

// ListPushSubscriptions lists every stored push subscription.
func (s *Store) ListPushSubscriptions(ctx context.Context) ([]storage.PushSubscriptionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, pushSubscriptionSelect+" ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	return collectPushSubscriptions(rows)
}

// DeletePushSubscription removes one push subscription by id.
func (s *Store) DeletePushSubscription(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM push_subscriptions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

const movieSelect = `
SELECT id, title, description, year, cover_url, proposed_by, status, week_number, vetting_start_at, created_at
FROM movies`

const pushSubscriptionSelect = `
SELECT id, member_id, endpoint, p256dh, auth, created_at
FROM push_subscriptions`

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner func(dest ...any) error

func (s *Store) listMemberIDs(ctx context.Context, query string, movieID string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, movieID)
	if err != nil {
		return nil, fmt.Errorf("list member ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member ids: %w", err)
	}
	return ids, nil
}

func normalizeMovieRecord(record storage.MovieRecord) (storage.MovieRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.Title = strings.TrimSpace(record.Title)
	record.ProposedBy = strings.TrimSpace(record.ProposedBy)
	if record.ID == "" {
		return storage.MovieRecord{}, fmt.Errorf("movie id is required")
	}
	if record.Title == "" {
		return storage.MovieRecord{}, fmt.Errorf("movie title is required")
	}
	if record.ProposedBy == "" {
		return storage.MovieRecord{}, fmt.Errorf("movie proposer is required")
	}
	if !record.Status.Valid() {
		return storage.MovieRecord{}, fmt.Errorf("movie status %q is not valid", record.Status)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	return record, nil
}

func putMovieExec(ctx context.Context, execer sqlExecer, record storage.MovieRecord) error {
	var startAt any
	if record.VettingStartAt != nil {
		startAt = toMillis(*record.VettingStartAt)
	}
	_, err := execer.ExecContext(ctx, `
INSERT INTO movies (id, title, description, year, cover_url, proposed_by, status, week_number, vetting_start_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Title, record.Description, record.Year, record.CoverURL,
		record.ProposedBy, string(record.Status), record.WeekNumber, startAt, toMillis(record.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert movie: %w", err)
	}
	return nil
}

func scanMember(scan scanner) (storage.MemberRecord, error) {
	var member storage.MemberRecord
	var createdAt int64
	err := scan(&member.ID, &member.Name, &member.PIN, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.MemberRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.MemberRecord{}, fmt.Errorf("scan member: %w", err)
	}
	member.CreatedAt = fromMillis(createdAt)
	return member, nil
}

func scanMovie(scan scanner) (storage.MovieRecord, error) {
	var movie storage.MovieRecord
	var status string
	var startAt sql.NullInt64
	var createdAt int64
	err := scan(&movie.ID, &movie.Title, &movie.Description, &movie.Year, &movie.CoverURL,
		&movie.ProposedBy, &status, &movie.WeekNumber, &startAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.MovieRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.MovieRecord{}, fmt.Errorf("scan movie: %w", err)
	}
	movie.Status = storage.Status(status)
	if startAt.Valid {
		value := fromMillis(startAt.Int64)
		movie.VettingStartAt = &value
	}
	movie.CreatedAt = fromMillis(createdAt)
	return movie, nil
}

func collectMovies(rows *sql.Rows) ([]storage.MovieRecord, error) {
	defer rows.Close()
	var movies []storage.MovieRecord
	for rows.Next() {
		movie, err := scanMovie(rows.Scan)
		if err != nil {
			return nil, err
		}
		movies = append(movies, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}
	return movies, nil
}

func collectPushSubscriptions(rows *sql.Rows) ([]storage.PushSubscriptionRecord, error) {
	defer rows.Close()
	var subscriptions []storage.PushSubscriptionRecord
	for rows.Next() {
		var sub storage.PushSubscriptionRecord
		var createdAt int64
		if err := rows.Scan(&sub.ID, &sub.MemberID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &createdAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		sub.CreatedAt = fromMillis(createdAt)
		subscriptions = append(subscriptions, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push subscriptions: %w", err)
	}
	return subscriptions, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
