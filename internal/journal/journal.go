package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeFormat is fixed width so finished_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one finished tuning attempt.
type Entry struct {
	ID                    string    `json:"id"`
	AttemptID             string    `json:"attempt_id"`
	SatConf               string    `json:"satconf"`
	Frontend              string    `json:"frontend"`
	MuxID                 string    `json:"mux_id"`
	ElementID             string    `json:"element_id,omitempty"`
	Network               string    `json:"network,omitempty"`
	Frequency             uint32    `json:"frequency"`
	Polarisation          string    `json:"polarisation"`
	Band                  int       `json:"band"`
	IntermediateFrequency uint32    `json:"intermediate_frequency"`
	State                 string    `json:"state"`
	ErrorCode             string    `json:"error_code,omitempty"`
	Error                 string    `json:"error,omitempty"`
	GraceSeconds          int       `json:"grace_seconds"`
	RotorDelta            float64   `json:"rotor_delta"`
	Commands              int       `json:"commands"`
	StartedAt             time.Time `json:"started_at"`
	FinishedAt            time.Time `json:"finished_at"`
}

// Duration is the time from start to the final state.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// Filter selects journal entries. Zero fields match everything.
type Filter struct {
	SatConf string
	MuxID   string
	State   string
	Since   time.Time
	Limit   int // default 50, max 500
	Offset  int
}

// ListResult is a page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Summary aggregates the attempts of one satconf.
type Summary struct {
	SatConf      string    `json:"satconf"`
	Attempts     int       `json:"attempts"`
	Locked       int       `json:"locked"`
	Failed       int       `json:"failed"`
	Cancelled    int       `json:"cancelled"`
	AvgGrace     float64   `json:"avg_grace_seconds"`
	LastFinished time.Time `json:"last_finished"`
}

// LockRate is the fraction of attempts that locked.
func (s Summary) LockRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Locked) / float64(s.Attempts)
}

// Repository stores tuning attempts.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*ListResult, error)
	Summaries(ctx context.Context, since time.Time) ([]Summary, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository keeps the journal in the tuning_attempts table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e. ID and FinishedAt are filled in when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tuning_attempts (id, attempt_id, satconf, frontend, mux_id, element_id, network,
		   frequency, polarisation, band, intermediate_frequency, state, error_code, error,
		   grace_seconds, rotor_delta, commands, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AttemptID, e.SatConf, e.Frontend, e.MuxID,
		nullableString(e.ElementID), nullableString(e.Network),
		e.Frequency, e.Polarisation, e.Band, e.IntermediateFrequency, e.State,
		nullableString(e.ErrorCode), nullableString(e.Error),
		e.GraceSeconds, e.RotorDelta, e.Commands,
		formatTime(e.StartedAt), formatTime(e.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting tuning attempt: %w", err)
	}
	return nil
}

// List returns entries matching f, most recently finished first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*ListResult, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var conds []string
	var args []any
	if f.SatConf != "" {
		conds = append(conds, "satconf = ?")
		args = append(args, f.SatConf)
	}
	if f.MuxID != "" {
		conds = append(conds, "mux_id = ?")
		args = append(args, f.MuxID)
	}
	if f.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, f.State)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "finished_at >= ?")
		args = append(args, formatTime(f.Since))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM tuning_attempts " + where //nolint:gosec // parameterised conditions only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting tuning attempts: %w", err)
	}

	query := `SELECT id, attempt_id, satconf, frontend, mux_id, element_id, network,
		frequency, polarisation, band, intermediate_frequency, state, error_code, error,
		grace_seconds, rotor_delta, commands, started_at, finished_at
		FROM tuning_attempts ` + where + ` ORDER BY finished_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // parameterised conditions only
	rows, err := r.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying tuning attempts: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tuning attempts: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var elementID, network, code, msg sql.NullString
	var started, finished string
	if err := rows.Scan(&e.ID, &e.AttemptID, &e.SatConf, &e.Frontend, &e.MuxID, &elementID, &network,
		&e.Frequency, &e.Polarisation, &e.Band, &e.IntermediateFrequency, &e.State, &code, &msg,
		&e.GraceSeconds, &e.RotorDelta, &e.Commands, &started, &finished); err != nil {
		return Entry{}, fmt.Errorf("scanning tuning attempt: %w", err)
	}
	e.ElementID = elementID.String
	e.Network = network.String
	e.ErrorCode = code.String
	e.Error = msg.String

	var err error
	if e.StartedAt, err = parseTime(started); err != nil {
		return Entry{}, err
	}
	if e.FinishedAt, err = parseTime(finished); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Summaries aggregates attempts finished at or after since, per satconf.
func (r *SQLiteRepository) Summaries(ctx context.Context, since time.Time) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT satconf, COUNT(*),
		        SUM(state = 'locked'), SUM(state = 'failed'), SUM(state = 'cancelled'),
		        AVG(grace_seconds), MAX(finished_at)
		 FROM tuning_attempts
		 WHERE finished_at >= ?
		 GROUP BY satconf
		 ORDER BY satconf`,
		formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("summarising tuning attempts: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var last string
		if err := rows.Scan(&s.SatConf, &s.Attempts, &s.Locked, &s.Failed, &s.Cancelled, &s.AvgGrace, &last); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		if s.LastFinished, err = parseTime(last); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summaries: %w", err)
	}
	return out, nil
}

// Prune deletes entries that finished before the cutoff.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tuning_attempts WHERE finished_at < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("pruning tuning attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning tuning attempts: %w", err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing journal timestamp %q: %w", s, err)
		}
	}
	return t, nil
}

// nullableString stores empty strings as NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
