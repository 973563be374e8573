// Package journal keeps a local SQLite record of deliveries.
//
// Only metadata is stored: which application, which backend, how many
// attempts, the outcome and a fingerprint of the delivered text. The text
// itself is never written.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"scrivener/internal/engine"
)

// Entry is one journaled delivery.
type Entry struct {
	ID          int64         `json:"id"`
	RequestID   string        `json:"request_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Target      string        `json:"target"`
	App         string        `json:"app,omitempty"`
	PID         int           `json:"pid,omitempty"`
	Profile     string        `json:"profile,omitempty"`
	Strategy    string        `json:"strategy,omitempty"`
	Backend     string        `json:"backend,omitempty"`
	Content     string        `json:"content,omitempty"`
	Attempts    int           `json:"attempts"`
	Success     bool          `json:"success"`
	ErrorKind   string        `json:"error_kind"`
	Diagnostic  string        `json:"diagnostic,omitempty"`
	Length      int           `json:"length"`
	Fingerprint string        `json:"fingerprint,omitempty"`
}

// Attempt is one backend try within a delivery.
type Attempt struct {
	Backend  string        `json:"backend"`
	Try      int           `json:"try"`
	OK       bool          `json:"ok"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Stats summarises the journal.
type Stats struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByKind    map[string]int `json:"by_kind"`
	ByBackend map[string]int `json:"by_backend"`
}

// Journal is the SQLite delivery journal.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path and runs migrations.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping checks the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Record writes an outcome and its attempts in one transaction. Recording
// the same request twice is an error.
func (j *Journal) Record(ctx context.Context, out engine.Outcome, attempts []Attempt) (int64, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO deliveries (request_id, started_ns, duration_ns, target, app, pid, profile, strategy,
			backend, content, attempts, success, error_kind, diagnostic, length, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.RequestID, out.StartedAt.UnixNano(), int64(out.Duration), out.Target, out.App, out.PID,
		out.Profile, out.Strategy, out.Backend, out.Content, out.Attempts, out.Success,
		out.Kind.String(), out.Diagnostic, out.Length, out.Fingerprint,
	)
	if err != nil {
		return 0, fmt.Errorf("insert delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	if len(attempts) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO attempts (request_id, ordinal, backend, try, ok, duration_ns, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("prepare statement: %w", err)
		}
		defer stmt.Close()

		for i, a := range attempts {
			if _, err := stmt.ExecContext(ctx, out.RequestID, i, a.Backend, a.Try, a.OK, int64(a.Duration), a.Error); err != nil {
				return 0, fmt.Errorf("insert attempt: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return id, nil
}

const entryColumns = `id, request_id, started_ns, duration_ns, target, app, pid, profile, strategy,
	backend, content, attempts, success, error_kind, diagnostic, length, fingerprint`

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM deliveries
		ORDER BY started_ns DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent deliveries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByApp returns up to limit entries for an application label or requested
// target, newest first.
func (j *Journal) ByApp(ctx context.Context, app string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM deliveries
		WHERE app = ? COLLATE NOCASE OR target = ? COLLATE NOCASE
		ORDER BY started_ns DESC, id DESC LIMIT ?`, app, app, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries by app: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Get returns the entry for requestID, or nil.
func (j *Journal) Get(ctx context.Context, requestID string) (*Entry, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM deliveries WHERE request_id = ?`, requestID)
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

// Attempts returns the attempts of requestID in order.
func (j *Journal) Attempts(ctx context.Context, requestID string) ([]Attempt, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT backend, try, ok, duration_ns, error
		FROM attempts WHERE request_id = ?
		ORDER BY ordinal ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var durNs int64
		var errText sql.NullString
		if err := rows.Scan(&a.Backend, &a.Try, &a.OK, &durNs, &errText); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Duration = time.Duration(durNs)
		a.Error = errText.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

// Stats aggregates the whole journal.
func (j *Journal) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{ByKind: map[string]int{}, ByBackend: map[string]int{}}

	rows, err := j.db.QueryContext(ctx, `SELECT success, error_kind, COALESCE(backend, ''), COUNT(*)
		FROM deliveries GROUP BY success, error_kind, backend`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ok bool
		var kind, backend string
		var n int
		if err := rows.Scan(&ok, &kind, &backend, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		s.Total += n
		if ok {
			s.Succeeded += n
			s.ByBackend[backend] += n
		} else {
			s.Failed += n
			s.ByKind[kind] += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return s, nil
}

// Prune deletes entries started before cutoff and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM deliveries WHERE started_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var startedNs, durNs int64
		var app, profile, strategy, backend, content, diag, fp sql.NullString
		var pid sql.NullInt64

		if err := rows.Scan(&e.ID, &e.RequestID, &startedNs, &durNs, &e.Target, &app, &pid, &profile, &strategy,
			&backend, &content, &e.Attempts, &e.Success, &e.ErrorKind, &diag, &e.Length, &fp); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		e.StartedAt = time.Unix(0, startedNs)
		e.Duration = time.Duration(durNs)
		e.App = app.String
		e.PID = int(pid.Int64)
		e.Profile = profile.String
		e.Strategy = strategy.String
		e.Backend = backend.String
		e.Content = content.String
		e.Diagnostic = diag.String
		e.Fingerprint = fp.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return entries, nil
}
