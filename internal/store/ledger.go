package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS submissions (
	submission_id TEXT PRIMARY KEY,
	created_at    TEXT NOT NULL,
	purge_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_purge_at ON submissions (purge_at);
`

// Ledger records which submissions hold artifacts and when each one expires.
// It is the durable half of the store: the purger consults it instead of
// scanning mtimes, so TTLs survive a process restart.
type Ledger struct {
	db *sqlx.DB
}

func OpenLedger(dbPath string) (*Ledger, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// Record registers a submission with its expiry. Re-recording an id extends
// its lifetime.
func (l *Ledger) Record(submissionID string, createdAt, purgeAt time.Time) error {
	if !submissionIDPattern.MatchString(submissionID) {
		return ErrInvalidSubmission
	}
	_, err := l.db.Exec(`
		INSERT INTO submissions (submission_id, created_at, purge_at) VALUES (?, ?, ?)
		ON CONFLICT(submission_id) DO UPDATE SET purge_at = excluded.purge_at`,
		submissionID, createdAt.UTC().Format(time.RFC3339Nano), purgeAt.UTC().Format(time.RFC3339Nano))
	return err
}

// PurgeAt reports when a submission expires, or ok=false if it is unknown.
func (l *Ledger) PurgeAt(submissionID string) (time.Time, bool, error) {
	var raw string
	err := l.db.Get(&raw, `SELECT purge_at FROM submissions WHERE submission_id = ?`, submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse purge_at for %s: %w", submissionID, err)
	}
	return t, true, nil
}

// Due lists submissions whose TTL has elapsed as of now.
func (l *Ledger) Due(now time.Time) ([]string, error) {
	var ids []string
	err := l.db.Select(&ids,
		`SELECT submission_id FROM submissions WHERE purge_at <= ? ORDER BY purge_at`,
		now.UTC().Format(time.RFC3339Nano))
	return ids, err
}

// Remove drops a submission from the ledger after its artifacts are gone.
func (l *Ledger) Remove(submissionID string) error {
	_, err := l.db.Exec(`DELETE FROM submissions WHERE submission_id = ?`, submissionID)
	return err
}
