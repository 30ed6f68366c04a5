package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/portraitlab/capture-pipeline/internal/pipeline"
)

// Tracker records finished captures per subject fingerprint in Postgres.
// It is a purely observational sink: recording failures are logged and
// never fail a capture.
type Tracker struct {
	db  *sql.DB
	log *logrus.Entry
}

// NewTracker opens the database and ensures the ledger table exists.
func NewTracker(databaseURL string, log *logrus.Entry) (*Tracker, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if log == nil {
		log = logrus.WithField("component", "ledger")
	}
	t := &Tracker{db: db, log: log}
	if err := t.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger table: %w", err)
	}
	return t, nil
}

func (t *Tracker) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS capture_ledger (
			fingerprint TEXT PRIMARY KEY,
			last_run_id TEXT,
			last_success BOOLEAN,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`
	if _, err := t.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create capture_ledger table: %w", err)
	}
	return nil
}

// Record upserts one finished capture and returns the new seen count.
func (t *Tracker) Record(ctx context.Context, fingerprint, runID string, success bool) (int, error) {
	query := `
		INSERT INTO capture_ledger (fingerprint, last_run_id, last_success, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, $3, NOW(), NOW(), 1)
		ON CONFLICT (fingerprint) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = capture_ledger.seen_count + 1,
		    last_run_id = EXCLUDED.last_run_id,
		    last_success = EXCLUDED.last_success
		RETURNING seen_count
	`
	var seenCount int
	if err := t.db.QueryRowContext(ctx, query, fingerprint, runID, success).Scan(&seenCount); err != nil {
		return 0, fmt.Errorf("failed to record capture: %w", err)
	}
	return seenCount, nil
}

// SeenCount retrieves the number of recorded captures for a fingerprint.
func (t *Tracker) SeenCount(ctx context.Context, fingerprint string) (int, error) {
	var seenCount int
	err := t.db.QueryRowContext(ctx,
		`SELECT seen_count FROM capture_ledger WHERE fingerprint = $1`, fingerprint).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}
	return seenCount, nil
}

// NotifyResult lets the tracker double as a pipeline notifier.
func (t *Tracker) NotifyResult(event pipeline.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := t.Record(ctx, event.Fingerprint, event.RunID, event.Success); err != nil {
		t.log.WithError(err).Warn("failed to record capture in ledger")
	}
}

// Close releases the database connection.
func (t *Tracker) Close() error {
	return t.db.Close()
}
