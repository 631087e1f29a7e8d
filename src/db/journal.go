package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"myndis-engine/src/models"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver
)

var ErrThresholdVersionNotFound = errors.New("threshold version not found in journal")

// Journal is the append-only audit store for threshold versions, decisions
// and feedback, kept in a local sqlite file.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens or creates the journal database at the given path.
func OpenJournal(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(journalSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) SaveThresholdVersion(ctx context.Context, v models.ThresholdVersion) error {
	pairs, err := json.Marshal(v.Thresholds)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO threshold_versions (version, thresholds, created_at) VALUES (?, ?, ?)`,
		v.Version, string(pairs), v.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (j *Journal) LatestThresholdVersion(ctx context.Context) (*models.ThresholdVersion, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT version, thresholds, created_at FROM threshold_versions ORDER BY version DESC LIMIT 1`)
	v, err := scanThresholdVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (j *Journal) ThresholdVersion(ctx context.Context, version int64) (*models.ThresholdVersion, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT version, thresholds, created_at FROM threshold_versions WHERE version = ?`, version)
	v, err := scanThresholdVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrThresholdVersionNotFound, version)
	}
	return v, err
}

func scanThresholdVersion(row *sql.Row) (*models.ThresholdVersion, error) {
	var v models.ThresholdVersion
	var pairs, createdAt string
	if err := row.Scan(&v.Version, &pairs, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pairs), &v.Thresholds); err != nil {
		return nil, fmt.Errorf("decoding thresholds of version %d: %w", v.Version, err)
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &v, nil
}

func (j *Journal) SaveDecision(ctx context.Context, d models.Decision) error {
	_, err := j.db.ExecContext(ctx, `INSERT INTO decisions
		(transaction_id, account_id, category, valid, confidence, duration_ns, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.TransactionID, d.AccountID, d.Category, boolInt(d.Valid), d.Confidence,
		int64(d.Duration), d.DecidedAt.UTC().Format(time.RFC3339Nano))
	return err
}

const decisionColumns = `transaction_id, account_id, category, valid, confidence, duration_ns, decided_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (models.Decision, error) {
	var d models.Decision
	var valid int
	var durationNs int64
	var decidedAt string
	if err := row.Scan(&d.TransactionID, &d.AccountID, &d.Category, &valid,
		&d.Confidence, &durationNs, &decidedAt); err != nil {
		return models.Decision{}, err
	}
	d.Valid = valid != 0
	d.Duration = time.Duration(durationNs)
	d.DecidedAt, _ = time.Parse(time.RFC3339Nano, decidedAt)
	return d, nil
}

// LoadDecisions returns the most recent limit decisions, oldest first.
func (j *Journal) LoadDecisions(ctx context.Context, limit int) ([]models.Decision, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+decisionColumns+` FROM (
		SELECT seq, `+decisionColumns+` FROM decisions ORDER BY seq DESC LIMIT ?
	) ORDER BY seq`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Decision returns nil, nil when no decision was journaled for the id.
func (j *Journal) Decision(ctx context.Context, transactionID string) (*models.Decision, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE transaction_id = ?`, transactionID)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (j *Journal) CountDecisions(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`).Scan(&n)
	return n, err
}

func (j *Journal) SaveFeedback(ctx context.Context, f models.Feedback) error {
	_, err := j.db.ExecContext(ctx, `INSERT INTO feedback
		(account_id, transaction_id, verdict, approved, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.AccountID, f.TransactionID, boolInt(f.Verdict), boolInt(f.Approved), f.Reason,
		f.RecordedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (j *Journal) LoadFeedback(ctx context.Context) ([]models.Feedback, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT account_id, transaction_id, verdict, approved,
		reason, recorded_at FROM feedback ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Feedback
	for rows.Next() {
		var f models.Feedback
		var verdict, approved int
		var recordedAt string
		if err := rows.Scan(&f.AccountID, &f.TransactionID, &verdict, &approved,
			&f.Reason, &recordedAt); err != nil {
			return nil, err
		}
		f.Verdict = verdict != 0
		f.Approved = approved != 0
		f.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const journalSchemaSQL = `
CREATE TABLE IF NOT EXISTS threshold_versions (
	version     INTEGER PRIMARY KEY,
	thresholds  TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id  TEXT NOT NULL UNIQUE,
	account_id      TEXT NOT NULL,
	category        TEXT NOT NULL,
	valid           INTEGER NOT NULL,
	confidence      REAL NOT NULL,
	duration_ns     INTEGER NOT NULL,
	decided_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id      TEXT NOT NULL,
	transaction_id  TEXT NOT NULL,
	verdict         INTEGER NOT NULL,
	approved        INTEGER NOT NULL,
	reason          TEXT NOT NULL,
	recorded_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_transaction ON feedback (transaction_id);
`
