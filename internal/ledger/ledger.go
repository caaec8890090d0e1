// Package ledger keeps a local SQLite history of uploads and submissions.
//
// The store is the sole writer to its database (SetMaxOpenConns(1)). Upload
// rows double as the duplicate index: a file whose SHA-256 already uploaded
// successfully to the same target can be skipped.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers as "sqlite"
)

// Upload statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// DefaultLimit is used by the Recent* queries when limit <= 0.
const DefaultLimit = 20

const dirPerms = 0o700

const (
	sqlInsertUpload = `INSERT INTO uploads
		(target_uid, file_name, local_path, sha256, size, status, error_msg, response, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlHasUploaded = `SELECT EXISTS (
		SELECT 1 FROM uploads WHERE target_uid = ? AND sha256 = ? AND status = 'success')`

	sqlRecentUploads = `SELECT id, target_uid, file_name, local_path, sha256, size, status,
		error_msg, response, started_at, finished_at
		FROM uploads ORDER BY finished_at DESC, id DESC LIMIT ?`

	sqlInsertSubmission = `INSERT INTO submissions
		(submitted_by, company_name, number_of_users, number_of_products, percentage, response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	sqlRecentSubmissions = `SELECT id, submitted_by, company_name, number_of_users, number_of_products,
		percentage, response, created_at
		FROM submissions ORDER BY created_at DESC, id DESC LIMIT ?`
)

// ErrInvalidStatus is returned when an upload row carries an unknown status.
var ErrInvalidStatus = errors.New("ledger: invalid upload status")

// Upload is one attempted file upload.
type Upload struct {
	ID         int64
	Target     string
	FileName   string
	LocalPath  string
	SHA256     string
	Size       int64
	Status     string
	Error      string
	Response   string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Submission is one stored dashboard submission.
type Submission struct {
	ID               int64
	SubmittedBy      string
	CompanyName      string
	NumberOfUsers    int
	NumberOfProducts int
	Percentage       float64
	Response         string
	CreatedAt        time.Time
}

// Store reads and writes the ledger database.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the ledger at dbPath and applies
// migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dirPerms); err != nil {
		return nil, fmt.Errorf("ledger: creating directory for %s: %w", dbPath, err)
	}

	// DSN pragmas apply to every pooled connection.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("ledger ready", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("ledger: closing database: %w", err)
	}

	return nil
}

// RecordUpload stores u and returns its row ID. Zero timestamps are set to
// the current time.
func (s *Store) RecordUpload(ctx context.Context, u Upload) (int64, error) {
	switch u.Status {
	case StatusSuccess, StatusError, StatusSkipped:
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}

	now := s.nowFunc()
	if u.FinishedAt.IsZero() {
		u.FinishedAt = now
	}

	if u.StartedAt.IsZero() {
		u.StartedAt = u.FinishedAt
	}

	res, err := s.db.ExecContext(ctx, sqlInsertUpload,
		u.Target, u.FileName, u.LocalPath, u.SHA256, u.Size, u.Status, u.Error, u.Response,
		u.StartedAt.UnixNano(), u.FinishedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: recording upload %s: %w", u.FileName, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger: reading upload id: %w", err)
	}

	s.logger.Debug("upload recorded",
		slog.Int64("id", id),
		slog.String("file", u.FileName),
		slog.String("status", u.Status),
	)

	return id, nil
}

// HasUploaded reports whether content with the given hash was already
// uploaded successfully to target.
func (s *Store) HasUploaded(ctx context.Context, target, sum string) (bool, error) {
	if sum == "" {
		return false, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, sqlHasUploaded, target, sum).Scan(&exists); err != nil {
		return false, fmt.Errorf("ledger: checking upload history: %w", err)
	}

	return exists, nil
}

// RecentUploads returns the newest uploads first.
func (s *Store) RecentUploads(ctx context.Context, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, sqlRecentUploads, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing uploads: %w", err)
	}
	defer rows.Close()

	var out []Upload

	for rows.Next() {
		var (
			u                 Upload
			started, finished int64
		)

		if err := rows.Scan(&u.ID, &u.Target, &u.FileName, &u.LocalPath, &u.SHA256, &u.Size,
			&u.Status, &u.Error, &u.Response, &started, &finished); err != nil {
			return nil, fmt.Errorf("ledger: scanning upload row: %w", err)
		}

		u.StartedAt = time.Unix(0, started)
		u.FinishedAt = time.Unix(0, finished)
		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating upload rows: %w", err)
	}

	return out, nil
}

// RecordSubmission stores sub and returns its row ID.
func (s *Store) RecordSubmission(ctx context.Context, sub Submission) (int64, error) {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.nowFunc()
	}

	res, err := s.db.ExecContext(ctx, sqlInsertSubmission,
		sub.SubmittedBy, sub.CompanyName, sub.NumberOfUsers, sub.NumberOfProducts,
		sub.Percentage, sub.Response, sub.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: recording submission: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger: reading submission id: %w", err)
	}

	return id, nil
}

// RecentSubmissions returns the newest submissions first.
func (s *Store) RecentSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, sqlRecentSubmissions, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission

	for rows.Next() {
		var (
			sub     Submission
			created int64
		)

		if err := rows.Scan(&sub.ID, &sub.SubmittedBy, &sub.CompanyName, &sub.NumberOfUsers,
			&sub.NumberOfProducts, &sub.Percentage, &sub.Response, &created); err != nil {
			return nil, fmt.Errorf("ledger: scanning submission row: %w", err)
		}

		sub.CreatedAt = time.Unix(0, created)
		out = append(out, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating submission rows: %w", err)
	}

	return out, nil
}

// HashFile returns the hex SHA-256 and size of the file at path.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("ledger: opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()

	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("ledger: hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}
