package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"screenclip/internal/config"
	"screenclip/internal/services"
)

// Store manages take history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrAmbiguous is returned when a short id matches more than one take.
var ErrAmbiguous = errors.New("ambiguous take reference")

// Open connects to the history database under the configured state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.LibraryPath())
}

// OpenPath opens or creates the database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create library directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path reports the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateTake inserts a new take. A blank ID is assigned a random UUID.
func (s *Store) CreateTake(ctx context.Context, take *Take) (*Take, error) {
	if take == nil {
		return nil, errors.New("take is nil")
	}
	id := strings.TrimSpace(take.ID)
	if id == "" {
		id = uuid.NewString()
	}
	stage := take.Stage
	if stage == "" {
		stage = "trim"
	}
	timestamp := now()

	if err := s.exec(ctx,
		`INSERT INTO takes (
            id, title, stage, raw_path, raw_bytes, elapsed_seconds, auto_stopped,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullableString(take.Title),
		stage,
		nullableString(take.RawPath),
		take.RawBytes,
		take.ElapsedSeconds,
		boolToInt(take.AutoStopped),
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert take: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a take by its full identifier. A missing take yields nil, nil.
func (s *Store) Get(ctx context.Context, id string) (*Take, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+takeColumns+` FROM takes WHERE id = ?`, id)
	take, err := scanTake(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get take: %w", err)
	}
	return take, nil
}

// Find resolves a reference typed by a user: a full id, a unique id prefix,
// or a share id.
func (s *Store) Find(ctx context.Context, ref string) (*Take, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, services.Wrap(services.ErrValidation, "library", "find take", "take reference is required", nil)
	}
	if take, err := s.Get(ctx, ref); err != nil || take != nil {
		return take, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+takeColumns+` FROM takes WHERE id LIKE ? ESCAPE '\' OR share_id = ? ORDER BY created_at DESC LIMIT 2`,
		escapeLike(ref)+"%", ref,
	)
	if err != nil {
		return nil, fmt.Errorf("find take: %w", err)
	}
	defer rows.Close()

	var matches []*Take
	for rows.Next() {
		take, err := scanTake(rows)
		if err != nil {
			return nil, fmt.Errorf("scan take: %w", err)
		}
		matches = append(matches, take)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate takes: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, services.Wrap(services.ErrNotFound, "library", "find take", fmt.Sprintf("no take matches %q", ref), nil)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %q matches several takes", ErrAmbiguous, ref)
	}
}

// List returns takes newest first. A limit <= 0 returns every take.
func (s *Store) List(ctx context.Context, limit int) ([]*Take, error) {
	query := `SELECT ` + takeColumns + ` FROM takes ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list takes: %w", err)
	}
	defer rows.Close()

	var takes []*Take
	for rows.Next() {
		take, err := scanTake(rows)
		if err != nil {
			return nil, fmt.Errorf("scan take: %w", err)
		}
		takes = append(takes, take)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate takes: %w", err)
	}
	return takes, nil
}

// SetStage records the pipeline stage a take currently sits in.
func (s *Store) SetStage(ctx context.Context, id, stage string) error {
	return s.update(ctx, id, `UPDATE takes SET stage = ?, updated_at = ? WHERE id = ?`, stage, now(), id)
}

// SetTitle stores the title chosen for upload.
func (s *Store) SetTitle(ctx context.Context, id, title string) error {
	return s.update(ctx, id, `UPDATE takes SET title = ?, updated_at = ? WHERE id = ?`, nullableString(title), now(), id)
}

// RecordTrim stores the trim outcome and moves the take to the upload stage.
func (s *Store) RecordTrim(ctx context.Context, id string, outcome TrimOutcome) error {
	var start, end *float64
	if outcome.Applied || outcome.End > outcome.Start {
		start, end = &outcome.Start, &outcome.End
	}
	return s.update(ctx, id,
		`UPDATE takes
         SET stage = 'upload', trimmed_path = ?, trimmed_bytes = ?, trim_applied = ?, trim_reason = ?,
             trim_start = ?, trim_end = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(outcome.Path),
		outcome.Bytes,
		boolToInt(outcome.Applied),
		nullableString(outcome.Reason),
		nullableFloat(start),
		nullableFloat(end),
		now(),
		id,
	)
}

// ClearTrim forgets a trim choice when the user goes back to the trim stage.
func (s *Store) ClearTrim(ctx context.Context, id string) error {
	return s.update(ctx, id,
		`UPDATE takes
         SET stage = 'trim', trimmed_path = NULL, trimmed_bytes = 0, trim_applied = 0, trim_reason = NULL,
             trim_start = NULL, trim_end = NULL, updated_at = ?
         WHERE id = ?`,
		now(), id,
	)
}

// RecordShare stores a successful upload and moves the take to the share stage.
func (s *Store) RecordShare(ctx context.Context, id string, outcome ShareOutcome) error {
	return s.update(ctx, id,
		`UPDATE takes
         SET stage = 'share', video_id = ?, share_id = ?, share_url = ?, media_url = ?,
             title = COALESCE(?, title), upload_error = NULL, upload_attempts = upload_attempts + 1,
             updated_at = ?
         WHERE id = ?`,
		nullableString(outcome.VideoID),
		nullableString(outcome.ShareID),
		nullableString(outcome.ShareURL),
		nullableString(outcome.MediaURL),
		nullableString(outcome.Title),
		now(),
		id,
	)
}

// RecordUploadFailure keeps the take in the upload stage with the failure reason.
func (s *Store) RecordUploadFailure(ctx context.Context, id, reason string) error {
	return s.update(ctx, id,
		`UPDATE takes
         SET stage = 'upload', upload_error = ?, upload_attempts = upload_attempts + 1, updated_at = ?
         WHERE id = ?`,
		nullableString(reason), now(), id,
	)
}

// Remove deletes a take row. Exported files are left to the caller.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `DELETE FROM takes WHERE id = ?`, id)
		return execErr
	})
	if err != nil {
		return false, fmt.Errorf("remove take: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update take %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "library", "update take", fmt.Sprintf("take %s not found", id), nil)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// now uses a fixed-width layout so timestamps sort lexically.
func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func escapeLike(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, "%", `\%`)
	return strings.ReplaceAll(value, "_", `\_`)
}
