package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/ashureev/trainbot/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements RecordStore using SQLite. The rowid plays the role
// of the sheet row number.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // Serializes read-modify-write appends to prevent SQLITE_BUSY
}

var sqliteRetry = shared.RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   50 * time.Millisecond,
	Retryable:   shared.IsSQLiteConflictError,
}

// NewSQLite creates a new SQLite-backed record store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS training_records (
		date TEXT NOT NULL,
		load_type TEXT,
		workout TEXT,
		volume_content TEXT,
		goal TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_training_records_date ON training_records(date);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// columnName maps an editable field to its SQL column.
func columnName(field domain.Field) string {
	switch field {
	case domain.FieldWorkout:
		return "workout"
	case domain.FieldVolumeContent:
		return "volume_content"
	case domain.FieldGoal:
		return "goal"
	}
	return ""
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return domain.NewStoreError("ping", fmt.Errorf("%w: %v", domain.ErrUnavailable, err))
	}
	return nil
}

// FindByDate returns the first record (lowest rowid) for date.
func (s *SQLiteStore) FindByDate(ctx context.Context, date string) (domain.RecordRef, *domain.TrainingRecord, error) {
	query := `
		SELECT rowid, date, load_type, workout, volume_content, goal
		FROM training_records WHERE trim(date) = ? ORDER BY rowid LIMIT 1`

	var (
		rowID                                  int64
		rec                                    domain.TrainingRecord
		loadType, workout, volumeContent, goal sql.NullString
	)
	err := shared.Retry(ctx, "find record", sqliteRetry, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, query, date).Scan(
			&rowID, &rec.Date, &loadType, &workout, &volumeContent, &goal,
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RecordRef{}, nil, fmt.Errorf("%s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RecordRef{}, nil, domain.NewStoreError("find", fmt.Errorf("scan record row: %w", err))
	}

	rec.Date = date
	rec.LoadType = loadType.String
	rec.Workout = workout.String
	rec.VolumeContent = volumeContent.String
	rec.Goal = goal.String

	return domain.RecordRef{Row: int(rowID), Date: date}, &rec, nil
}

// UpdateField writes one cell of the referenced row.
func (s *SQLiteStore) UpdateField(ctx context.Context, ref domain.RecordRef, field domain.Field, value string, mode Mode) error {
	if err := checkField(field); err != nil {
		return err
	}
	column := columnName(field)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := shared.Retry(ctx, "update record", sqliteRetry, func(ctx context.Context) error {
		return s.updateOnce(ctx, ref, column, value, mode)
	})
	return domain.NewStoreError("update", err)
}

func (s *SQLiteStore) updateOnce(ctx context.Context, ref domain.RecordRef, column, value string, mode Mode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to rollback record update", "error", rbErr)
		}
	}()

	// Column names come from columnName, never from user input.
	var current sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT `+column+` FROM training_records WHERE rowid = ? AND trim(date) = ?`,
		ref.Row, ref.Date,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrStaleRecord
	}
	if err != nil {
		return fmt.Errorf("read current value: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE training_records SET `+column+` = ? WHERE rowid = ? AND trim(date) = ?`,
		Combine(current.String, value, mode), ref.Row, ref.Date,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateField affected 0 rows", "row", ref.Row, "date", ref.Date)
		return domain.ErrStaleRecord
	}

	return tx.Commit()
}

// Seed inserts records in order. Records are normally created out-of-band;
// this exists for local development and tests.
func (s *SQLiteStore) Seed(ctx context.Context, records ...domain.TrainingRecord) error {
	query := `INSERT INTO training_records (date, load_type, workout, volume_content, goal) VALUES (?, ?, ?, ?, ?)`
	for _, r := range records {
		if _, err := s.db.ExecContext(ctx, query,
			r.Date, nullable(r.LoadType), nullable(r.Workout), nullable(r.VolumeContent), nullable(r.Goal),
		); err != nil {
			return fmt.Errorf("seed record %s: %w", r.Date, err)
		}
	}
	return nil
}

// DeleteByDate removes rows for date. Used to simulate out-of-band edits.
func (s *SQLiteStore) DeleteByDate(ctx context.Context, date string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM training_records WHERE trim(date) = ?`, date)
	if err != nil {
		return 0, fmt.Errorf("delete record: %w", err)
	}
	return result.RowsAffected()
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

var _ RecordStore = (*SQLiteStore)(nil)
