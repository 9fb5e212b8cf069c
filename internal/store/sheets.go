package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/ashureev/trainbot/internal/shared"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsConfig configures the Google Sheets backend.
type SheetsConfig struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsBase64 is a base64-encoded service account JSON key.
	CredentialsBase64 string
}

// SheetsStore implements RecordStore over one worksheet of a spreadsheet.
// Rows are addressed by their 1-indexed sheet row number.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	retry         shared.RetryPolicy
}

// NewSheets authenticates with a service account and opens the spreadsheet.
func NewSheets(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*SheetsStore, error) {
	if cfg.CredentialsBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(cfg.CredentialsBase64)
		if err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, raw, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		opts = append([]option.ClientOption{option.WithCredentials(creds)}, opts...)
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	return &SheetsStore{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		retry: shared.RetryPolicy{
			MaxAttempts: 4,
			BaseDelay:   500 * time.Millisecond,
			Retryable:   isRetryableSheetsError,
		},
	}, nil
}

// isRetryableSheetsError matches rate limiting and transient server errors.
func isRetryableSheetsError(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError
	}
	return false
}

// classify tags transport and server failures as unavailable.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code < http.StatusInternalServerError && gerr.Code != http.StatusTooManyRequests {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}

// a1 builds an A1 range on the configured sheet.
func (s *SheetsStore) a1(cells string) string {
	name := s.sheetName
	if strings.ContainsAny(name, " '!") {
		name = "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name + "!" + cells
}

// columnLetter converts a 1-indexed column to its letter. The table has
// five columns so a single letter is enough.
func columnLetter(col int) string {
	return string(rune('A' + col - 1))
}

func (s *SheetsStore) getValues(ctx context.Context, rng string) ([][]interface{}, error) {
	var resp *sheets.ValueRange
	err := shared.Retry(ctx, "sheets get", s.retry, func(ctx context.Context) error {
		var err error
		resp, err = s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	return resp.Values, nil
}

func cellString(row []interface{}, col int) string {
	if col-1 < len(row) && row[col-1] != nil {
		return strings.TrimSpace(fmt.Sprint(row[col-1]))
	}
	return ""
}

func recordFromRow(row []interface{}) *domain.TrainingRecord {
	return &domain.TrainingRecord{
		Date:          cellString(row, domain.ColumnDate),
		LoadType:      cellString(row, domain.ColumnLoadType),
		Workout:       cellString(row, domain.ColumnWorkout),
		VolumeContent: cellString(row, domain.ColumnVolumeContent),
		Goal:          cellString(row, domain.ColumnGoal),
	}
}

func (s *SheetsStore) rowRange(row int) string {
	return s.a1(fmt.Sprintf("A%d:%s%d", row, columnLetter(domain.ColumnCount), row))
}

// FindByDate scans the key column and returns the first matching row.
func (s *SheetsStore) FindByDate(ctx context.Context, date string) (domain.RecordRef, *domain.TrainingRecord, error) {
	keys, err := s.getValues(ctx, s.a1("A:A"))
	if err != nil {
		return domain.RecordRef{}, nil, domain.NewStoreError("find", err)
	}

	row := 0
	for i, k := range keys {
		if cellString(k, 1) == date {
			row = i + 1
			break
		}
	}
	if row == 0 {
		return domain.RecordRef{}, nil, fmt.Errorf("%s: %w", date, domain.ErrNotFound)
	}

	values, err := s.getValues(ctx, s.rowRange(row))
	if err != nil {
		return domain.RecordRef{}, nil, domain.NewStoreError("find", err)
	}
	if len(values) == 0 || cellString(values[0], domain.ColumnDate) != date {
		// The row moved between the two reads.
		return domain.RecordRef{}, nil, domain.NewStoreError("find", domain.ErrStaleRecord)
	}

	return domain.RecordRef{Row: row, Date: date}, recordFromRow(values[0]), nil
}

// UpdateField verifies the row still carries ref.Date and writes one cell.
func (s *SheetsStore) UpdateField(ctx context.Context, ref domain.RecordRef, field domain.Field, value string, mode Mode) error {
	if err := checkField(field); err != nil {
		return err
	}
	if ref.Row < 1 {
		return domain.NewStoreError("update", domain.ErrStaleRecord)
	}

	values, err := s.getValues(ctx, s.rowRange(ref.Row))
	if err != nil {
		return domain.NewStoreError("update", err)
	}
	if len(values) == 0 || cellString(values[0], domain.ColumnDate) != ref.Date {
		return domain.NewStoreError("update", domain.ErrStaleRecord)
	}

	newValue := Combine(cellString(values[0], field.Column()), value, mode)
	cell := s.a1(fmt.Sprintf("%s%d", columnLetter(field.Column()), ref.Row))
	body := &sheets.ValueRange{Values: [][]interface{}{{newValue}}}

	err = shared.Retry(ctx, "sheets update", s.retry, func(ctx context.Context) error {
		_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, cell, body).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return domain.NewStoreError("update", classify(err))
	}
	return nil
}

// Ping reads the spreadsheet metadata.
func (s *SheetsStore) Ping(ctx context.Context) error {
	_, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return domain.NewStoreError("ping", classify(err))
	}
	return nil
}

// Close is a no-op; the HTTP client has no resources to release.
func (s *SheetsStore) Close() error { return nil }

var _ RecordStore = (*SheetsStore)(nil)
