package store

import (
	"context"
	"fmt"

	"github.com/ashureev/trainbot/internal/config"
)

// Open creates the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (RecordStore, error) {
	switch cfg.Backend {
	case config.BackendSheets:
		return NewSheets(ctx, SheetsConfig{
			SpreadsheetID:     cfg.SpreadsheetID,
			SheetName:         cfg.SheetName,
			CredentialsBase64: cfg.CredentialsBase64,
		})
	case config.BackendSQLite:
		return NewSQLite(cfg.DBPath)
	case config.BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
