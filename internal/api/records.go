package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/ashureev/trainbot/internal/store"
	"github.com/go-chi/chi/v5"
)

// RecordHandler serves the read-only training record view.
type RecordHandler struct {
	store   store.RecordStore
	today   func() string
	timeout time.Duration
}

// NewRecordHandler creates a record view handler. today resolves the
// "today" path segment.
func NewRecordHandler(st store.RecordStore, today func() string, timeout time.Duration) *RecordHandler {
	return &RecordHandler{store: st, today: today, timeout: timeout}
}

// RegisterRoutes registers record routes.
func (h *RecordHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/records", func(r chi.Router) {
		r.Get("/{date}", h.Get)
	})
}

type recordView struct {
	domain.TrainingRecord
	Summary string `json:"summary"`
}

// Get returns the record for the date in the path.
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(chi.URLParam(r, "date"))
	if strings.EqualFold(date, "today") {
		date = h.today()
	}
	if _, err := domain.ParseDate(date); err != nil {
		Error(w, http.StatusBadRequest, "invalid date format, use DD.MM.YYYY")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	_, rec, err := h.store.FindByDate(ctx, date)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, recordView{TrainingRecord: *rec, Summary: rec.Summary()})
	case domain.IsNotFound(err):
		Error(w, http.StatusNotFound, "no training planned for this date")
	default:
		slog.Error("Failed to read training record", "date", date, "error", err)
		Error(w, http.StatusServiceUnavailable, "record store unavailable")
	}
}
