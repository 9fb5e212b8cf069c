package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/trainbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const testSpreadsheetID = "sheet-123"

// fakeSheet serves the subset of the Sheets v4 REST API the store uses.
type fakeSheet struct {
	mu       sync.Mutex
	rows     [][]string
	failNext int // respond 429 to the next n requests
	updates  []string
}

func newFakeSheet(records ...domain.TrainingRecord) *fakeSheet {
	f := &fakeSheet{}
	for _, r := range records {
		f.rows = append(f.rows, []string{r.Date, r.LoadType, r.Workout, r.VolumeContent, r.Goal})
	}
	return f
}

var cellRef = regexp.MustCompile(`^([A-Z])(\d*)$`)

// parseRange splits "Sheet1!A3:E3" into column and row bounds. Rows are 0 when open.
func parseRange(rng string) (c1, r1, c2, r2 int) {
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		rng = rng[i+1:]
	}
	parts := strings.SplitN(rng, ":", 2)
	if len(parts) == 1 {
		parts = append(parts, parts[0])
	}
	parse := func(s string) (int, int) {
		m := cellRef.FindStringSubmatch(s)
		if m == nil {
			return 0, 0
		}
		row, _ := strconv.Atoi(m[2])
		return int(m[1][0]-'A') + 1, row
	}
	c1, r1 = parse(parts[0])
	c2, r2 = parse(parts[1])
	return c1, r1, c2, r2
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext > 0 {
		f.failNext--
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"rate limited"}}`))
		return
	}

	prefix := "/v4/spreadsheets/" + testSpreadsheetID
	path := r.URL.Path
	if path == prefix {
		writeJSON(w, map[string]string{"spreadsheetId": testSpreadsheetID})
		return
	}
	if !strings.HasPrefix(path, prefix+"/values/") {
		http.NotFound(w, r)
		return
	}
	rng := strings.TrimPrefix(path, prefix+"/values/")
	c1, r1, c2, r2 := parseRange(rng)

	switch r.Method {
	case http.MethodGet:
		if r1 == 0 {
			r1, r2 = 1, len(f.rows)
		}
		var values [][]interface{}
		for row := r1; row <= r2 && row <= len(f.rows); row++ {
			var out []interface{}
			for col := c1; col <= c2 && col <= len(f.rows[row-1]); col++ {
				out = append(out, f.rows[row-1][col-1])
			}
			// The real API drops trailing empty cells.
			for len(out) > 0 && out[len(out)-1] == "" {
				out = out[:len(out)-1]
			}
			values = append(values, out)
		}
		writeJSON(w, map[string]interface{}{"range": rng, "majorDimension": "ROWS", "values": values})
	case http.MethodPut:
		if r.URL.Query().Get("valueInputOption") != "RAW" {
			http.Error(w, "valueInputOption required", http.StatusBadRequest)
			return
		}
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r1 < 1 || r1 > len(f.rows) || c1 != c2 || r1 != r2 {
			http.Error(w, "single cell only", http.StatusBadRequest)
			return
		}
		f.rows[r1-1][c1-1] = fmt.Sprint(body.Values[0][0])
		f.updates = append(f.updates, rng)
		writeJSON(w, map[string]interface{}{"updatedCells": 1, "updatedRange": rng})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeSheet) snapshot() (rows [][]string, updates []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		rows = append(rows, append([]string(nil), r...))
	}
	return rows, append([]string(nil), f.updates...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newSheetsForTest(t *testing.T, fake *fakeSheet) *SheetsStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewSheets(context.Background(), SheetsConfig{SpreadsheetID: testSpreadsheetID},
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	s.retry.BaseDelay = time.Millisecond
	return s
}

func TestSheetsStore_UpdateTouchesOneCell(t *testing.T) {
	fake := newFakeSheet(seedRecords...)
	s := newSheetsForTest(t, fake)
	ctx := context.Background()

	ref, _, err := s.FindByDate(ctx, "18.10.2026")
	require.NoError(t, err)
	assert.Equal(t, 2, ref.Row)

	require.NoError(t, s.UpdateField(ctx, ref, domain.FieldVolumeContent, "10km", Replace))
	rows, updates := fake.snapshot()
	assert.Equal(t, []string{"Sheet1!D2"}, updates)
	assert.Equal(t, []string{"18.10.2026", "medium", "5km run", "10km", "aerobic base"}, rows[1])
}

func TestSheetsStore_RetriesRateLimit(t *testing.T) {
	fake := newFakeSheet(seedRecords...)
	fake.failNext = 2
	s := newSheetsForTest(t, fake)

	_, rec, err := s.FindByDate(context.Background(), "19.10.2026")
	require.NoError(t, err)
	assert.Equal(t, "intervals", rec.Workout)
}

func TestSheetsStore_PersistentFailureIsUnavailable(t *testing.T) {
	fake := newFakeSheet(seedRecords...)
	fake.failNext = 100
	s := newSheetsForTest(t, fake)

	_, _, err := s.FindByDate(context.Background(), "19.10.2026")
	assert.True(t, domain.IsStoreError(err))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestSheetsStore_Ping(t *testing.T) {
	s := newSheetsForTest(t, newFakeSheet())
	assert.NoError(t, s.Ping(context.Background()))
}

func TestSheetsStore_QuotesSheetNames(t *testing.T) {
	s := &SheetsStore{sheetName: "Plan 2026"}
	assert.Equal(t, "'Plan 2026'!A:A", s.a1("A:A"))
	s.sheetName = "Plan"
	assert.Equal(t, "Plan!C4", s.a1("C4"))
	assert.Equal(t, "E", columnLetter(domain.ColumnGoal))
}
