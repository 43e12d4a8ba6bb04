package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/kv/memory"
	"bilancio/internal/ledger"
	"bilancio/internal/log"
)

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func (failingKV) Set(context.Context, string, string) error {
	return errors.New("disk on fire")
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	reg := ledger.NewRegistry(memory.New(), 16, time.Hour,
		ledger.WithClock(func() time.Time { return fixedNow }),
		ledger.WithLogger(log.Discard()))
	svc := ledger.NewService(reg, nil, log.Discard())
	opts = append([]Option{
		WithLogger(log.Discard()),
		WithClock(func() time.Time { return fixedNow }),
		WithActiveSessions(reg.Active),
	}, opts...)
	srv := NewServer(":0", svc, opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, user string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func createJSON(t *testing.T, srv *Server, user, payload string) map[string]any {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/transactions", user, strings.NewReader(payload), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = do(t, srv, http.MethodGet, "/readyz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	failing := newTestServer(t, WithReadiness(func(context.Context) error { return errors.New("db down") }))
	rec = do(t, failing, http.MethodGet, "/readyz", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}

func TestCreateTransaction(t *testing.T) {
	srv := newTestServer(t)

	tx := createJSON(t, srv, "alice", `{"type":"expense","title":" Lunch ","amount":"12.5","category":"food","date":"2025-03-10"}`)
	assert.NotEmpty(t, tx["id"])
	assert.Equal(t, "Lunch", tx["title"])
	assert.Equal(t, "12.50", tx["amount"])
	assert.Equal(t, "2025-03-10", tx["date"])

	form := "type=income&title=Salary&amount=2000&category=salary&date=2025-03-01"
	rec := do(t, srv, http.MethodPost, "/api/transactions", "alice", strings.NewReader(form), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/api/transactions/"))

	rec = do(t, srv, http.MethodPost, "/api/transactions", "alice",
		strings.NewReader(`{"type":"expense","title":"Bus","amount":2.4,"category":"transport","date":"2025-03-09"}`), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, "numeric amounts are accepted")
	assert.Contains(t, rec.Body.String(), `"amount":"2.40"`)
}

func TestCreateTransactionErrors(t *testing.T) {
	srv := newTestServer(t)
	valid := `{"type":"expense","title":"Lunch","amount":"12.50","category":"food","date":"2025-03-10"}`

	tests := []struct {
		name      string
		user      string
		body      string
		wantCode  int
		wantField string
	}{
		{"missing identity", "", valid, http.StatusUnauthorized, ""},
		{"malformed json", "alice", `{"type":`, http.StatusBadRequest, ""},
		{"invalid amount", "alice", `{"type":"expense","title":"Lunch","amount":"abc","category":"food","date":"2025-03-10"}`, http.StatusUnprocessableEntity, "amount"},
		{"zero amount", "alice", `{"type":"expense","title":"Lunch","amount":"0","category":"food","date":"2025-03-10"}`, http.StatusUnprocessableEntity, "amount"},
		{"missing title", "alice", `{"type":"expense","title":"  ","amount":"1","category":"food","date":"2025-03-10"}`, http.StatusUnprocessableEntity, "title"},
		{"unknown category", "alice", `{"type":"income","title":"Lunch","amount":"1","category":"food","date":"2025-03-10"}`, http.StatusUnprocessableEntity, "category"},
		{"bad date", "alice", `{"type":"expense","title":"Lunch","amount":"1","category":"food","date":"10/03/2025"}`, http.StatusUnprocessableEntity, "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/transactions", tt.user, strings.NewReader(tt.body), "application/json")
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantField != "" {
				var body errorBody
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantField, body.Field)
			}
		})
	}

	rec := do(t, srv, http.MethodGet, "/api/transactions", "alice", nil, "")
	assert.Contains(t, rec.Body.String(), `"count":0`, "failed creates leave the ledger untouched")
}

func TestListTransactionsWithFilter(t *testing.T) {
	srv := newTestServer(t)
	createJSON(t, srv, "alice", `{"type":"expense","title":"Lunch","amount":"12.50","category":"food","date":"2025-03-10"}`)
	createJSON(t, srv, "alice", `{"type":"expense","title":"Train","amount":"40","category":"transport","date":"2025-02-10"}`)
	createJSON(t, srv, "bob", `{"type":"expense","title":"Dinner","amount":"30","category":"food","date":"2025-03-10"}`)

	var all listResponse
	rec := do(t, srv, http.MethodGet, "/api/transactions", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, 2, all.Count)
	assert.False(t, all.Filtered)
	assert.Equal(t, "Train", all.Transactions[0].Title, "most recent insertion first")

	var filtered listResponse
	rec = do(t, srv, http.MethodGet, "/api/transactions?category=food&min=10&from=2025-03-01", "alice", nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filtered))
	assert.Equal(t, 1, filtered.Count)
	assert.True(t, filtered.Filtered)
	assert.Equal(t, "Lunch", filtered.Transactions[0].Title)

	rec = do(t, srv, http.MethodGet, "/api/transactions", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteTransaction(t *testing.T) {
	srv := newTestServer(t)
	tx := createJSON(t, srv, "alice", `{"type":"expense","title":"Lunch","amount":"12.50","category":"food","date":"2025-03-10"}`)
	id := tx["id"].(string)

	rec := do(t, srv, http.MethodDelete, "/api/transactions/"+id, "bob", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "users cannot delete each other's records")

	rec = do(t, srv, http.MethodDelete, "/api/transactions/"+id, "alice", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, srv, http.MethodDelete, "/api/transactions/"+id, "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPut, "/api/transactions", "alice", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Header().Get("Allow"), http.MethodPost)
}

func TestStats(t *testing.T) {
	srv := newTestServer(t)
	createJSON(t, srv, "alice", `{"type":"income","title":"Salary","amount":"1000","category":"salary","date":"2025-03-01"}`)
	createJSON(t, srv, "alice", `{"type":"expense","title":"Lunch","amount":"12.50","category":"food","date":"2025-03-10"}`)
	createJSON(t, srv, "alice", `{"type":"expense","title":"Rent","amount":"500","category":"utilities","date":"2025-02-01"}`)

	rec := do(t, srv, http.MethodGet, "/api/stats?today=2025-03-10", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report struct {
		Today          string `json:"today"`
		TodaysCount    int    `json:"todays_count"`
		TodaysExpenses string `json:"todays_expenses"`
		MonthExpenses  string `json:"month_expenses"`
		MonthlyAverage string `json:"monthly_average"`
		Totals         struct {
			Income   string `json:"income"`
			Expenses string `json:"expenses"`
			Balance  string `json:"balance"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "2025-03-10", report.Today)
	assert.Equal(t, 1, report.TodaysCount)
	assert.Equal(t, "12.50", report.TodaysExpenses)
	assert.Equal(t, "12.50", report.MonthExpenses)
	assert.Equal(t, "256.25", report.MonthlyAverage)
	assert.Equal(t, "1000.00", report.Totals.Income)
	assert.Equal(t, "512.50", report.Totals.Expenses)
	assert.Equal(t, "487.50", report.Totals.Balance)

	rec = do(t, srv, http.MethodGet, "/api/stats?today=garbage", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"today":"2025-03-10"`, "unparsable dates fall back to the clock")

	rec = do(t, srv, http.MethodGet, "/api/stats/monthly?limit=1", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var monthly struct {
		Months []struct {
			Month  string `json:"month"`
			Amount string `json:"amount"`
			Count  int    `json:"count"`
		} `json:"months"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &monthly))
	require.Len(t, monthly.Months, 1)
	assert.Equal(t, "12.50", monthly.Months[0].Amount)
	assert.Equal(t, 1, monthly.Months[0].Count)
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/categories", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tax struct {
		Income  []string `json:"income"`
		Expense []string `json:"expense"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tax))
	assert.Contains(t, tax.Income, "salary")
	assert.Contains(t, tax.Expense, "food")
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/export.csv", "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	createJSON(t, srv, "alice", `{"type":"expense","title":"Lunch, \"big\"","amount":"12.50","category":"food","date":"2025-03-10","notes":"with team"}`)
	rec = do(t, srv, http.MethodGet, "/api/export.csv", "alice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="expense-tracker-2025-03-10.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		"Date,Type,Title,Category,Amount,Notes\n2025-03-10,expense,\"Lunch, \"\"big\"\"\",food,12.50,\"with team\"\n",
		rec.Body.String())
}

func TestStorageFailureIsInternalError(t *testing.T) {
	reg := ledger.NewRegistry(failingKV{}, 16, time.Hour, ledger.WithLogger(log.Discard()))
	srv := NewServer(":0", ledger.NewService(reg, nil, log.Discard()), WithLogger(log.Discard()))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rec := do(t, srv, http.MethodGet, "/api/transactions", "alice", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	srv := newTestServer(t, WithRateLimit(1))
	body := `{"type":"expense","title":"Lunch","amount":"1","category":"food","date":"2025-03-10"}`

	rec := do(t, srv, http.MethodPost, "/api/transactions", "alice", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, srv, http.MethodPost, "/api/transactions", "alice", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec = do(t, srv, http.MethodGet, "/api/transactions", "alice", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodGet, "/api/transactions", "alice", nil, "")
	do(t, srv, http.MethodGet, "/.env", "", nil, "")

	rec := do(t, srv, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "http_requests_total 2")
	assert.Contains(t, body, "suspicious_requests_total 1")
	assert.Contains(t, body, "ledger_sessions 1")
}
