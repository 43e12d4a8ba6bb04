package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/export"
	"bilancio/internal/filter"
	"bilancio/internal/log"
	"bilancio/internal/stats"
)

type listResponse struct {
	Transactions []core.Transaction `json:"transactions"`
	Count        int                `json:"count"`
	Filtered     bool               `json:"filtered"`
}

type monthlyResponse struct {
	Months []stats.MonthTotal `json:"months"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady runs the readiness check, when one is configured.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			NewResponse().Status(http.StatusServiceUnavailable).
				JSON(map[string]string{"status": "not_ready", "error": err.Error()}).Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	sessions := 0
	if s.sessions != nil {
		sessions = s.sessions()
	}

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_response_time_avg_us", "gauge", "Average response time in microseconds", traceMetrics.AverageResponseTime)
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", limitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", limitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", s.detector.SuspiciousRequests())
	metric("ledger_sessions", "gauge", "Loaded user sessions", sessions)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(s.now().Sub(s.started).Seconds()))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	spec := filter.ParseSpec(r.URL.Query())
	records, err := s.ledger.List(r.Context(), userFromRequest(r), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewResponse().JSON(listResponse{
		Transactions: records,
		Count:        len(records),
		Filtered:     !spec.IsEmpty(),
	}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, err.Error()).Write(w)
			return
		}
		BadRequestError("malformed request body").Write(w)
		return
	}

	user := userFromRequest(r)
	tx, err := s.ledger.Create(r.Context(), user, p.NewTransaction())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		log.NewFields().WithUser(user).WithTransaction(tx.ID, tx.Type.String(), tx.Amount.Cents, tx.Category).ToSlice()...)
	NewResponse().Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+tx.ID).
		JSON(tx).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(r.PathValue("id"))
	user := userFromRequest(r)
	removed, err := s.ledger.Delete(r.Context(), user, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !removed {
		NotFoundError("transaction not found").Write(w)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction deleted",
		log.FieldUserID, user, log.FieldTransactionID, id)
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	limit := ParseLimit(r.URL.Query(), "limit", stats.DefaultBreakdownLimit)
	report, err := s.ledger.Report(r.Context(), userFromRequest(r), s.today(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewResponse().JSON(report).Write(w)
}

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledger.Transactions(r.Context(), userFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit := ParseLimit(r.URL.Query(), "limit", stats.DefaultBreakdownLimit)
	NewResponse().JSON(monthlyResponse{Months: stats.MonthlyBreakdown(records, limit)}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	tax, err := s.ledger.Taxonomy(r.Context(), userFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewResponse().JSON(tax).Write(w)
}

// handleExport streams the caller's full list as CSV, most recent first.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledger.Transactions(r.Context(), userFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, records); err != nil {
		if errors.Is(err, export.ErrNothingToExport) {
			NotFoundError(err.Error()).Write(w)
			return
		}
		s.writeError(w, r, err)
		return
	}

	filename := export.Filename(core.DateOf(s.now()))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
