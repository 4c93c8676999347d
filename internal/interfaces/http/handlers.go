package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/condorrun/internal/persistence"
	"github.com/sawpanic/condorrun/internal/portfolio"
	"github.com/sawpanic/condorrun/internal/trader"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 500
)

// PortfolioReader is satisfied by *portfolio.Book
type PortfolioReader interface {
	Snapshot() portfolio.Snapshot
}

// DecisionReader is satisfied by *trader.Trader
type DecisionReader interface {
	Recent(limit int) []trader.Decision
}

// Deps are the read-only views the monitor serves. Journal and Database may
// be nil when persistence is disabled.
type Deps struct {
	Portfolio PortfolioReader
	Decisions DecisionReader
	Journal   persistence.DecisionsRepo
	Database  persistence.RepositoryHealth
	Version   string
}

type handlers struct {
	deps    Deps
	started time.Time
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// Health handles GET /health
func (h *handlers) Health(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.deps.Version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
			NumGC:         mem.NumGC,
		},
		Checks: map[string]CheckResult{},
	}

	if h.deps.Portfolio != nil {
		snap := h.deps.Portfolio.Snapshot()
		resp.Checks["portfolio"] = CheckResult{Healthy: true, Message: "version " + strconv.FormatUint(snap.Version, 10)}
	}
	if h.deps.Database != nil {
		hc := h.deps.Database.Health(r.Context())
		resp.Checks["database"] = CheckResult{Healthy: hc.Healthy, Message: strings.Join(hc.Errors, "; ")}
		if !hc.Healthy {
			resp.Status = "degraded"
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Portfolio handles GET /portfolio
func (h *handlers) Portfolio(w http.ResponseWriter, r *http.Request) {
	if h.deps.Portfolio == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "portfolio_unavailable", "No portfolio is attached")
		return
	}
	h.writeJSON(w, http.StatusOK, PortfolioResponse{Timestamp: time.Now().UTC(), Snapshot: h.deps.Portfolio.Snapshot()})
}

// Decisions handles GET /decisions?limit=N&symbol=SYM
func (h *handlers) Decisions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Decisions == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "decisions_unavailable", "No trader is attached")
		return
	}

	limit := defaultDecisionLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxDecisionLimit {
			h.writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	var out []trader.Decision
	if symbol == "" {
		out = h.deps.Decisions.Recent(limit)
	} else {
		for _, d := range h.deps.Decisions.Recent(0) {
			if d.Symbol == symbol {
				out = append(out, d)
				if len(out) == limit {
					break
				}
			}
		}
	}
	if out == nil {
		out = []trader.Decision{}
	}
	h.writeJSON(w, http.StatusOK, DecisionsResponse{Timestamp: time.Now().UTC(), Count: len(out), Decisions: out})
}

// DecisionCounts handles GET /decisions/counts?hours=N from the journal
func (h *handlers) DecisionCounts(w http.ResponseWriter, r *http.Request) {
	if h.deps.Journal == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "journal_disabled", "Decision journal is not enabled")
		return
	}
	hours := 24
	if s := r.URL.Query().Get("hours"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.writeError(w, r, http.StatusBadRequest, "invalid_hours", "hours must be a positive integer")
			return
		}
		hours = n
	}

	now := time.Now().UTC()
	tr := persistence.TimeRange{From: now.Add(-time.Duration(hours) * time.Hour), To: now}
	counts, err := h.deps.Journal.CountByCode(r.Context(), tr)
	if err != nil {
		if r.Context().Err() == context.DeadlineExceeded {
			h.writeError(w, r, http.StatusGatewayTimeout, "journal_timeout", "Journal query timed out")
			return
		}
		h.writeError(w, r, http.StatusInternalServerError, "journal_error", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, DecisionCountsResponse{Range: tr, Counts: counts})
}

// NotFound handles 404 responses
func (h *handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
}
