package http

import (
	"time"

	"github.com/sawpanic/condorrun/internal/persistence"
	"github.com/sawpanic/condorrun/internal/portfolio"
	"github.com/sawpanic/condorrun/internal/trader"
)

// HealthResponse is served at /health
type HealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "degraded"
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	System    SystemInfo             `json:"system"`
	Checks    map[string]CheckResult `json:"checks"`
}

// SystemInfo provides process-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// CheckResult is one dependency check
type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// PortfolioResponse is served at /portfolio
type PortfolioResponse struct {
	Timestamp time.Time          `json:"timestamp"`
	Snapshot  portfolio.Snapshot `json:"snapshot"`
}

// DecisionsResponse is served at /decisions
type DecisionsResponse struct {
	Timestamp time.Time         `json:"timestamp"`
	Count     int               `json:"count"`
	Decisions []trader.Decision `json:"decisions"`
}

// DecisionCountsResponse is served at /decisions/counts
type DecisionCountsResponse struct {
	Range  persistence.TimeRange `json:"range"`
	Counts map[string]int64      `json:"counts"`
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}
