package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of a CLI invocation
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Outcome values stored for a round trip. Remote outcomes are stored as
// reported; these cover exchanges that produced no remote outcome.
const (
	OutcomeUndefined = "undefined"
	OutcomeError     = "error"
)

// Run represents one dsctl invocation
type Run struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"`
	Target      string     `json:"target"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// OperationRecord is one management request/response round trip
type OperationRecord struct {
	ID                 string    `json:"id"`
	RunID              string    `json:"run_id,omitempty"`
	Operation          string    `json:"operation"`
	Address            string    `json:"address"`
	Profile            string    `json:"profile"`
	Datasource         string    `json:"datasource"`
	Target             string    `json:"target"`
	Outcome            string    `json:"outcome"`
	FailureDescription *string   `json:"failure_description,omitempty"`
	RolledBack         *bool     `json:"rolled_back,omitempty"`
	ErrorKind          string    `json:"error_kind,omitempty"`
	DurationMs         int64     `json:"duration_ms"`
	CreatedAt          time.Time `json:"created_at"`
}

// OperationFilter narrows ListOperations. Zero fields match everything.
type OperationFilter struct {
	RunID      string
	Datasource string
	Profile    string
	Since      time.Time
	Limit      int
}

// Journal records management round trips.
type Journal interface {
	RecordOperation(ctx context.Context, rec *OperationRecord) error
}

type runIDKey struct{}

// WithRunID returns a context carrying the current run ID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ID stored by WithRunID.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
