package journal

import "time"

// Outcome is how a recorded call ended.
type Outcome string

const (
	// OutcomeOK means the node returned a result.
	OutcomeOK Outcome = "ok"
	// OutcomeRPCError means the node answered with an error object.
	OutcomeRPCError Outcome = "rpc_error"
	// OutcomeFailed means no usable reply arrived.
	OutcomeFailed Outcome = "failed"
)

// Entry is one recorded call. Batches are recorded once, with BatchSize set
// and Method listing the distinct methods.
type Entry struct {
	ID        int64         `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Command   string        `json:"command"`
	Method    string        `json:"method"`
	Endpoint  string        `json:"endpoint,omitempty"`
	BatchSize int           `json:"batch_size,omitempty"`
	Outcome   Outcome       `json:"outcome"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// ListOptions filters List results.
type ListOptions struct {
	Limit  int
	Method string
}

// MethodSummary aggregates entries for one method.
type MethodSummary struct {
	Method      string        `json:"method"`
	Calls       int           `json:"calls"`
	Failures    int           `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
	LastCalled  time.Time     `json:"last_called"`
}
