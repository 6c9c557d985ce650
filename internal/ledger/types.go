package ledger

import "time"

// Outcome is how a download request ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeFallback    Outcome = "fallback"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeFailed      Outcome = "failed"
)

// Entry is one recorded download attempt.
type Entry struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	Platform      string    `json:"platform"`
	RPMFamily     bool      `json:"rpm_family"`
	Mode          string    `json:"mode"`
	Artifact      string    `json:"artifact,omitempty"`
	DeliveredName string    `json:"delivered_name,omitempty"`
	Bytes         int64     `json:"bytes"`
	Outcome       Outcome   `json:"outcome"`
	Error         string    `json:"error,omitempty"`
}
