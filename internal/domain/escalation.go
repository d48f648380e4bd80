package domain

import "time"

type EscalationStatus string

const (
	EscalationStatusPending  EscalationStatus = "pending"
	EscalationStatusResolved EscalationStatus = "resolved"
)

// StrategyAttempt is one entry in the attempt log of an escalation.
type StrategyAttempt struct {
	Strategy string    `json:"strategy"`
	Error    string    `json:"error"`
	At       time.Time `json:"at"`
}

// EscalationRecord holds a (post, platform) pair that exhausted every
// automated strategy and is waiting for an operator.
type EscalationRecord struct {
	ID        string            `json:"id"`
	PostID    string            `json:"post_id"`
	Platform  string            `json:"platform"`
	Attempts  []StrategyAttempt `json:"attempts"`
	Status    EscalationStatus  `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	// Set on resolution.
	ExternalURL  string     `json:"external_url,omitempty"`
	OperatorNote string     `json:"operator_note,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}
