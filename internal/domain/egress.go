package domain

import "time"

type EgressState string

const (
	EgressStateUnknown  EgressState = "unknown"
	EgressStateVerified EgressState = "verified_working"
	EgressStateFailed   EgressState = "failed"
)

// EgressPath is one alternate network route to a geo-restricted platform.
// State is mutated only by the egress pool, under the path's own lock.
type EgressPath struct {
	Name        string
	Region      string
	ProxyURL    string
	State       EgressState
	LastChecked time.Time
}
