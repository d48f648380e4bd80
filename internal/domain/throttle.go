package domain

import "time"

// ThrottleState is the last successful post timestamp for one platform.
type ThrottleState struct {
	Platform   string
	LastPostAt time.Time
}
