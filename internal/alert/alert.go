package alert

import "context"

// Severity ranks an alert. The taxonomy:
//
//	CRITICAL: all strategies exhausted for a platform, egress pool
//	          exhausted, persistent store unavailable
//	HIGH:     three consecutive failures on one platform, queue backlog
//	          beyond the configured age
//	MEDIUM:   rate limit encountered, single strategy failure
type Severity int

const (
	SeverityCritical Severity = iota
	SeverityHigh
	SeverityMedium
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	default:
		return "UNKNOWN"
	}
}

// Client fans an alert out to every configured channel. Fire-and-forget:
// Notify never blocks on delivery and a failing channel never surfaces to
// the caller.
type Client interface {
	Notify(severity Severity, message string, context map[string]string)
}

// Channel is one notification transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, severity Severity, message string, context map[string]string) error
}
