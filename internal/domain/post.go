package domain

import "time"

// PriorityClass orders posts in the distribution queue. Lower sorts first.
type PriorityClass int

const (
	PriorityBreaking PriorityClass = iota
	PriorityUrgent
	PriorityNormal
	PriorityScheduled
)

func (p PriorityClass) String() string {
	switch p {
	case PriorityBreaking:
		return "breaking"
	case PriorityUrgent:
		return "urgent"
	case PriorityNormal:
		return "normal"
	case PriorityScheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// Preempts reports whether a post of this class cancels in-flight
// lower-priority work when it arrives.
func (p PriorityClass) Preempts() bool {
	return p == PriorityBreaking
}

// BypassesThrottle reports whether this class skips the inter-post spacing
// gate. Breaking posts never wait, but they still record a throttle
// timestamp so later posts respect the new baseline.
func (p PriorityClass) BypassesThrottle() bool {
	return p == PriorityBreaking
}

type PostStatus string

const (
	PostStatusPending    PostStatus = "pending"
	PostStatusInProgress PostStatus = "in_progress"
	PostStatusCompleted  PostStatus = "completed"
	PostStatusFailed     PostStatus = "failed"
	PostStatusEscalated  PostStatus = "escalated"
)

// Post is one piece of content distributed to a set of platforms.
type Post struct {
	ID          string
	Platforms   []string
	ContentRef  string
	Title       string
	Description string
	Tags        []string
	// ScheduleAt nil means "as soon as throttling allows".
	ScheduleAt *time.Time
	Priority   PriorityClass
	Status     PostStatus
	Attempt    int
	// Outcomes holds the current outcome per platform. Superseded attempts
	// live only in the append-only platform_outcomes record set.
	Outcomes  map[string]*PlatformOutcome
	CreatedAt time.Time
}

// SucceededOn reports whether the platform already has a successful outcome,
// so a requeued post never re-attempts it.
func (p *Post) SucceededOn(platform string) bool {
	o, ok := p.Outcomes[platform]
	return ok && o.Success
}

// RemainingPlatforms returns the target platforms without a successful
// outcome yet, in declaration order.
func (p *Post) RemainingPlatforms() []string {
	var out []string
	for _, pl := range p.Platforms {
		if !p.SucceededOn(pl) {
			out = append(out, pl)
		}
	}
	return out
}

// PlatformOutcome records the terminal result of one cascade run for one
// (post, platform) pair. Records are immutable once written; a retry appends
// a new record with a higher Attempt.
type PlatformOutcome struct {
	ID         int
	PostID     string
	Platform   string
	Strategy   string
	StrategyIx int
	Success    bool
	Escalated  bool
	ExternalID string
	ErrorDetail string
	Attempt    int
	RecordedAt time.Time
}
