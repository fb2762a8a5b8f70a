package health

import (
	"regexp"
	"time"

	"github.com/c360/mtscore/component"
)

// Status levels.
const (
	LevelHealthy   = "healthy"
	LevelDegraded  = "degraded"
	LevelUnhealthy = "unhealthy"
)

// Status is the health of a component or of a whole process.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries the counters the monitor keeps per component.
type Metrics struct {
	Uptime       time.Duration `json:"uptime"`
	ErrorCount   int           `json:"error_count"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

func newStatus(component, level, message string) Status {
	return Status{
		Component: component,
		Healthy:   level == LevelHealthy,
		Status:    level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(component, LevelHealthy, message)
}

// NewDegraded creates a degraded status.
func NewDegraded(component, message string) Status {
	return newStatus(component, LevelDegraded, message)
}

// NewUnhealthy creates an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, LevelUnhealthy, message)
}

func (s Status) IsHealthy() bool   { return s.Status == LevelHealthy }
func (s Status) IsDegraded() bool  { return s.Status == LevelDegraded }
func (s Status) IsUnhealthy() bool { return s.Status == LevelUnhealthy }

// WithMetrics returns a copy of s carrying metrics.
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus returns a copy of s with sub appended. s itself is not
// modified.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)
	return s
}

// Aggregate rolls subs up into one status for component: unhealthy when
// any sub is unhealthy, otherwise degraded when any is degraded.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "No components")
	}
	worst := LevelHealthy
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			worst = LevelUnhealthy
		case sub.IsDegraded() && worst == LevelHealthy:
			worst = LevelDegraded
		}
	}

	var s Status
	switch worst {
	case LevelUnhealthy:
		s = NewUnhealthy(component, "One or more components are unhealthy")
	case LevelDegraded:
		s = NewDegraded(component, "One or more components are not active")
	default:
		s = NewHealthy(component, "All components active")
	}
	s.SubStatuses = append([]Status(nil), subs...)
	return s
}

// FromState maps a lifecycle state to a health status. Active components are
// healthy, Constructed and Ready ones are degraded and the rest unhealthy.
// A non-empty lastErr makes the status unhealthy and becomes its message
// once sanitized.
func FromState(name string, state component.State, lastErr string) Status {
	if lastErr != "" {
		return NewUnhealthy(name, sanitize(lastErr))
	}
	switch state {
	case component.StateActive:
		return NewHealthy(name, "Component active")
	case component.StateConstructed, component.StateReady:
		return NewDegraded(name, "Component "+state.String())
	default:
		return NewUnhealthy(name, "Component "+state.String())
	}
}

// Replacements applied in order; URLs go before paths since they contain
// them.
var redactions = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?:https?|nats|tls|wss?)://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
	{regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`), "[REDACTED]"},
}

// sanitize strips addresses, paths and credentials from an error message
// before it is served on /health.
func sanitize(msg string) string {
	for _, r := range redactions {
		msg = r.re.ReplaceAllString(msg, r.with)
	}
	return msg
}
