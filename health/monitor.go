package health

import (
	"sort"
	"sync"
	"time"

	"github.com/c360/mtscore/component"
)

// Monitor tracks the health of the components of a process. It is fed by
// lifecycle transitions (ObserveState) and by failures (RecordError).
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	tracked  map[string]*tracked
}

type tracked struct {
	state       component.State
	activeSince time.Time
	errors      int
	lastError   string
	lastChange  time.Time
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		tracked:  make(map[string]*tracked),
	}
}

// Update sets the status of name directly.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateLocked(name, status)
}

func (m *Monitor) updateLocked(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// ObserveState records a lifecycle transition. Its signature matches
// component.StateListener so it can be registered on a manager.
func (m *Monitor) ObserveState(name string, _, to component.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.track(name)
	now := time.Now()
	if to == component.StateActive && t.state != component.StateActive {
		t.activeSince = now
	}
	t.state, t.lastChange = to, now
	// a component that made it back to Active has recovered
	if to == component.StateActive {
		t.lastError = ""
	}
	m.refreshLocked(name, t)
}

// RecordError counts a failure of name and marks it unhealthy until its next
// transition to Active.
func (m *Monitor) RecordError(name string, err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.track(name)
	t.errors++
	t.lastError = err.Error()
	t.lastChange = time.Now()
	m.refreshLocked(name, t)
}

func (m *Monitor) track(name string) *tracked {
	t, ok := m.tracked[name]
	if !ok {
		t = &tracked{}
		m.tracked[name] = t
	}
	return t
}

func (m *Monitor) refreshLocked(name string, t *tracked) {
	s := FromState(name, t.state, t.lastError)
	metrics := &Metrics{ErrorCount: t.errors, LastActivity: t.lastChange}
	if t.state == component.StateActive {
		metrics.Uptime = time.Since(t.activeSince)
	}
	m.updateLocked(name, s.WithMetrics(metrics))
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, exists := m.statuses[name]
	return status, exists
}

// GetAll returns a copy of all current health statuses
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]Status, len(m.statuses))
	for name, status := range m.statuses {
		result[name] = status
	}
	return result
}

// Remove stops tracking name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.tracked, name)
}

// AggregateHealth returns the health of the whole process, sub-statuses
// ordered by component name.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	m.mu.RUnlock()

	sort.Slice(subStatuses, func(i, j int) bool { return subStatuses[i].Component < subStatuses[j].Component })
	return Aggregate(systemName, subStatuses)
}

// ListComponents returns the sorted names of all monitored components.
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses)
}
