// Package statetable provides a time-indexed circular history of component data.
//
// A Table has one writer, the owning task, which updates live variables
// during its cycle and calls Advance to copy them into the next history slot.
// Any goroutine may read the history through an Accessor. Readers never see a
// half-written slot because Advance publishes under the table lock.
package statetable

import (
	"fmt"
	"sync"
	"time"

	"github.com/c360/mtscore/errors"
)

// DefaultHistoryLength is the number of slots kept when New is given a non-positive length.
const DefaultHistoryLength = 256

// Index identifies one history slot. Ticks is the Advance count that filled
// the slot, so an Index goes stale once the ring wraps over it.
type Index struct {
	Ticks uint64 `json:"ticks"`
	Slot  int    `json:"slot"`
}

type element interface {
	elementName() string
	capture(slot int)
	format(slot int) string
}

// Table is the state table. Create with New.
type Table struct {
	name    string
	history int

	mu       sync.RWMutex
	elements []element
	byName   map[string]element
	ticks    uint64
	tickAt   []uint64
	stamps   []time.Time
	next     int
	latest   int
	period   periodStats
	lastTime time.Time
}

// New creates a table keeping historyLength samples of every element.
func New(name string, historyLength int) *Table {
	if historyLength <= 0 {
		historyLength = DefaultHistoryLength
	}
	return &Table{
		name:    name,
		history: historyLength,
		byName:  make(map[string]element),
		tickAt:  make([]uint64, historyLength),
		stamps:  make([]time.Time, historyLength),
	}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// HistoryLength returns the number of slots in the ring.
func (t *Table) HistoryLength() int { return t.history }

// Ticks returns the number of completed Advance calls.
func (t *Table) Ticks() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ticks
}

// ElementNames returns element names in registration order.
func (t *Table) ElementNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, len(t.elements))
	for i, e := range t.elements {
		names[i] = e.elementName()
	}
	return names
}

// Advance copies every live variable into the next slot and stamps it.
// Only the owning task may call Advance.
func (t *Table) Advance() Index {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	slot := t.next
	for _, e := range t.elements {
		e.capture(slot)
	}
	t.ticks++
	t.tickAt[slot] = t.ticks
	t.stamps[slot] = now
	t.latest = slot
	t.next = (slot + 1) % t.history

	if !t.lastTime.IsZero() {
		t.period.add(now.Sub(t.lastTime))
	}
	t.lastTime = now

	return Index{Ticks: t.ticks, Slot: slot}
}

// IndexReader returns the index of the most recent sample. The zero Index
// means nothing has been recorded yet.
func (t *Table) IndexReader() Index {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.ticks == 0 {
		return Index{}
	}
	return Index{Ticks: t.ticks, Slot: t.latest}
}

// ValidIndex reports whether idx still refers to data in the ring.
func (t *Table) ValidIndex(idx Index) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.validLocked(idx)
}

func (t *Table) validLocked(idx Index) bool {
	if idx.Ticks == 0 || idx.Ticks > t.ticks || idx.Slot < 0 || idx.Slot >= t.history {
		return false
	}
	return t.tickAt[idx.Slot] == idx.Ticks
}

// Timestamp returns when the slot at idx was written.
func (t *Table) Timestamp(idx Index) (time.Time, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.validLocked(idx) {
		return time.Time{}, t.staleIndex("Timestamp", idx)
	}
	return t.stamps[idx.Slot], nil
}

func (t *Table) staleIndex(method string, idx Index) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: index %d/%d not in history of %s", errors.ErrNotFound, idx.Ticks, idx.Slot, t.name),
		"StateTable", method, "index lookup")
}

// delayed returns the index n advances before the latest one.
func (t *Table) delayedLocked(n int) (Index, bool) {
	if n < 0 || t.ticks == 0 || uint64(n) >= t.ticks || n >= t.history {
		return Index{}, false
	}
	slot := (t.latest - n + t.history) % t.history
	return Index{Ticks: t.ticks - uint64(n), Slot: slot}, true
}

// Accessor reads and writes one element of a Table.
type Accessor[T any] struct {
	table   *Table
	name    string
	live    *T
	history []T
}

// AddElement registers *live under name. The owning task writes *live; the
// value is copied into the history on every Advance.
func AddElement[T any](t *Table, name string, live *T) (*Accessor[T], error) {
	if live == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "StateTable", "AddElement", "nil element")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byName[name]; exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: element %s in table %s", errors.ErrDuplicateName, name, t.name),
			"StateTable", "AddElement", "element registration")
	}

	a := &Accessor[T]{
		table:   t,
		name:    name,
		live:    live,
		history: make([]T, t.history),
	}
	t.elements = append(t.elements, a)
	t.byName[name] = a
	return a, nil
}

func (a *Accessor[T]) elementName() string    { return a.name }
func (a *Accessor[T]) capture(slot int)       { a.history[slot] = *a.live }
func (a *Accessor[T]) format(slot int) string { return fmt.Sprint(a.history[slot]) }

// Name returns the element name.
func (a *Accessor[T]) Name() string { return a.name }

// Get returns the value stored at idx.
func (a *Accessor[T]) Get(idx Index) (T, error) {
	a.table.mu.RLock()
	defer a.table.mu.RUnlock()
	if !a.table.validLocked(idx) {
		var zero T
		return zero, a.table.staleIndex("Get", idx)
	}
	return a.history[idx.Slot], nil
}

// Latest returns the most recently recorded value.
func (a *Accessor[T]) Latest() (T, error) {
	return a.Delayed(0)
}

// Delayed returns the value recorded n advances ago.
func (a *Accessor[T]) Delayed(n int) (T, error) {
	a.table.mu.RLock()
	defer a.table.mu.RUnlock()
	idx, ok := a.table.delayedLocked(n)
	if !ok {
		var zero T
		return zero, errors.WrapInvalid(
			fmt.Errorf("%w: no sample %d back in %s", errors.ErrNotFound, n, a.table.name),
			"StateTable", "Delayed", a.name)
	}
	return a.history[idx.Slot], nil
}
