// Package buffer provides a generic, thread-safe bounded ring with overflow policies.
//
// The ring backs two things in mtscore: mailboxes (Reject policy, so a full
// queue surfaces errors.ErrQueueFull to the producer) and sample histories
// (DropOldest policy, so the newest samples always win).
//
// Statistics are always collected. Prometheus export is optional via WithMetrics.
package buffer

// Buffer is a bounded FIFO of items of type T.
type Buffer[T any] interface {
	// Write adds an item. Behavior when full depends on the overflow policy.
	Write(item T) error

	// Read removes and returns the oldest item.
	Read() (T, bool)

	// ReadBatch removes up to max items, oldest first.
	ReadBatch(max int) []T

	// Peek returns the oldest item without removing it.
	Peek() (T, bool)

	// Snapshot copies the buffered items, oldest first, without removing them.
	Snapshot() []T

	Size() int
	Capacity() int
	IsFull() bool
	IsEmpty() bool

	// Clear removes all items, invoking the drop callback for each.
	Clear()

	Stats() *Statistics

	// Close rejects further writes. Buffered items stay readable.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// Reject fails the write with errors.ErrQueueFull.
	Reject OverflowPolicy = iota

	// DropOldest removes the oldest item to make room for the new one.
	DropOldest

	// DropNewest silently discards the new item.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case Reject:
		return "Reject"
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item discarded by the overflow policy or Clear.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Capacity below one is raised to one. Returns an error only when metric
// registration fails.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
