// Package alert holds the bounded, in-process record of recent control alerts.
package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is used when NewBuffer is given a non-positive capacity.
const DefaultCapacity = 100

// Alert is a human-readable notice raised by the control engine when a
// violation persists with the corrective actuator already engaged.
type Alert struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an alert with a fresh ID.
func New(message string, at time.Time) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Message:   message,
		Timestamp: at,
	}
}

// Buffer is a fixed-capacity ring of alerts. Once full, each Add discards
// the oldest entry. Safe for concurrent use.
type Buffer struct {
	mu    sync.RWMutex
	items []Alert
	start int // index of the oldest entry once the ring is full
	total uint64
}

// NewBuffer creates an empty buffer holding at most capacity alerts.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{items: make([]Alert, 0, capacity)}
}

// Add appends an alert, evicting the oldest when the buffer is full.
func (b *Buffer) Add(a Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	if len(b.items) < cap(b.items) {
		b.items = append(b.items, a)
		return
	}
	b.items[b.start] = a
	b.start = (b.start + 1) % len(b.items)
}

// Recent returns up to n of the newest alerts, oldest first. A
// non-positive n, or one larger than Len, returns everything held.
func (b *Buffer) Recent(n int) []Alert {
	b.mu.RLock()
	defer b.mu.RUnlock()

	size := len(b.items)
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Alert, n)
	first := size - n
	for i := range n {
		out[i] = b.items[(b.start+first+i)%size]
	}
	return out
}

// Len returns how many alerts are currently held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Capacity returns the maximum number of alerts held.
func (b *Buffer) Capacity() int {
	return cap(b.items)
}

// Total returns how many alerts were ever added, including evicted ones.
func (b *Buffer) Total() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}
