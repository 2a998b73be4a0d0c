package recorder

import (
	"sync"

	audit "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit"
)

// OverflowPolicy decides which record is lost when the queue is full.
type OverflowPolicy string

const (
	// DropOldest evicts the oldest queued record to admit the new one.
	DropOldest OverflowPolicy = "drop-oldest"
	// DropNewest rejects the incoming record.
	DropNewest OverflowPolicy = "drop-newest"
)

// ParseOverflowPolicy accepts "drop-oldest" and "drop-newest".
func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	switch OverflowPolicy(s) {
	case DropOldest, DropNewest:
		return OverflowPolicy(s), true
	default:
		return "", false
	}
}

// ringBuffer is a bounded, thread-safe FIFO of pending records.
type ringBuffer struct {
	mu       sync.Mutex
	records  []audit.Record
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int
	policy   OverflowPolicy
}

func newRingBuffer(capacity int, policy OverflowPolicy) *ringBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	if policy == "" {
		policy = DropOldest
	}
	return &ringBuffer{
		records:  make([]audit.Record, capacity),
		capacity: capacity,
		policy:   policy,
	}
}

// enqueue adds a record. When the buffer is full it applies the overflow
// policy and returns the record that was lost.
func (b *ringBuffer) enqueue(record audit.Record) (dropped audit.Record, didDrop bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		if b.policy == DropNewest {
			return record, true
		}
		dropped = b.records[b.tail]
		b.records[b.tail] = audit.Record{}
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		didDrop = true
	}

	b.records[b.head] = record
	b.head = (b.head + 1) % b.capacity
	b.count++
	return dropped, didDrop
}

// dequeue removes the oldest record.
func (b *ringBuffer) dequeue() (audit.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return audit.Record{}, false
	}
	record := b.records[b.tail]
	b.records[b.tail] = audit.Record{}
	b.tail = (b.tail + 1) % b.capacity
	b.count--
	return record, true
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
