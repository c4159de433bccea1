// Package netconsole implements the outgoing textual diagnostics queue
// drained by the engine's netconsole socket once per tick.
package netconsole

import (
	"sync"

	"github.com/fieldlink/dscore/internal/events"
)

// DefaultCapacity is the soft cap used when a non-positive one is given.
const DefaultCapacity = 1024

// DefaultBatchSize bounds how many lines Drain returns per call, matching
// the spec's "drains at most one batch per tick" rule.
const DefaultBatchSize = 64

// Buffer is a FIFO of outgoing lines bounded by a soft cap, backed by a
// fixed-size ring so the backing array never grows past capacity. On
// overflow the oldest queued line is overwritten to make room for the
// newest.
type Buffer struct {
	mu        sync.Mutex
	lines     []string
	head      int
	count     int
	capacity  int
	batchSize int

	queue *events.Queue // optional; nil disables the appended-line event
}

// New returns an empty Buffer. A non-positive capacity or batchSize falls
// back to the package defaults. queue may be nil, in which case Append does
// not publish a NetConsoleLineAppended event.
func New(capacity, batchSize int, queue *events.Queue) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Buffer{lines: make([]string, capacity), capacity: capacity, batchSize: batchSize, queue: queue}
}

// Append enqueues line, overwriting the oldest queued line if the buffer is
// already at capacity, and publishes a NetConsoleLineAppended event.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	idx := (b.head + b.count) % b.capacity
	b.lines[idx] = line
	if b.count == b.capacity {
		b.head = (b.head + 1) % b.capacity
	} else {
		b.count++
	}
	b.mu.Unlock()

	if b.queue != nil {
		b.queue.Push(events.Event{Kind: events.NetConsoleLineAppended, Text: line})
	}
}

// Drain removes and returns up to one batch of the oldest queued lines.
func (b *Buffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n := b.batchSize
	if n > b.count {
		n = b.count
	}
	batch := make([]string, n)
	for i := 0; i < n; i++ {
		batch[i] = b.lines[(b.head+i)%b.capacity]
	}
	b.head = (b.head + n) % b.capacity
	b.count -= n
	return batch
}

// Len reports the number of queued lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
