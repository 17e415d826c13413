package webhook

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDebounce is the window during which consecutive webhook
// deliveries coalesce into one batch.
const DefaultDebounce = 50 * time.Millisecond

// Item is one queued webhook delivery.
type Item struct {
	Plugin  string
	Path    string
	Headers http.Header
	RawBody []byte
	Body    map[string]any
}

// BatchProcessor consumes one coalesced batch of webhook items.
type BatchProcessor func(batch []Item)

// Queue is a coalescing debounced queue. Each enqueue appends to the
// pending slice and resets the debounce timer; when the timer fires (or
// Flush is called) the pending slice is swapped out atomically and
// handed to the processor. Batches never overlap: an enqueue arriving
// during processing starts a new pending slice, and that slice gets its
// own full quiet period before it becomes the next batch.
type Queue struct {
	mu         sync.Mutex
	pending    []Item
	timer      *time.Timer
	processing bool
	deferred   bool
	closed     bool

	debounce time.Duration
	process  BatchProcessor
}

// NewQueue creates a queue driving the given processor. A zero debounce
// uses DefaultDebounce.
func NewQueue(debounce time.Duration, process BatchProcessor) *Queue {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Queue{debounce: debounce, process: process}
}

// Enqueue appends an item and arms (or re-arms) the debounce timer.
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, item)
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.debounce, q.fire)
}

// Flush forces an immediate swap of the pending slice, bypassing the
// debounce window. Used by tests and shutdown.
func (q *Queue) Flush() {
	q.fire()
}

// Pending returns the number of items waiting for the next batch.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the timer and drops pending work.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.pending = nil
}

// fire swaps the pending slice and runs the processor. A fire landing
// mid-batch is deferred, not absorbed: the new items keep their own
// debounce window, re-armed once the running batch finishes.
func (q *Queue) fire() {
	q.mu.Lock()
	if q.closed || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	if q.processing {
		q.deferred = true
		q.mu.Unlock()
		return
	}
	q.processing = true
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	go q.run(batch)
}

// run processes one batch, then re-arms the timer if a fire was
// deferred while the batch was in flight.
func (q *Queue) run(batch []Item) {
	batchID := uuid.New().String()[:8]
	slog.Debug("processing webhook batch", "batch", batchID, "items", len(batch))
	q.process(batch)

	q.mu.Lock()
	q.processing = false
	if q.deferred && !q.closed && len(q.pending) > 0 {
		if q.timer != nil {
			q.timer.Stop()
		}
		q.timer = time.AfterFunc(q.debounce, q.fire)
	}
	q.deferred = false
	q.mu.Unlock()
}
