package dispatch

import (
	"sync"

	"github.com/and161185/sendergate/internal/model"
)

// backlog is a bounded FIFO for tasks that could not be queued or persisted.
// When full, the oldest task is dropped.
type backlog struct {
	mu      sync.Mutex
	items   []model.Task
	max     int
	dropped int64
}

func newBacklog(max int) *backlog { return &backlog{max: max} }

// push appends t and returns the task evicted to make room, if any.
func (b *backlog) push(t model.Task) (model.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var (
		evicted model.Task
		ok      bool
	)
	if len(b.items) >= b.max {
		evicted, ok = b.items[0], true
		b.items = b.items[1:]
		b.dropped++
	}
	b.items = append(b.items, t)
	return evicted, ok
}

// pushFront returns a task that could not be flushed to the head of the line.
func (b *backlog) pushFront(ts []model.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(append([]model.Task(nil), ts...), b.items...)
	if over := len(b.items) - b.max; over > 0 {
		b.items = b.items[:b.max]
		b.dropped += int64(over)
	}
}

func (b *backlog) drain() []model.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	return out
}

func (b *backlog) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *backlog) droppedCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
