// Package queue provides the bounded, stable priority queue that feeds idle terminals.
//
// Lower priority values are drained first. Within a band, new arrivals are FIFO and
// tasks returned after a failed attempt re-enter ahead of every new arrival (FIFO
// among themselves), so in-flight work is not starved.
package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"termpool/internal/model"
)

var (
	// ErrQueueFull is matched by *QueueFullError via errors.Is
	ErrQueueFull = errors.New("queue full")
	// ErrDuplicateTask task id already queued
	ErrDuplicateTask = errors.New("task already queued")
)

// QueueFullError rejected enqueue past the configured capacity
type QueueFullError struct {
	TaskID   string
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("queue full: capacity %d reached, task %s rejected", e.Capacity, e.TaskID)
}

// Is makes errors.Is(err, ErrQueueFull) work
func (e *QueueFullError) Is(target error) bool {
	return target == ErrQueueFull
}

// band FIFO for one priority; the first `requeued` entries are re-entries
type band struct {
	items    []*model.Task
	requeued int
}

func (b *band) removeAt(i int) *model.Task {
	t := b.items[i]
	copy(b.items[i:], b.items[i+1:])
	b.items[len(b.items)-1] = nil
	b.items = b.items[:len(b.items)-1]
	if i < b.requeued {
		b.requeued--
	}
	return t
}

// TaskQueue bounded stable priority queue, safe for concurrent use
type TaskQueue struct {
	mu         sync.Mutex
	capacity   int
	bands      map[int]*band
	priorities []int          // ascending, only non-empty bands
	index      map[string]int // task id -> priority
}

// New creates a queue; capacity <= 0 means unbounded
func New(capacity int) *TaskQueue {
	return &TaskQueue{
		capacity: capacity,
		bands:    make(map[int]*band),
		index:    make(map[string]int),
	}
}

// Enqueue appends task to the back of its priority band
func (q *TaskQueue) Enqueue(task *model.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[task.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}
	if q.capacity > 0 && len(q.index) >= q.capacity {
		return &QueueFullError{TaskID: task.ID, Capacity: q.capacity}
	}

	b := q.bandFor(task.Priority)
	b.items = append(b.items, task)
	q.index[task.ID] = task.Priority
	return nil
}

// Requeue puts a previously failed task ahead of all new arrivals in its band.
// Re-entries are not subject to the capacity bound: the task already held a slot.
func (q *TaskQueue) Requeue(task *model.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[task.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
	}

	b := q.bandFor(task.Priority)
	pos := b.requeued
	b.items = append(b.items, nil)
	copy(b.items[pos+1:], b.items[pos:])
	b.items[pos] = task
	b.requeued++
	q.index[task.ID] = task.Priority
	return nil
}

// Dequeue removes and returns the next task, or false when empty
func (q *TaskQueue) Dequeue() (*model.Task, bool) {
	return q.DequeueMatch(nil)
}

// DequeueMatch removes and returns the first task in dequeue order accepted by
// match. Tasks skipped by match keep their position.
func (q *TaskQueue) DequeueMatch(match func(*model.Task) bool) (*model.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range q.priorities {
		b := q.bands[p]
		for i, t := range b.items {
			if match != nil && !match(t) {
				continue
			}
			b.removeAt(i)
			delete(q.index, t.ID)
			q.pruneBand(p)
			return t, true
		}
	}
	return nil, false
}

// Remove drops a queued task by id
func (q *TaskQueue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.index[taskID]
	if !ok {
		return false
	}
	b := q.bands[p]
	for i, t := range b.items {
		if t.ID == taskID {
			b.removeAt(i)
			break
		}
	}
	delete(q.index, taskID)
	q.pruneBand(p)
	return true
}

// Contains reports whether the task is queued
func (q *TaskQueue) Contains(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[taskID]
	return ok
}

// Len number of queued tasks
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.index)
}

// Capacity configured bound, 0 when unbounded
func (q *TaskQueue) Capacity() int {
	return q.capacity
}

// Snapshot returns queued tasks in dequeue order
func (q *TaskQueue) Snapshot() []*model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*model.Task, 0, len(q.index))
	for _, p := range q.priorities {
		out = append(out, q.bands[p].items...)
	}
	return out
}

func (q *TaskQueue) bandFor(priority int) *band {
	b, ok := q.bands[priority]
	if ok {
		return b
	}
	b = &band{}
	q.bands[priority] = b
	i := sort.SearchInts(q.priorities, priority)
	q.priorities = append(q.priorities, 0)
	copy(q.priorities[i+1:], q.priorities[i:])
	q.priorities[i] = priority
	return b
}

func (q *TaskQueue) pruneBand(priority int) {
	b := q.bands[priority]
	if b == nil || len(b.items) > 0 {
		return
	}
	delete(q.bands, priority)
	i := sort.SearchInts(q.priorities, priority)
	if i < len(q.priorities) && q.priorities[i] == priority {
		q.priorities = append(q.priorities[:i], q.priorities[i+1:]...)
	}
}
