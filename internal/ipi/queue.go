package ipi

import (
	"smp-sched/internal/spin"

	"github.com/eapache/queue"
)

// Queue is one core's pending-request list. Any core may Push; only the
// owner Pops, from its interrupt handler.
type Queue struct {
	mu      spin.Lock
	pending *queue.Queue
}

func NewQueue() *Queue {
	return &Queue{pending: queue.New()}
}

func (q *Queue) Push(r Request) {
	q.mu.Lock()
	q.pending.Add(r)
	q.mu.Unlock()
}

// Pop returns the oldest pending request, or nil when the queue is empty.
func (q *Queue) Pop() Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending.Length() == 0 {
		return nil
	}
	return q.pending.Remove().(Request)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Length()
}
