package policy

import (
	"fmt"

	"smp-sched/internal/spin"
	"smp-sched/internal/task"
)

// RoundRobinQueue dispatches its ring in order, one task per tick.
//
// main is the ring head new tasks are inserted in front of, mostRecent the
// last task actually dispatched. Load is the number of queued tasks.
type RoundRobinQueue struct {
	arena *task.Arena

	mu         spin.Lock
	main       task.Handle
	mostRecent task.Handle
	count      int
	checkpoint int64
}

var _ Policy = (*RoundRobinQueue)(nil)

func NewRoundRobin(arena *task.Arena) *RoundRobinQueue {
	return &RoundRobinQueue{arena: arena}
}

func (q *RoundRobinQueue) ID() ID { return RoundRobin }

func (q *RoundRobinQueue) Add(c Core, h task.Handle) error {
	t, ok := q.arena.Get(h)
	if !ok {
		return fmt.Errorf("add %s: %w", h, task.ErrStaleHandle)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if t.Queued() {
		return fmt.Errorf("add %s: %w", h, ErrAlreadyQueued)
	}
	if q.count == 0 {
		q.arena.LinkSelf(h)
	} else {
		q.arena.InsertBefore(q.main, h)
	}
	q.main = h
	q.count++
	t.SetCore(c.ID())
	c.ToggleLoad(RoundRobin, 1)
	return nil
}

func (q *RoundRobinQueue) Allocate(_ Core, _ int64) task.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextLocked()
}

func (q *RoundRobinQueue) Update(c Core, now int64) task.Handle {
	q.mu.Lock()
	q.markCurrentLocked(c)
	next := q.nextLocked()
	q.mu.Unlock()

	c.Balance(RoundRobin, now)
	return next
}

func (q *RoundRobinQueue) Free(c Core, now int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.markCurrentLocked(c)
	q.checkpoint = now
}

// Checkpoint is the tick of the last Free.
func (q *RoundRobinQueue) Checkpoint() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.checkpoint
}

// Remove only accepts the task the queue would dispatch next.
func (q *RoundRobinQueue) Remove(c Core, h task.Handle) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return fmt.Errorf("remove %s: %w", h, ErrNotQueued)
	}
	if next := q.nextLocked(); h != next {
		return fmt.Errorf("remove %s (next is %s): %w", h, next, ErrNotNext)
	}

	after := q.arena.Unlink(h)
	q.count--
	if q.count == 0 {
		q.main, q.mostRecent = task.None, task.None
	} else {
		if q.main == h {
			q.main = after
		}
		if q.mostRecent == h {
			q.mostRecent = task.None
		}
	}
	if t, ok := q.arena.Get(h); ok {
		t.SetCore(task.NoCore)
	}
	c.ToggleLoad(RoundRobin, -1)
	return nil
}

// Send walks forward from main cutting out up to requested tasks. The task
// executing on c is stepped over and stays behind.
func (q *RoundRobinQueue) Send(c Core, _ int, requested int) (task.List, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if requested <= 0 || q.count == 0 {
		return task.List{}, 0
	}
	running := c.Current()

	picked := make([]task.Handle, 0, min(requested, q.count))
	q.arena.Walk(q.main, q.count, func(h task.Handle, _ *task.Task) bool {
		if h != running {
			picked = append(picked, h)
		}
		return len(picked) < requested
	})
	if len(picked) == 0 {
		return task.List{}, 0
	}

	mainSent := false
	var after task.Handle
	for _, h := range picked {
		if h == q.main {
			mainSent = true
		}
		if h == q.mostRecent {
			q.mostRecent = task.None
		}
		after = q.arena.Unlink(h)
	}
	q.count -= len(picked)
	if q.count == 0 {
		q.main, q.mostRecent = task.None, task.None
	} else if mainSent {
		q.main = after
	}

	out := q.arena.Chain(picked)
	for _, h := range picked {
		if t, ok := q.arena.Get(h); ok {
			t.SetCore(task.NoCore)
		}
	}
	c.ToggleLoad(RoundRobin, -len(picked))
	return out, len(picked)
}

func (q *RoundRobinQueue) Receive(c Core, in task.List, load int) {
	if in.Empty() {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.arena.Walk(in.First, in.Count, func(_ task.Handle, t *task.Task) bool {
		t.SetCore(c.ID())
		return true
	})
	if q.count == 0 {
		q.main = in.First
	} else {
		q.arena.Splice(q.main, in)
	}
	q.count += in.Count
	c.ToggleLoad(RoundRobin, load)
}

func (q *RoundRobinQueue) Load() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *RoundRobinQueue) Verify() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.arena.Verify(q.main, q.count); err != nil {
		return err
	}
	if !q.mostRecent.IsNone() {
		found := false
		q.arena.Walk(q.main, q.count, func(h task.Handle, _ *task.Task) bool {
			found = h == q.mostRecent
			return !found
		})
		if !found {
			return fmt.Errorf("most recent %s is not in the ring", q.mostRecent)
		}
	}
	return nil
}

// Main is the ring head.
func (q *RoundRobinQueue) Main() task.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.main
}

// MostRecent is the last task recorded as dispatched.
func (q *RoundRobinQueue) MostRecent() task.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mostRecent
}

// Tasks returns the ring in order starting at main.
func (q *RoundRobinQueue) Tasks() []task.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.arena.Members(q.main, q.count)
}

// nextLocked is the task Allocate would return.
func (q *RoundRobinQueue) nextLocked() task.Handle {
	if q.count == 0 {
		return task.None
	}
	if q.mostRecent.IsNone() {
		return q.main
	}
	return q.arena.Next(q.mostRecent)
}

// markCurrentLocked records the running task as dispatched if it still
// belongs to this queue.
func (q *RoundRobinQueue) markCurrentLocked(c Core) {
	cur := c.Current()
	if t, ok := q.arena.Get(cur); ok && t.Queued() && t.Core() == c.ID() {
		q.mostRecent = cur
	}
}
