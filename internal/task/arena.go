// Package task holds schedulable units in a generation-checked slot map and
// provides the ring primitives the per-core runqueues are built from.
//
// Ring links are plain handles, not pointers. A task's links are only touched
// by the core that currently owns the ring it sits in, under that ring's lock;
// ownership moves between cores through the IPI request queue, which orders
// the hand-off.
package task

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	pageBits = 8
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
)

// NoCore marks a task that is not owned by any core, either because it has not
// been added yet or because it is in transit between cores.
const NoCore = -1

var (
	ErrStaleHandle = errors.New("stale or unknown task handle")
	ErrQueued      = errors.New("task is still linked into a ring")
)

// Handle identifies a task. The zero Handle refers to nothing.
type Handle struct {
	index uint32
	gen   uint32
}

// None is the zero Handle.
var None Handle

func (h Handle) IsNone() bool { return h.gen == 0 }

func (h Handle) String() string {
	if h.IsNone() {
		return "task(none)"
	}
	return fmt.Sprintf("task(%d.%d)", h.index, h.gen)
}

// Task is one slot of the arena.
type Task struct {
	gen     atomic.Uint32
	live    atomic.Bool
	core    atomic.Int32
	lastRun atomic.Int64
	name    string

	next   Handle
	prev   Handle
	queued bool
}

func (t *Task) Name() string   { return t.name }
func (t *Task) Core() int      { return int(t.core.Load()) }
func (t *Task) LastRun() int64 { return t.lastRun.Load() }
func (t *Task) Queued() bool   { return t.queued }

func (t *Task) SetCore(core int)       { t.core.Store(int32(core)) }
func (t *Task) SetLastRun(tick int64) { t.lastRun.Store(tick) }

type page [pageSize]Task

// Arena is the slot map all cores allocate tasks from. Lookups are lock-free;
// pages never move once published.
type Arena struct {
	mu    sync.Mutex // guards growth and the free list
	pages atomic.Pointer[[]*page]
	free  []uint32
	next  uint32
	live  atomic.Int64
}

func NewArena() *Arena {
	a := &Arena{}
	empty := make([]*page, 0)
	a.pages.Store(&empty)
	return a
}

// New allocates a task in the unqueued state.
func (a *Arena) New(name string) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = a.next
		a.next++
		pages := *a.pages.Load()
		if int(idx>>pageBits) >= len(pages) {
			grown := make([]*page, len(pages), len(pages)+1)
			copy(grown, pages)
			grown = append(grown, new(page))
			a.pages.Store(&grown)
		}
	}

	t := a.slot(idx)
	gen := t.gen.Load()
	if gen == 0 {
		gen = 1
		t.gen.Store(gen)
	}
	t.name = name
	t.next, t.prev = None, None
	t.queued = false
	t.core.Store(NoCore)
	t.lastRun.Store(0)
	t.live.Store(true)
	a.live.Add(1)
	return Handle{index: idx, gen: gen}
}

// Free releases a task. It must already be out of every ring.
func (a *Arena) Free(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.Get(h)
	if !ok {
		return fmt.Errorf("free %s: %w", h, ErrStaleHandle)
	}
	if t.queued {
		return fmt.Errorf("free %s: %w", h, ErrQueued)
	}
	t.live.Store(false)
	if t.gen.Add(1) == 0 {
		t.gen.Store(1)
	}
	a.free = append(a.free, h.index)
	a.live.Add(-1)
	return nil
}

// Get returns the task behind h if h is still current.
func (a *Arena) Get(h Handle) (*Task, bool) {
	if h.IsNone() {
		return nil, false
	}
	pages := *a.pages.Load()
	p := int(h.index >> pageBits)
	if p >= len(pages) {
		return nil, false
	}
	t := &pages[p][h.index&pageMask]
	if !t.live.Load() || t.gen.Load() != h.gen {
		return nil, false
	}
	return t, true
}

func (a *Arena) Valid(h Handle) bool {
	_, ok := a.Get(h)
	return ok
}

// Live is the number of allocated tasks.
func (a *Arena) Live() int { return int(a.live.Load()) }

func (a *Arena) slot(idx uint32) *Task {
	pages := *a.pages.Load()
	return &pages[idx>>pageBits][idx&pageMask]
}

func (a *Arena) must(h Handle) *Task {
	t, ok := a.Get(h)
	if !ok {
		panic(fmt.Sprintf("task: ring references %s", h))
	}
	return t
}
