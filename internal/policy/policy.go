// Package policy defines the per-core scheduling policy contract and the
// policies that implement it. The set is closed: New knows every ID.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"smp-sched/internal/task"
)

// ID indexes per-policy state (queues, domain loads, balance ticks).
type ID int

const (
	RoundRobin ID = iota

	// Count is the number of policies; arrays keyed by ID use it as length.
	Count
)

var (
	ErrUnknownPolicy = errors.New("unknown scheduling policy")
	ErrNotNext       = errors.New("task is not the next to be dispatched")
	ErrNotQueued     = errors.New("task is not queued on this core")
	ErrAlreadyQueued = errors.New("task is already queued")
)

func (id ID) String() string {
	switch id {
	case RoundRobin:
		return "round_robin"
	}
	return fmt.Sprintf("policy(%d)", int(id))
}

func ParseID(s string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rr", "round_robin", "round-robin":
		return RoundRobin, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Core is the per-core context every policy call runs against. It is always
// the core whose queue is being operated on.
type Core interface {
	ID() int
	// Current is the task executing on this core, task.None when idle.
	Current() task.Handle
	// ToggleLoad propagates a change of this core's load to its domains.
	ToggleLoad(id ID, delta int)
	// Balance runs the runqueue balancer for id from this core.
	Balance(id ID, now int64)
}

// Policy is one core's queue for one scheduling policy.
//
// Add and Remove are only called outside interrupt context. Send and Receive
// run on the owning core, from its interrupt handler.
type Policy interface {
	ID() ID
	// Add inserts a brand-new task.
	Add(c Core, h task.Handle) error
	// Allocate picks the next task when the previous tick ran another policy.
	Allocate(c Core, now int64) task.Handle
	// Update picks the next task when the previous tick ran this policy and
	// may trigger the balancer.
	Update(c Core, now int64) task.Handle
	// Free checkpoints state before the core switches to another policy.
	Free(c Core, now int64)
	// Remove permanently deletes a task from the queue.
	Remove(c Core, h task.Handle) error
	// Send detaches up to requested load worth of tasks, never the one
	// executing on c, returning them as an isolated ring and the amount moved.
	Send(c Core, target int, requested int) (task.List, int)
	// Receive splices an incoming ring into the queue.
	Receive(c Core, in task.List, load int)
	// Load is the runnable load currently queued.
	Load() int
	// Verify checks the queue's structural invariants.
	Verify() error
}

// New returns an empty queue for id.
func New(id ID, arena *task.Arena) (Policy, error) {
	switch id {
	case RoundRobin:
		return NewRoundRobin(arena), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownPolicy, int(id))
}
