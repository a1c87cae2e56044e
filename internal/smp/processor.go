package smp

import (
	"smp-sched/internal/ipi"
	"smp-sched/internal/policy"
	"smp-sched/internal/spin"
	"smp-sched/internal/task"
	"smp-sched/internal/topology"
)

// Processor is one core: its queues, its leaf in the topology tree and the
// inbox other cores post requests to. Everything except the inbox is only
// touched by the core's own thread of control.
type Processor struct {
	sys    *System
	id     int
	apicID uint32
	leaf   *topology.Domain

	queues   [policy.Count]policy.Policy
	requests *ipi.Queue

	mu      spin.Lock // guards the fields below for readers on other cores
	current task.Handle
	active  policy.ID
	last    policy.ID
	ticked  bool
}

var _ policy.Core = (*Processor)(nil)

func (p *Processor) ID() int                          { return p.id }
func (p *Processor) APICID() uint32                   { return p.apicID }
func (p *Processor) Leaf() *topology.Domain           { return p.leaf }
func (p *Processor) Requests() *ipi.Queue             { return p.requests }
func (p *Processor) Queue(id policy.ID) policy.Policy { return p.queues[id] }

func (p *Processor) Current() task.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Active is the policy the next tick dispatches from.
func (p *Processor) Active() policy.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Processor) ToggleLoad(id policy.ID, delta int) {
	topology.ToggleLoad(p.leaf, id, int64(delta), p.sys.maxHops)
}

func (p *Processor) Balance(id policy.ID, now int64) {
	p.sys.BalanceWork(p, id, now)
}

// Load is the core's queued load for id as seen by the topology tree.
func (p *Processor) Load(id policy.ID) int64 { return p.leaf.Load(id) }

func (p *Processor) setActive(id policy.ID) {
	p.mu.Lock()
	p.active = id
	p.mu.Unlock()
}

// tick runs one scheduling decision and returns the task chosen to run.
func (p *Processor) tick(now int64) (prev, next task.Handle) {
	p.mu.Lock()
	active, last, ticked, prev := p.active, p.last, p.ticked, p.current
	p.mu.Unlock()

	q := p.queues[active]
	if ticked && last == active {
		next = q.Update(p, now)
	} else {
		if ticked {
			p.queues[last].Free(p, now)
		}
		next = q.Allocate(p, now)
	}

	if t, ok := p.sys.arena.Get(next); ok {
		t.SetLastRun(now)
	}
	p.mu.Lock()
	p.current, p.last, p.ticked = next, active, true
	p.mu.Unlock()
	return prev, next
}
