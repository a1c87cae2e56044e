package ipi

import (
	"sync"

	"smp-sched/internal/policy"
	"smp-sched/internal/task"
	"smp-sched/internal/topology"

	"github.com/google/uuid"
)

// RequestPool recycles request objects. A request is taken by the sender
// and released by the core that processed it, so Get and Release for the
// same object usually happen on different cores.
type RequestPool struct {
	accept   sync.Pool
	renounce sync.Pool
}

func NewRequestPool() *RequestPool {
	return &RequestPool{
		accept:   sync.Pool{New: func() any { return new(AcceptTasks) }},
		renounce: sync.Pool{New: func() any { return new(RenounceTasks) }},
	}
}

func (p *RequestPool) Accept(id policy.ID, tasks task.List) *AcceptTasks {
	r := p.accept.Get().(*AcceptTasks)
	*r = AcceptTasks{id: uuid.New(), Policy: id, Tasks: tasks}
	return r
}

func (p *RequestPool) Renounce(id policy.ID, donor, taker *topology.Domain, src, dst int) *RenounceTasks {
	r := p.renounce.Get().(*RenounceTasks)
	*r = RenounceTasks{id: uuid.New(), Policy: id, Donor: donor, Taker: taker, Src: src, Dst: dst}
	return r
}

// Release returns r to the pool. r must not be used afterwards.
func (p *RequestPool) Release(r Request) {
	switch r := r.(type) {
	case *AcceptTasks:
		*r = AcceptTasks{}
		p.accept.Put(r)
	case *RenounceTasks:
		*r = RenounceTasks{}
		p.renounce.Put(r)
	}
}
