package smp

import (
	"sync"

	"smp-sched/internal/policy"
	"smp-sched/internal/task"
)

// CoreStat is a point-in-time view of one core.
type CoreStat struct {
	Core    int    `json:"core"`
	APICID  uint32 `json:"apic_id"`
	Domain  string `json:"domain"`
	Policy  string `json:"policy"`
	Load    int64  `json:"load"`
	Queued  int    `json:"queued"`
	Pending int    `json:"pending"`
	Current string `json:"current"`
}

func (s *System) Stats() []CoreStat {
	procs := s.Processors()
	out := make([]CoreStat, 0, len(procs))
	for _, p := range procs {
		active := p.Active()
		cur := "idle"
		if t, ok := s.arena.Get(p.Current()); ok {
			cur = t.Name()
		}
		out = append(out, CoreStat{
			Core:    p.id,
			APICID:  p.apicID,
			Domain:  p.leaf.String(),
			Policy:  active.String(),
			Load:    p.Load(active),
			Queued:  p.queues[active].Load(),
			Pending: p.requests.Len(),
			Current: cur,
		})
	}
	return out
}

// Verify checks every queue's ring and the tree's aggregate loads. Only
// meaningful while no core is running.
func (s *System) Verify() error {
	for _, p := range s.Processors() {
		for id := policy.ID(0); id < policy.Count; id++ {
			if err := p.queues[id].Verify(); err != nil {
				return err
			}
		}
	}
	for id := policy.ID(0); id < policy.Count; id++ {
		if err := s.tree.CheckConsistency(id); err != nil {
			return err
		}
	}
	return nil
}

// DispatchCounter is a Switcher that counts busy and idle ticks per core and
// dispatches per task.
type DispatchCounter struct {
	mu   sync.Mutex
	busy map[int]int64
	idle map[int]int64
	runs map[task.Handle]int64
}

var _ Switcher = (*DispatchCounter)(nil)

func NewDispatchCounter() *DispatchCounter {
	return &DispatchCounter{
		busy: make(map[int]int64),
		idle: make(map[int]int64),
		runs: make(map[task.Handle]int64),
	}
}

func (c *DispatchCounter) Switch(core int, _, next task.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next.IsNone() {
		c.idle[core]++
		return
	}
	c.busy[core]++
	c.runs[next]++
}

func (c *DispatchCounter) Busy(core int) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[core]
}

func (c *DispatchCounter) Idle(core int) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idle[core]
}

func (c *DispatchCounter) Runs(h task.Handle) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[h]
}
