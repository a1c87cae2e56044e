// Package smp wires processors, the topology tree and the request protocol
// into the per-core scheduling entry points: Tick for the timer,
// HandleInterrupt for the interrupt layer, Add and Remove for task lifecycle.
package smp

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"smp-sched/internal/host"
	"smp-sched/internal/ipi"
	"smp-sched/internal/logging"
	"smp-sched/internal/policy"
	"smp-sched/internal/task"
	"smp-sched/internal/topology"

	"github.com/sirupsen/logrus"
)

var ErrUnknownCore = errors.New("unknown core")

// DefaultBalanceInterval is the base backoff, in ticks, between two balance
// passes over the same domain.
const DefaultBalanceInterval = 4

// Switcher installs the chosen task on a core after each tick.
type Switcher interface {
	Switch(core int, prev, next task.Handle)
}

type nopSwitcher struct{}

func (nopSwitcher) Switch(int, task.Handle, task.Handle) {}

type Options struct {
	Decoder         host.Decoder
	Interrupter     ipi.Interrupter
	Switcher        Switcher
	BalanceInterval int64
	// MaxHops bounds load propagation above a leaf; zero means the root.
	MaxHops        int
	DefaultPolicy  policy.ID
	Logger         logrus.FieldLogger
	BalancerLogger logrus.FieldLogger
}

type System struct {
	arena    *task.Arena
	tree     *topology.Tree
	decoder  host.Decoder
	irq      ipi.Interrupter
	switcher Switcher
	pool     *ipi.RequestPool
	interval int64
	maxHops  int
	policy   policy.ID

	log  logrus.FieldLogger
	blog logrus.FieldLogger

	mu     sync.RWMutex
	procs  []*Processor
	byAPIC map[uint32]*Processor

	inFlight atomic.Int64
}

func NewSystem(arena *task.Arena, opts Options) (*System, error) {
	if arena == nil {
		return nil, errors.New("nil task arena")
	}
	if opts.Interrupter == nil {
		return nil, errors.New("no interrupter configured")
	}
	if opts.DefaultPolicy < 0 || opts.DefaultPolicy >= policy.Count {
		return nil, fmt.Errorf("default policy: %w: %d", policy.ErrUnknownPolicy, int(opts.DefaultPolicy))
	}
	s := &System{
		arena:    arena,
		tree:     topology.NewTree(),
		decoder:  opts.Decoder,
		irq:      opts.Interrupter,
		switcher: opts.Switcher,
		pool:     ipi.NewRequestPool(),
		interval: opts.BalanceInterval,
		maxHops:  opts.MaxHops,
		policy:   opts.DefaultPolicy,
		log:      opts.Logger,
		blog:     opts.BalancerLogger,
		byAPIC:   make(map[uint32]*Processor),
	}
	if s.switcher == nil {
		s.switcher = nopSwitcher{}
	}
	if s.interval <= 0 {
		s.interval = DefaultBalanceInterval
	}
	if s.maxHops <= 0 {
		s.maxHops = topology.AllHops
	}
	if s.log == nil {
		s.log = logging.GetLogger()
	}
	if s.blog == nil {
		s.blog = logging.GetBalancerLogger()
	}
	return s, nil
}

func (s *System) Arena() *task.Arena     { return s.arena }
func (s *System) Tree() *topology.Tree   { return s.tree }
func (s *System) BalanceInterval() int64 { return s.interval }

// InFlight is the number of requests written but not yet fully processed,
// including any replies they produce.
func (s *System) InFlight() int64 { return s.inFlight.Load() }

// Plug registers the core with the given APIC id and returns its Processor.
// Core ids are handed out in plug order.
func (s *System) Plug(apicID uint32) (*Processor, error) {
	loc := s.decoder.Decode(apicID)
	var path topology.Path
	path[topology.NUMANode] = loc.Node
	path[topology.Chip] = loc.Package
	path[topology.Core] = loc.Core
	path[topology.LogicalProcessor] = loc.Thread

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.byAPIC[apicID]; ok {
		return nil, fmt.Errorf("apic %#x already plugged as core %d: %w", apicID, p.id, topology.ErrAlreadyRegistered)
	}
	id := len(s.procs)
	leaf, err := s.tree.Plug(path, id)
	if err != nil {
		return nil, fmt.Errorf("plug apic %#x: %w", apicID, err)
	}

	p := &Processor{
		sys:      s,
		id:       id,
		apicID:   apicID,
		leaf:     leaf,
		requests: ipi.NewQueue(),
		current:  task.None,
		active:   s.policy,
		last:     s.policy,
	}
	for pid := policy.ID(0); pid < policy.Count; pid++ {
		q, err := policy.New(pid, s.arena)
		if err != nil {
			return nil, err
		}
		p.queues[pid] = q
	}
	s.procs = append(s.procs, p)
	s.byAPIC[apicID] = p

	s.log.WithFields(logrus.Fields{
		"core":    id,
		"apic_id": apicID,
		"domain":  leaf.String(),
	}).Debug("Core plugged")
	return p, nil
}

func (s *System) Processor(core int) (*Processor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if core < 0 || core >= len(s.procs) {
		return nil, fmt.Errorf("%w %d", ErrUnknownCore, core)
	}
	return s.procs[core], nil
}

func (s *System) Processors() []*Processor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Processor(nil), s.procs...)
}

// Add hands a brand-new task to the core's active policy.
func (s *System) Add(core int, h task.Handle) error {
	p, err := s.Processor(core)
	if err != nil {
		return err
	}
	return p.queues[p.Active()].Add(p, h)
}

// Remove retires a task from the core's active policy.
func (s *System) Remove(core int, h task.Handle) error {
	p, err := s.Processor(core)
	if err != nil {
		return err
	}
	return p.queues[p.Active()].Remove(p, h)
}

// SetPolicy switches the policy the core dispatches from. The old policy is
// freed on the next tick.
func (s *System) SetPolicy(core int, id policy.ID) error {
	if id < 0 || id >= policy.Count {
		return fmt.Errorf("%w: %d", policy.ErrUnknownPolicy, int(id))
	}
	p, err := s.Processor(core)
	if err != nil {
		return err
	}
	p.setActive(id)
	return nil
}

// Tick is the timer entry point for one core.
func (s *System) Tick(core int, now int64) (task.Handle, error) {
	p, err := s.Processor(core)
	if err != nil {
		return task.None, err
	}
	prev, next := p.tick(now)
	s.switcher.Switch(p.id, prev, next)
	return next, nil
}
