// Package cpuallocator reserves host CPUs for the simulated cores' loops.
package cpuallocator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"smp-sched/internal/host"

	"github.com/sirupsen/logrus"
)

var ErrExhausted = errors.New("no free host CPU")

// Allocator assigns one host CPU to each simulated core.
type Allocator interface {
	// Allocate reserves a host CPU for core and returns it. A core that
	// already holds a CPU gets the same one back.
	Allocate(core int) (int, error)

	// Reserve pins core to cpu. It fails if another core holds cpu.
	Reserve(core int, cpu int) error

	// Release frees the CPU reserved for core.
	Release(core int)

	// Get returns the CPU reserved for core.
	Get(core int) (int, bool)

	// Snapshot returns a copy of all current assignments.
	Snapshot() map[int]int
}

// PhysicalCoreAllocator hands out the first thread of every physical core
// before any hyperthread sibling, so neighbouring simulated cores do not
// share execution units while the host has spare cores.
type PhysicalCoreAllocator struct {
	order  []int
	known  map[int]bool
	logger logrus.FieldLogger

	mu         sync.Mutex
	assigned   map[int]int // core -> host cpu
	reservedBy map[int]int // host cpu -> core
}

var _ Allocator = (*PhysicalCoreAllocator)(nil)

func NewPhysicalCoreAllocator(hostConfig *host.HostConfig, logger logrus.FieldLogger) (*PhysicalCoreAllocator, error) {
	if hostConfig == nil {
		return nil, fmt.Errorf("host config is nil")
	}
	if len(hostConfig.Topology.CPUs) == 0 {
		return nil, fmt.Errorf("host config lists no CPUs")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	order := PhysicalFirst(hostConfig.Topology.CPUs)
	known := make(map[int]bool, len(order))
	for _, cpu := range order {
		known[cpu] = true
	}
	return &PhysicalCoreAllocator{
		order:      order,
		known:      known,
		logger:     logger,
		assigned:   make(map[int]int),
		reservedBy: make(map[int]int),
	}, nil
}

// PhysicalFirst orders logical CPUs by thread rank within their physical
// core, then by package and core id.
func PhysicalFirst(cpus []host.CPUInfo) []int {
	type key struct{ pkg, core int }
	type ranked struct {
		cpu, rank, pkg, core int
	}

	byLogical := append([]host.CPUInfo(nil), cpus...)
	sort.Slice(byLogical, func(i, j int) bool { return byLogical[i].LogicalID < byLogical[j].LogicalID })

	seen := make(map[key]int)
	list := make([]ranked, 0, len(byLogical))
	for _, c := range byLogical {
		k := key{c.PhysicalID, c.CoreID}
		list = append(list, ranked{cpu: c.LogicalID, rank: seen[k], pkg: c.PhysicalID, core: c.CoreID})
		seen[k]++
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].rank != list[j].rank {
			return list[i].rank < list[j].rank
		}
		if list[i].pkg != list[j].pkg {
			return list[i].pkg < list[j].pkg
		}
		return list[i].core < list[j].core
	})

	out := make([]int, len(list))
	for i, r := range list {
		out[i] = r.cpu
	}
	return out
}

func (a *PhysicalCoreAllocator) Allocate(core int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cpu, ok := a.assigned[core]; ok {
		return cpu, nil
	}
	for _, cpu := range a.order {
		if _, used := a.reservedBy[cpu]; used {
			continue
		}
		a.assignLocked(core, cpu)
		return cpu, nil
	}
	return 0, fmt.Errorf("core %d: %w (%d reserved)", core, ErrExhausted, len(a.reservedBy))
}

func (a *PhysicalCoreAllocator) Reserve(core int, cpu int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.known[cpu] {
		return fmt.Errorf("cpu %d is not available on this host", cpu)
	}
	if owner, ok := a.reservedBy[cpu]; ok && owner != core {
		return fmt.Errorf("cpu %d already reserved by core %d", cpu, owner)
	}
	a.releaseLocked(core)
	a.assignLocked(core, cpu)
	return nil
}

func (a *PhysicalCoreAllocator) Release(core int) {
	a.mu.Lock()
	cpu, ok := a.assigned[core]
	a.releaseLocked(core)
	a.mu.Unlock()

	if ok {
		a.logger.WithFields(logrus.Fields{
			"core":     core,
			"host_cpu": cpu,
		}).Debug("Released host CPU")
	}
}

func (a *PhysicalCoreAllocator) Get(core int) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cpu, ok := a.assigned[core]
	return cpu, ok
}

func (a *PhysicalCoreAllocator) Snapshot() map[int]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int]int, len(a.assigned))
	for k, v := range a.assigned {
		out[k] = v
	}
	return out
}

// Plan allocates a CPU for each of cores simulated cores. Once the host runs
// out, the remaining cores share CPUs in allocation order.
func Plan(a Allocator, cores int) []int {
	out := make([]int, 0, cores)
	for core := 0; core < cores; core++ {
		cpu, err := a.Allocate(core)
		if err != nil {
			break
		}
		out = append(out, cpu)
	}
	n := len(out)
	if n == 0 {
		return nil
	}
	for i := n; i < cores; i++ {
		out = append(out, out[i%n])
	}
	return out
}

func (a *PhysicalCoreAllocator) assignLocked(core, cpu int) {
	a.assigned[core] = cpu
	a.reservedBy[cpu] = core
}

func (a *PhysicalCoreAllocator) releaseLocked(core int) {
	cpu, ok := a.assigned[core]
	if !ok {
		return
	}
	if owner, ok := a.reservedBy[cpu]; ok && owner == core {
		delete(a.reservedBy, cpu)
	}
	delete(a.assigned, core)
}
