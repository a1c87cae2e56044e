// Package topology maintains the processor domain tree: leaves are one-to-one
// with cores, inner nodes group cores by hardware locality, and every node
// caches the aggregate runnable load beneath it for each policy.
package topology

import (
	"fmt"
	"strings"
	"sync/atomic"

	"smp-sched/internal/policy"
	"smp-sched/internal/spin"
)

// Level is a domain's distance from the leaves. It also names the domain type.
type Level int

const (
	LogicalProcessor Level = iota
	Core
	Chip
	NUMANode
	System
)

// Levels is the number of levels, root included.
const Levels = int(System) + 1

func (l Level) String() string {
	switch l {
	case LogicalProcessor:
		return "lp"
	case Core:
		return "core"
	case Chip:
		return "chip"
	case NUMANode:
		return "numa"
	case System:
		return "system"
	}
	return fmt.Sprintf("level%d", int(l))
}

// Path holds the id a core has at each level below the root, indexed by Level.
type Path [System]int

// NoCore is the core id of a domain that is not a leaf.
const NoCore = -1

// Domain is one node of the tree.
//
// mu guards load mutation, search guards the child collection and serialises
// busiest/idlest descents through this node, balance guards the per-policy
// next-eligible ticks. Loads are read without locks.
type Domain struct {
	id       int
	level    Level
	parent   *Domain
	children []*Domain
	core     int

	load        [policy.Count]atomic.Int64
	nextBalance [policy.Count]atomic.Int64

	mu      spin.Lock
	search  spin.Lock
	balance spin.Lock
}

func newDomain(id int, level Level, parent *Domain) *Domain {
	return &Domain{id: id, level: level, parent: parent, core: NoCore}
}

func (d *Domain) ID() int         { return d.id }
func (d *Domain) Level() Level    { return d.level }
func (d *Domain) Parent() *Domain { return d.parent }
func (d *Domain) IsLeaf() bool    { return d.level == LogicalProcessor }

// Core is the id of the core attached to a leaf, NoCore elsewhere.
func (d *Domain) Core() int { return d.core }

func (d *Domain) Load(p policy.ID) int64 { return d.load[p].Load() }

// NextBalance is the first tick at which d may be rebalanced for p.
func (d *Domain) NextBalance(p policy.ID) int64 { return d.nextBalance[p].Load() }

// Children returns a copy of the child collection.
func (d *Domain) Children() []*Domain {
	d.search.Lock()
	defer d.search.Unlock()
	return append([]*Domain(nil), d.children...)
}

// String renders the path from the root, e.g. system/numa0/chip1/core0/lp1.
func (d *Domain) String() string {
	var parts []string
	for cur := d; cur != nil; cur = cur.parent {
		if cur.level == System {
			parts = append(parts, "system")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s%d", cur.level, cur.id))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

func (d *Domain) addLoad(p policy.ID, delta int64) {
	d.mu.Lock()
	d.load[p].Add(delta)
	d.mu.Unlock()
}

// childLocked finds the child with id. d.search must be held.
func (d *Domain) childLocked(id int) *Domain {
	for _, c := range d.children {
		if c.id == id {
			return c
		}
	}
	return nil
}

// ClaimBalance reports whether d is due for rebalancing at now and, if so,
// pushes the next eligible tick out by (level+1)^2 * interval. Only one caller
// wins a given window.
func (d *Domain) ClaimBalance(p policy.ID, now, interval int64) bool {
	d.balance.Lock()
	defer d.balance.Unlock()
	if now < d.nextBalance[p].Load() {
		return false
	}
	step := int64(d.level) + 1
	d.nextBalance[p].Store(now + step*step*interval)
	return true
}
