package topology

import (
	"errors"
	"fmt"
	"sync"

	"smp-sched/internal/policy"
)

var ErrAlreadyRegistered = errors.New("core already registered")

// AllHops propagates a load change from a leaf all the way to the root.
const AllHops = Levels

// Tree owns the root domain. Domains are created on demand by Plug and are
// never removed.
type Tree struct {
	root *Domain

	mu     sync.RWMutex // guards leaves and order
	leaves map[int]*Domain
	order  []int
}

func NewTree() *Tree {
	return &Tree{
		root:   newDomain(0, System, nil),
		leaves: make(map[int]*Domain),
	}
}

func (t *Tree) Root() *Domain { return t.root }

// Plug registers coreID at path, creating any missing domains on the way
// down, and returns its leaf. Registering the same core or the same leaf
// twice fails with ErrAlreadyRegistered and leaves the tree untouched.
func (t *Tree) Plug(path Path, coreID int) (*Domain, error) {
	if coreID < 0 {
		return nil, fmt.Errorf("invalid core id %d", coreID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if leaf, ok := t.leaves[coreID]; ok {
		return nil, fmt.Errorf("core %d at %s: %w", coreID, leaf, ErrAlreadyRegistered)
	}

	d := t.root
	for lvl := NUMANode; lvl >= LogicalProcessor; lvl-- {
		id := path[lvl]
		d.search.Lock()
		child := d.childLocked(id)
		if child != nil && lvl == LogicalProcessor {
			d.search.Unlock()
			return nil, fmt.Errorf("leaf %s already owned by core %d: %w", child, child.core, ErrAlreadyRegistered)
		}
		if child == nil {
			child = newDomain(id, lvl, d)
			if lvl == LogicalProcessor {
				child.core = coreID
			}
			d.children = append(d.children, child)
		}
		d.search.Unlock()
		d = child
	}

	t.leaves[coreID] = d
	t.order = append(t.order, coreID)
	return d, nil
}

// Lookup returns the leaf of a registered core.
func (t *Tree) Lookup(coreID int) (*Domain, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.leaves[coreID]
	return d, ok
}

// Cores returns the registered core ids in plug order.
func (t *Tree) Cores() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]int(nil), t.order...)
}

// ToggleLoad applies delta to leaf and to at most maxHops of its ancestors,
// each under that domain's own mutation lock.
func ToggleLoad(leaf *Domain, p policy.ID, delta int64, maxHops int) {
	if delta == 0 {
		return
	}
	d := leaf
	for hop := 0; d != nil && hop <= maxHops; hop++ {
		d.addLoad(p, delta)
		d = d.parent
	}
}

// FindBusiestGroup descends from d, always into the child with the highest
// load for p, and returns the leaf it ends on. The first child wins ties.
func FindBusiestGroup(d *Domain, p policy.ID) *Domain {
	return descend(d, p, func(cand, best int64) bool { return cand > best })
}

// FindIdlestGroup is FindBusiestGroup with the lowest load instead.
func FindIdlestGroup(d *Domain, p policy.ID) *Domain {
	return descend(d, p, func(cand, best int64) bool { return cand < best })
}

// GetBusiest returns the core attached to FindBusiestGroup(d, p).
func GetBusiest(d *Domain, p policy.ID) int {
	return FindBusiestGroup(d, p).core
}

// GetIdlest returns the core attached to FindIdlestGroup(d, p).
func GetIdlest(d *Domain, p policy.ID) int {
	return FindIdlestGroup(d, p).core
}

func descend(d *Domain, p policy.ID, better func(cand, best int64) bool) *Domain {
	for d != nil && !d.IsLeaf() {
		d.search.Lock()
		var pick *Domain
		var best int64
		for _, c := range d.children {
			l := c.load[p].Load()
			if pick == nil || better(l, best) {
				pick, best = c, l
			}
		}
		d.search.Unlock()
		if pick == nil {
			return d
		}
		d = pick
	}
	return d
}

// ChildToward returns the child of ancestor on the path down to d, d itself
// when d is ancestor, or nil when d is not beneath ancestor.
func ChildToward(ancestor, d *Domain) *Domain {
	if d == ancestor {
		return d
	}
	for cur := d; cur != nil; cur = cur.parent {
		if cur.parent == ancestor {
			return cur
		}
	}
	return nil
}

// Walk visits every domain depth first, parents before children.
func (t *Tree) Walk(fn func(*Domain)) {
	var visit func(*Domain)
	visit = func(d *Domain) {
		fn(d)
		for _, c := range d.Children() {
			visit(c)
		}
	}
	visit(t.root)
}

// CheckConsistency verifies that every inner domain's load for p equals the
// sum of its children's. It is only meaningful while no core is mutating.
func (t *Tree) CheckConsistency(p policy.ID) error {
	var errs []error
	t.Walk(func(d *Domain) {
		if d.IsLeaf() {
			return
		}
		var sum int64
		for _, c := range d.Children() {
			sum += c.Load(p)
		}
		if got := d.Load(p); got != sum {
			errs = append(errs, fmt.Errorf("%s: load %d but children sum to %d", d, got, sum))
		}
	})
	return errors.Join(errs...)
}

// DomainStat is a point-in-time view of one domain.
type DomainStat struct {
	Path  string `json:"path"`
	Level string `json:"level"`
	Core  int    `json:"core"`
	Load  int64  `json:"load"`
}

func (t *Tree) Snapshot(p policy.ID) []DomainStat {
	var out []DomainStat
	t.Walk(func(d *Domain) {
		out = append(out, DomainStat{
			Path:  d.String(),
			Level: d.level.String(),
			Core:  d.core,
			Load:  d.Load(p),
		})
	})
	return out
}
