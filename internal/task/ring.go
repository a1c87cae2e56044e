package task

import "fmt"

// List is an isolated ring of tasks, typically one in transit between cores.
// Last.next is First; an empty List has Count 0 and None endpoints.
type List struct {
	First Handle
	Last  Handle
	Count int
}

func (l List) Empty() bool { return l.Count == 0 }

// The ring primitives below assume the caller holds the lock of the ring the
// handles belong to. They panic on handles that are not current, which only
// happens when a ring invariant has already been broken.

func (a *Arena) Next(h Handle) Handle { return a.must(h).next }
func (a *Arena) Prev(h Handle) Handle { return a.must(h).prev }

// LinkSelf makes h a ring of one.
func (a *Arena) LinkSelf(h Handle) {
	t := a.must(h)
	t.next, t.prev = h, h
	t.queued = true
}

// InsertBefore links the unqueued task h immediately before pos.
func (a *Arena) InsertBefore(pos, h Handle) {
	t := a.must(h)
	p := a.must(pos)
	prev := a.must(p.prev)
	t.next = pos
	t.prev = p.prev
	prev.next = h
	p.prev = h
	t.queued = true
}

// Unlink removes h from its ring and returns the node that followed it, or
// None if h was alone.
func (a *Arena) Unlink(h Handle) Handle {
	t := a.must(h)
	var after Handle
	if t.next != h {
		after = t.next
		a.must(t.prev).next = t.next
		a.must(t.next).prev = t.prev
	}
	t.next, t.prev = None, None
	t.queued = false
	return after
}

// Splice inserts the ring l immediately after the node after.
func (a *Arena) Splice(after Handle, l List) {
	if l.Empty() {
		return
	}
	at := a.must(after)
	follow := at.next
	first := a.must(l.First)
	last := a.must(l.Last)

	at.next = l.First
	first.prev = after
	last.next = follow
	a.must(follow).prev = l.Last
}

// Chain links unqueued handles, in order, into an isolated ring.
func (a *Arena) Chain(hs []Handle) List {
	n := len(hs)
	if n == 0 {
		return List{}
	}
	for i, h := range hs {
		t := a.must(h)
		t.next = hs[(i+1)%n]
		t.prev = hs[(i-1+n)%n]
		t.queued = true
	}
	return List{First: hs[0], Last: hs[n-1], Count: n}
}

// Walk visits the ring starting at start, once around, until fn returns false.
// It gives up after limit nodes, so a corrupted ring cannot spin forever.
func (a *Arena) Walk(start Handle, limit int, fn func(Handle, *Task) bool) {
	if start.IsNone() {
		return
	}
	cur := start
	for i := 0; i < limit; i++ {
		t := a.must(cur)
		if !fn(cur, t) {
			return
		}
		cur = t.next
		if cur == start {
			return
		}
	}
}

// Members returns the handles of the ring starting at start, in order.
func (a *Arena) Members(start Handle, limit int) []Handle {
	var out []Handle
	a.Walk(start, limit, func(h Handle, _ *Task) bool {
		out = append(out, h)
		return true
	})
	return out
}

// Verify checks that start heads a well-formed ring of exactly count nodes:
// every node is current and queued, every edge is reciprocated, and following
// next returns to start after count hops.
func (a *Arena) Verify(start Handle, count int) error {
	if count == 0 {
		if !start.IsNone() {
			return fmt.Errorf("empty ring has head %s", start)
		}
		return nil
	}
	if start.IsNone() {
		return fmt.Errorf("ring of %d has no head", count)
	}
	cur := start
	for i := 0; i < count; i++ {
		t, ok := a.Get(cur)
		if !ok {
			return fmt.Errorf("hop %d: %w (%s)", i, ErrStaleHandle, cur)
		}
		if !t.queued {
			return fmt.Errorf("hop %d: %s is linked but not marked queued", i, cur)
		}
		nt, ok := a.Get(t.next)
		if !ok {
			return fmt.Errorf("hop %d: dangling next %s after %s", i, t.next, cur)
		}
		if nt.prev != cur {
			return fmt.Errorf("hop %d: %s.next=%s but %s.prev=%s", i, cur, t.next, t.next, nt.prev)
		}
		cur = t.next
		if cur == start && i != count-1 {
			return fmt.Errorf("ring closes after %d nodes, count is %d", i+1, count)
		}
	}
	if cur != start {
		return fmt.Errorf("ring does not close after %d nodes", count)
	}
	return nil
}

// VerifyList checks an isolated ring.
func (a *Arena) VerifyList(l List) error {
	if err := a.Verify(l.First, l.Count); err != nil {
		return err
	}
	if l.Count > 0 && a.must(l.Last).next != l.First {
		return fmt.Errorf("list last %s does not close onto first %s", l.Last, l.First)
	}
	return nil
}
