package task

import (
	"errors"
	"fmt"
	"testing"
)

func newRing(t *testing.T, a *Arena, names ...string) []Handle {
	t.Helper()
	hs := make([]Handle, 0, len(names))
	for _, n := range names {
		hs = append(hs, a.New(n))
	}
	a.Chain(hs)
	return hs
}

func TestArena_StaleHandleRejected(t *testing.T) {
	a := NewArena()
	h := a.New("a")
	if !a.Valid(h) {
		t.Fatalf("fresh handle should be valid")
	}
	if err := a.Free(h); err != nil {
		t.Fatalf("free: %v", err)
	}
	if a.Valid(h) {
		t.Fatalf("freed handle should be stale")
	}
	reused := a.New("b")
	if reused.index != h.index {
		t.Fatalf("expected slot reuse, got %v after %v", reused, h)
	}
	if a.Valid(h) {
		t.Fatalf("old generation must stay stale after slot reuse")
	}
	if err := a.Free(h); !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("double free err=%v", err)
	}
}

func TestArena_FreeQueuedRejected(t *testing.T) {
	a := NewArena()
	h := a.New("a")
	a.LinkSelf(h)
	if err := a.Free(h); !errors.Is(err, ErrQueued) {
		t.Fatalf("err=%v want ErrQueued", err)
	}
	a.Unlink(h)
	if err := a.Free(h); err != nil {
		t.Fatalf("free after unlink: %v", err)
	}
}

func TestArena_GrowsAcrossPages(t *testing.T) {
	a := NewArena()
	var hs []Handle
	for i := 0; i < pageSize*2+3; i++ {
		hs = append(hs, a.New(fmt.Sprintf("t%d", i)))
	}
	for _, h := range hs {
		if !a.Valid(h) {
			t.Fatalf("%v not valid after growth", h)
		}
	}
	if a.Live() != len(hs) {
		t.Fatalf("live=%d want %d", a.Live(), len(hs))
	}
}

func TestRing_InsertUnlinkKeepsInvariant(t *testing.T) {
	a := NewArena()
	hs := newRing(t, a, "a", "b", "c")
	if err := a.Verify(hs[0], 3); err != nil {
		t.Fatalf("verify: %v", err)
	}

	d := a.New("d")
	a.InsertBefore(hs[0], d)
	if err := a.Verify(d, 4); err != nil {
		t.Fatalf("verify after insert: %v", err)
	}
	if a.Prev(hs[0]) != d || a.Next(hs[2]) != d {
		t.Fatalf("d not between c and a")
	}

	after := a.Unlink(hs[1])
	if after != hs[2] {
		t.Fatalf("unlink returned %v want %v", after, hs[2])
	}
	if err := a.Verify(hs[0], 3); err != nil {
		t.Fatalf("verify after unlink: %v", err)
	}

	single := a.New("s")
	a.LinkSelf(single)
	if got := a.Unlink(single); !got.IsNone() {
		t.Fatalf("unlinking a ring of one should return none, got %v", got)
	}
}

func TestRing_Splice(t *testing.T) {
	a := NewArena()
	local := newRing(t, a, "a", "b")
	in := a.Chain([]Handle{a.New("x"), a.New("y"), a.New("z")})
	if err := a.VerifyList(in); err != nil {
		t.Fatalf("verify list: %v", err)
	}
	a.Splice(local[0], in)
	if err := a.Verify(local[0], 5); err != nil {
		t.Fatalf("verify after splice: %v", err)
	}
	got := a.Members(local[0], 10)
	want := []Handle{local[0], in.First, a.Next(in.First), in.Last, local[1]}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d]=%v want %v", i, got[i], want[i])
		}
	}
}

func TestRing_VerifyDetectsWrongCount(t *testing.T) {
	a := NewArena()
	hs := newRing(t, a, "a", "b", "c")
	if err := a.Verify(hs[0], 2); err == nil {
		t.Fatalf("expected error on undercount")
	}
	if err := a.Verify(hs[0], 4); err == nil {
		t.Fatalf("expected error on overcount")
	}
	if err := a.Verify(None, 0); err != nil {
		t.Fatalf("empty ring: %v", err)
	}
}
