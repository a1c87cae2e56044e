package spin

import (
	"sync"
	"testing"
)

func TestLock_MutualExclusion(t *testing.T) {
	var l Lock
	var wg sync.WaitGroup
	counter := 0
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				l.Lock()
				counter++
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != 8000 {
		t.Fatalf("counter=%d want 8000", counter)
	}
}

func TestLock_TryLock(t *testing.T) {
	var l Lock
	if !l.TryLock() {
		t.Fatalf("expected TryLock on free lock to succeed")
	}
	if l.TryLock() {
		t.Fatalf("expected TryLock on held lock to fail")
	}
	if !l.Locked() {
		t.Fatalf("expected lock to report held")
	}
	l.Unlock()
	if l.Locked() {
		t.Fatalf("expected lock to report free")
	}
}

func TestLock_UnlockUnlockedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	var l Lock
	l.Unlock()
}
