package smp

import (
	"context"
	"errors"
	"testing"
	"time"

	"smp-sched/internal/host"
	"smp-sched/internal/ipi"
	"smp-sched/internal/logging"
	"smp-sched/internal/task"
)

func newMachine(t *testing.T, opts MachineOptions) (*System, *Machine, *DispatchCounter) {
	t.Helper()
	hc, err := host.Synthetic(2, 2, 2, 1)
	if err != nil {
		t.Fatalf("synthetic: %v", err)
	}
	ctrl := ipi.NewController()
	counter := NewDispatchCounter()
	sys, err := NewSystem(task.NewArena(), Options{
		Decoder:         hc.Decoder,
		Interrupter:     ctrl,
		Switcher:        counter,
		BalanceInterval: 1,
		Logger:          logging.Discard(),
		BalancerLogger:  logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new system: %v", err)
	}
	for _, apic := range hc.APICIDs() {
		if _, err := sys.Plug(apic); err != nil {
			t.Fatalf("plug: %v", err)
		}
	}
	return sys, NewMachine(sys, ctrl, opts), counter
}

func TestMachineRunSpreadsLoad(t *testing.T) {
	var sampled int64
	sys, m, counter := newMachine(t, MachineOptions{OnTick: func(int64) { sampled++ }})

	const tasks = 24
	for i := 0; i < tasks; i++ {
		if err := sys.Add(0, sys.Arena().New("t")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	const ticks = 100
	if err := m.Run(ctx, ticks); err != nil {
		t.Fatalf("run: %v", err)
	}

	if sampled != ticks {
		t.Fatalf("OnTick ran %d times, want %d", sampled, ticks)
	}
	if sys.InFlight() != 0 {
		t.Fatalf("requests still in flight: %d", sys.InFlight())
	}
	if err := sys.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}

	var total int64
	for _, p := range sys.Processors() {
		total += p.Load(rr)
		if got := counter.Busy(p.ID()) + counter.Idle(p.ID()); got != ticks {
			t.Fatalf("core %d saw %d ticks, want %d", p.ID(), got, ticks)
		}
	}
	if total != tasks || sys.Tree().Root().Load(rr) != tasks {
		t.Fatalf("load not conserved: cores %d root %d", total, sys.Tree().Root().Load(rr))
	}
	p0, _ := sys.Processor(0)
	if p0.Load(rr) == tasks {
		t.Fatalf("no task left core 0")
	}
}

func TestDeliveryOrderRotates(t *testing.T) {
	firsts := make(map[int]bool)
	for now := int64(1); now <= 4; now++ {
		order := deliveryOrder(now, 4)
		if len(order) != 4 {
			t.Fatalf("tick %d: order %v", now, order)
		}
		seen := make(map[int]bool)
		for _, i := range order {
			seen[i] = true
		}
		if len(seen) != 4 {
			t.Fatalf("tick %d: order %v skips a core", now, order)
		}
		firsts[order[0]] = true
	}
	if len(firsts) != 4 {
		t.Fatalf("every core should go first once in 4 ticks, got %v", firsts)
	}
}

func TestMachineRunFeedsEveryCoreOfTheBusyChip(t *testing.T) {
	sys, m, counter := newMachine(t, MachineOptions{})
	for i := 0; i < 12; i++ {
		if err := sys.Add(0, sys.Arena().New("t")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Run(ctx, 500); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := sys.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}

	p0, _ := sys.Processor(0)
	chip := p0.Leaf().Parent().Parent()
	shared := 0
	for _, p := range sys.Processors() {
		if p.Leaf().Parent().Parent() != chip {
			continue
		}
		shared++
		if counter.Busy(p.ID()) == 0 {
			t.Fatalf("core %d shares %s with core 0 but never ran a task", p.ID(), chip)
		}
	}
	if shared != 4 {
		t.Fatalf("expected 4 cores under %s, got %d", chip, shared)
	}
}

func TestMachineRunCancelled(t *testing.T) {
	_, m, _ := newMachine(t, MachineOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMachineRunWithoutCores(t *testing.T) {
	sys, err := NewSystem(task.NewArena(), Options{Interrupter: ipi.NewController(), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new system: %v", err)
	}
	m := NewMachine(sys, ipi.NewController(), MachineOptions{})
	if err := m.Run(context.Background(), 1); err == nil {
		t.Fatalf("expected an error with no cores plugged")
	}
}
