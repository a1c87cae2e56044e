package smp

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"smp-sched/internal/host"
	"smp-sched/internal/ipi"

	"github.com/sirupsen/logrus"
)

// Handler services one interrupt vector on a core.
type Handler func(core int)

type MachineOptions struct {
	// TickEvery paces the clock; zero runs ticks back to back.
	TickEvery time.Duration
	// PinCPUs lists host CPUs the core loops are pinned to, round robin.
	// Empty leaves scheduling of the loops to the Go runtime.
	PinCPUs []int
	// OnTick runs on the clock goroutine after every core finished a tick.
	OnTick func(now int64)
}

// Machine runs one event loop per core. Each loop selects over the clock and
// its interrupt line, so a core's tick and its interrupt handling never
// overlap.
type Machine struct {
	sys  *System
	ctrl *ipi.Controller
	opts MachineOptions
	log  logrus.FieldLogger

	lines    map[int]*ipi.Line
	handlers map[uint8]Handler
}

func NewMachine(sys *System, ctrl *ipi.Controller, opts MachineOptions) *Machine {
	m := &Machine{
		sys:      sys,
		ctrl:     ctrl,
		opts:     opts,
		log:      sys.log,
		lines:    make(map[int]*ipi.Line),
		handlers: make(map[uint8]Handler),
	}
	for _, p := range sys.Processors() {
		m.lines[p.id] = ctrl.Register(p.apicID)
	}
	m.Handle(ipi.Vector, func(core int) {
		if _, err := sys.HandleInterrupt(core); err != nil {
			m.log.WithError(err).WithField("core", core).Warn("Interrupt handler failed")
		}
	})
	return m
}

// Handle registers h for vector, replacing any previous handler. It must be
// called before Run.
func (m *Machine) Handle(vector uint8, h Handler) {
	m.handlers[vector] = h
}

// Run drives ticks 1..ticks through every core, then waits until no request
// is in flight and stops the loops.
func (m *Machine) Run(ctx context.Context, ticks int64) error {
	procs := m.sys.Processors()
	if len(procs) == 0 {
		return fmt.Errorf("no cores plugged")
	}

	stop := make(chan struct{})
	acks := make(chan struct{}, len(procs))
	tickChans := make([]chan int64, len(procs))
	var wg sync.WaitGroup
	for i, p := range procs {
		tickChans[i] = make(chan int64)
		cpu := -1
		if len(m.opts.PinCPUs) > 0 {
			cpu = m.opts.PinCPUs[i%len(m.opts.PinCPUs)]
		}
		wg.Add(1)
		go func(p *Processor, ticks <-chan int64, cpu int) {
			defer wg.Done()
			m.coreLoop(ctx, p, ticks, acks, stop, cpu)
		}(p, tickChans[i], cpu)
	}

	err := m.clock(ctx, ticks, tickChans, acks)
	if err == nil {
		err = m.quiesce(ctx)
	}
	close(stop)
	wg.Wait()
	return err
}

func (m *Machine) clock(ctx context.Context, ticks int64, chans []chan int64, acks <-chan struct{}) error {
	var pace <-chan time.Time
	if m.opts.TickEvery > 0 {
		t := time.NewTicker(m.opts.TickEvery)
		defer t.Stop()
		pace = t.C
	}

	for now := int64(1); now <= ticks; now++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace:
			}
		}
		for _, i := range deliveryOrder(now, len(chans)) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case chans[i] <- now:
			}
		}
		for range chans {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-acks:
			}
		}
		if m.opts.OnTick != nil {
			m.opts.OnTick(now)
		}
	}
	return nil
}

// deliveryOrder rotates which core sees tick now first. Domains admit one
// balance pass per window, so a fixed order would hand every window to the
// lowest core of each domain.
func deliveryOrder(now int64, n int) []int {
	order := make([]int, n)
	start := int(now % int64(n))
	for i := range order {
		order[i] = (start + i) % n
	}
	return order
}

func (m *Machine) quiesce(ctx context.Context) error {
	for m.sys.InFlight() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		runtime.Gosched()
	}
	return nil
}

func (m *Machine) coreLoop(ctx context.Context, p *Processor, ticks <-chan int64, acks chan<- struct{}, stop <-chan struct{}, cpu int) {
	logger := m.log.WithField("core", p.id)
	if cpu >= 0 {
		if err := host.PinCurrentThread(cpu); err != nil {
			logger.WithError(err).WithField("host_cpu", cpu).Warn("Failed to pin core loop")
		} else {
			defer host.UnpinCurrentThread()
		}
	}
	line := m.lines[p.id]

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticks:
			if _, err := m.sys.Tick(p.id, now); err != nil {
				logger.WithError(err).Error("Tick failed")
			}
			acks <- struct{}{}
		case <-line.Signal():
			for _, v := range line.Take() {
				h, ok := m.handlers[v]
				if !ok {
					logger.WithField("vector", v).Warn("Spurious interrupt")
					continue
				}
				h(p.id)
			}
		}
	}
}
