package ipi

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
)

var ErrUnknownAPIC = errors.New("no interrupt line for apic id")

// Interrupter raises an interrupt on the core with the given APIC id.
type Interrupter interface {
	Raise(apicID uint32, vector uint8) error
}

// Line is one core's interrupt input. Raised vectors are latched in a
// request register until the core takes them, so several raises of the same
// vector before the core looks collapse into one.
type Line struct {
	apicID uint32
	irr    [4]atomic.Uint64
	signal chan struct{}
}

func (l *Line) APICID() uint32 { return l.apicID }

// Signal fires at least once after any raise that has not been taken yet.
func (l *Line) Signal() <-chan struct{} { return l.signal }

func (l *Line) raise(vector uint8) {
	l.irr[vector/64].Or(1 << (vector % 64))
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Take clears the request register and returns the vectors that were set,
// lowest first.
func (l *Line) Take() []uint8 {
	var out []uint8
	for i := range l.irr {
		word := l.irr[i].Swap(0)
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			out = append(out, uint8(i*64+bit))
			word &^= 1 << bit
		}
	}
	return out
}

// Controller is the in-process interrupt fabric connecting simulated cores.
type Controller struct {
	mu    sync.RWMutex
	lines map[uint32]*Line
}

var _ Interrupter = (*Controller)(nil)

func NewController() *Controller {
	return &Controller{lines: make(map[uint32]*Line)}
}

// Register creates the line for apicID, or returns the existing one.
func (c *Controller) Register(apicID uint32) *Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.lines[apicID]; ok {
		return l
	}
	l := &Line{apicID: apicID, signal: make(chan struct{}, 1)}
	c.lines[apicID] = l
	return l
}

func (c *Controller) Line(apicID uint32) (*Line, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.lines[apicID]
	return l, ok
}

func (c *Controller) Raise(apicID uint32, vector uint8) error {
	l, ok := c.Line(apicID)
	if !ok {
		return fmt.Errorf("raise vector %#x: %w %d", vector, ErrUnknownAPIC, apicID)
	}
	l.raise(vector)
	return nil
}

// Raised is one interrupt seen by a Recorder.
type Raised struct {
	APICID uint32
	Vector uint8
}

// Recorder is an Interrupter that only remembers what it was asked to raise.
type Recorder struct {
	mu     sync.Mutex
	raised []Raised
}

var _ Interrupter = (*Recorder)(nil)

func (r *Recorder) Raise(apicID uint32, vector uint8) error {
	r.mu.Lock()
	r.raised = append(r.raised, Raised{APICID: apicID, Vector: vector})
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Raised() []Raised {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Raised(nil), r.raised...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.raised = nil
	r.mu.Unlock()
}
