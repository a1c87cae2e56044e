package smp

import (
	"fmt"

	"smp-sched/internal/ipi"
	"smp-sched/internal/policy"

	"github.com/sirupsen/logrus"
)

// HandleInterrupt is the handler for ipi.Vector on core. Raises coalesce, so
// it drains every pending request and returns how many it processed.
func (s *System) HandleInterrupt(core int) (int, error) {
	p, err := s.Processor(core)
	if err != nil {
		return 0, err
	}
	n := 0
	for req := p.requests.Pop(); req != nil; req = p.requests.Pop() {
		if err := s.Dispatch(p, req); err != nil {
			s.blog.WithError(err).WithField("core", p.id).Warn("Balancer: Dropped request")
		}
		n++
	}
	return n, nil
}

// Dispatch processes one request popped from p's own queue. The request is
// released afterwards whatever the outcome.
func (s *System) Dispatch(p *Processor, req ipi.Request) error {
	defer s.inFlight.Add(-1)
	defer s.pool.Release(req)

	switch r := req.(type) {
	case *ipi.AcceptTasks:
		return s.accept(p, r)
	case *ipi.RenounceTasks:
		return s.renounce(p, r)
	}
	return fmt.Errorf("%w %T", ipi.ErrUnknownRequest, req)
}

func (s *System) accept(p *Processor, r *ipi.AcceptTasks) error {
	if r.Policy < 0 || r.Policy >= policy.Count {
		return fmt.Errorf("accept %s: %w: %d", r.ID(), policy.ErrUnknownPolicy, int(r.Policy))
	}
	if r.Tasks.Empty() {
		return nil
	}
	p.queues[r.Policy].Receive(p, r.Tasks, r.Tasks.Count)

	s.blog.WithFields(logrus.Fields{
		"core":       p.id,
		"policy":     r.Policy.String(),
		"count":      r.Tasks.Count,
		"request_id": r.ID().String(),
	}).Debug("Balancer: Accepted tasks")
	return nil
}

func (s *System) renounce(p *Processor, r *ipi.RenounceTasks) error {
	if r.Policy < 0 || r.Policy >= policy.Count {
		return fmt.Errorf("renounce %s: %w: %d", r.ID(), policy.ErrUnknownPolicy, int(r.Policy))
	}
	if r.Donor == nil {
		return fmt.Errorf("renounce %s: no donor domain", r.ID())
	}
	if r.Src != p.id {
		return fmt.Errorf("renounce %s addressed to core %d arrived on core %d", r.ID(), r.Src, p.id)
	}
	dst, err := s.Processor(r.Dst)
	if err != nil {
		return fmt.Errorf("renounce %s: %w", r.ID(), err)
	}

	level := r.Donor.Level()
	srcLoad, dstLoad := p.Load(r.Policy), dst.Load(r.Policy)
	delta := LoadDelta(srcLoad, dstLoad, level)

	fields := logrus.Fields{
		"core":         p.id,
		"dst":          r.Dst,
		"policy":       r.Policy.String(),
		"domain_level": level.String(),
		"src_load":     srcLoad,
		"dst_load":     dstLoad,
		"delta":        delta,
		"request_id":   r.ID().String(),
	}
	if delta <= 0 {
		s.blog.WithFields(fields).Debug("Balancer: Nothing to renounce")
		return nil
	}

	out, moved := p.queues[r.Policy].Send(p, r.Dst, int(delta))
	fields["moved"] = moved
	if moved == 0 {
		s.blog.WithFields(fields).Debug("Balancer: No transferable tasks")
		return nil
	}
	s.blog.WithFields(fields).Debug("Balancer: Renounced tasks")

	reply := s.pool.Accept(r.Policy, out)
	if err := s.WriteRequest(reply, r.Dst); err != nil {
		return fmt.Errorf("renounce %s: reply: %w", r.ID(), err)
	}
	return nil
}
