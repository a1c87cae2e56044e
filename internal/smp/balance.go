package smp

import (
	"smp-sched/internal/ipi"
	"smp-sched/internal/policy"
	"smp-sched/internal/topology"

	"github.com/sirupsen/logrus"
)

// LoadDelta is how much load a donor gives up for a transfer between two
// groups at level: (src-dst) * level / (level+1). Sibling leaves (level 0)
// move nothing; each level further out moves a larger share.
func LoadDelta(srcLoad, dstLoad int64, level topology.Level) int64 {
	l := int64(level)
	return (srcLoad - dstLoad) * l / (l + 1)
}

// BalanceWork walks up from p's leaf and rebalances every ancestor that is
// due for id at now. It only ever runs on p's own thread of control.
func (s *System) BalanceWork(p *Processor, id policy.ID, now int64) {
	for d := p.leaf.Parent(); d != nil; d = d.Parent() {
		if !d.ClaimBalance(id, now, s.interval) {
			continue
		}
		s.balanceDomain(p, id, d)
	}
}

// balanceDomain asks the busiest core under d to give tasks to the idlest
// core of p's group.
func (s *System) balanceDomain(p *Processor, id policy.ID, d *topology.Domain) {
	busiest := topology.FindBusiestGroup(d, id)
	if busiest == p.leaf {
		// Nothing to pull. Idle cores elsewhere in d could be powered down here.
		return
	}
	donor := topology.ChildToward(d, busiest)
	taker := topology.ChildToward(d, p.leaf)
	if donor == nil || taker == nil || donor == taker {
		// The imbalance is inside p's own group; the lower domain handles it.
		return
	}

	if busiest.Load(id) == 0 {
		// d is idle.
		return
	}

	src := busiest.Core()
	dst := topology.GetIdlest(taker, id)
	req := s.pool.Renounce(id, donor, taker, src, dst)

	s.blog.WithFields(logrus.Fields{
		"core":         p.id,
		"domain":       d.String(),
		"domain_level": d.Level().String(),
		"policy":       id.String(),
		"src":          src,
		"dst":          dst,
		"src_load":     busiest.Load(id),
		"request_id":   req.ID().String(),
	}).Debug("Balancer: Requesting tasks from busiest core")

	if err := s.WriteRequest(req, src); err != nil {
		s.blog.WithError(err).WithField("core", p.id).Warn("Balancer: Failed to post renounce request")
	}
}

// WriteRequest queues req on target and raises the protocol vector there.
func (s *System) WriteRequest(req ipi.Request, target int) error {
	tp, err := s.Processor(target)
	if err != nil {
		s.pool.Release(req)
		return err
	}
	s.inFlight.Add(1)
	tp.requests.Push(req)
	return s.irq.Raise(tp.apicID, ipi.Vector)
}
