package main

import (
	"fmt"
	"io"
	"strings"

	"smp-sched/internal/config"
	"smp-sched/internal/cpuallocator"
	"smp-sched/internal/host"
	"smp-sched/internal/ipi"
	"smp-sched/internal/logging"
	"smp-sched/internal/policy"
	"smp-sched/internal/smp"
	"smp-sched/internal/task"
	"smp-sched/internal/topology"

	"github.com/sirupsen/logrus"
)

// buildHost returns the machine the run simulates: the real host or a
// synthetic one described by the config.
func buildHost(cfg *config.MachineConfig) (*host.HostConfig, error) {
	t := cfg.Machine.Topology
	switch t.Source {
	case config.TopologyHost:
		return host.Discover(t.PackagesPerNode)
	case config.TopologySynthetic, "":
		return host.Synthetic(t.Packages, t.CoresPerPackage, t.ThreadsPerCore, t.PackagesPerNode)
	}
	return nil, fmt.Errorf("unknown topology source %q", t.Source)
}

// newSystem plugs every CPU of hc into a fresh System wired to ctrl.
func newSystem(cfg *config.MachineConfig, hc *host.HostConfig, ctrl *ipi.Controller, sw smp.Switcher) (*smp.System, error) {
	pid, err := policy.ParseID(cfg.Machine.Policy)
	if err != nil {
		return nil, err
	}
	sys, err := smp.NewSystem(task.NewArena(), smp.Options{
		Decoder:         hc.Decoder,
		Interrupter:     ctrl,
		Switcher:        sw,
		BalanceInterval: cfg.Machine.Balancer.Interval,
		MaxHops:         cfg.Machine.Balancer.MaxHops,
		DefaultPolicy:   pid,
		Logger:          logging.GetLogger(),
		BalancerLogger:  logging.GetBalancerLogger(),
	})
	if err != nil {
		return nil, err
	}
	for _, apic := range hc.APICIDs() {
		if _, err := sys.Plug(apic); err != nil {
			return nil, err
		}
	}
	return sys, nil
}

// arrivalsByTick groups workloads by the tick after which they are added.
func arrivalsByTick(cfg *config.MachineConfig) map[int64][]config.WorkloadConfig {
	out := make(map[int64][]config.WorkloadConfig)
	for _, w := range cfg.GetWorkloadsSorted() {
		out[w.StartT] = append(out[w.StartT], w)
	}
	return out
}

func addWorkload(sys *smp.System, w config.WorkloadConfig) error {
	logger := logging.GetLogger()
	for i := 0; i < w.Count; i++ {
		h := sys.Arena().New(w.TaskName(i))
		if err := sys.Add(w.Core, h); err != nil {
			_ = sys.Arena().Free(h)
			return fmt.Errorf("workload %s: %w", w.KeyName, err)
		}
	}
	logger.WithFields(logrus.Fields{
		"workload": w.KeyName,
		"core":     w.Core,
		"count":    w.Count,
		"start_t":  w.StartT,
	}).Debug("Workload added")
	return nil
}

// renderTopology prints the domain tree, one domain per line, indented by depth.
func renderTopology(out io.Writer, sys *smp.System) {
	apics := make(map[int]uint32)
	for _, p := range sys.Processors() {
		apics[p.ID()] = p.APICID()
	}
	sys.Tree().Walk(func(d *topology.Domain) {
		depth := int(topology.System - d.Level())
		path := d.String()
		name := path[strings.LastIndex(path, "/")+1:]
		if d.IsLeaf() {
			fmt.Fprintf(out, "%s%s  core=%d apic=%#x load=%d\n", strings.Repeat("  ", depth), name, d.Core(), apics[d.Core()], d.Load(policy.RoundRobin))
			return
		}
		fmt.Fprintf(out, "%s%s  load=%d\n", strings.Repeat("  ", depth), name, d.Load(policy.RoundRobin))
	})
}

// pinTargets picks a host CPU for each of cores core loops, physical cores
// before hyperthread siblings.
func pinTargets(cores int) ([]int, error) {
	hc, err := host.Discover(1)
	if err != nil {
		return nil, err
	}
	alloc, err := cpuallocator.NewPhysicalCoreAllocator(hc, logging.GetLogger())
	if err != nil {
		return nil, err
	}
	return cpuallocator.Plan(alloc, cores), nil
}
