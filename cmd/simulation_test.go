package main

import (
	"bytes"
	"strings"
	"testing"

	"smp-sched/internal/config"
	"smp-sched/internal/ipi"
	"smp-sched/internal/smp"
)

const machineYAML = `
machine:
  name: test
  ticks: 20
  topology:
    packages: 2
    cores_per_package: 2
    threads_per_core: 1
    packages_per_node: 2
  balancer:
    interval: 1

early:
  index: 0
  core: 0
  count: 3

late:
  index: 1
  core: 3
  count: 2
  prefix: l
  start_t: 5
`

func testSystem(t *testing.T) (*config.MachineConfig, *smp.System) {
	t.Helper()
	cfg, err := config.Parse(machineYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	hc, err := buildHost(cfg)
	if err != nil {
		t.Fatalf("build host: %v", err)
	}
	sys, err := newSystem(cfg, hc, ipi.NewController(), nil)
	if err != nil {
		t.Fatalf("new system: %v", err)
	}
	return cfg, sys
}

func TestNewSystemPlugsEveryCPU(t *testing.T) {
	_, sys := testSystem(t)
	procs := sys.Processors()
	if len(procs) != 4 {
		t.Fatalf("expected 4 cores, got %d", len(procs))
	}
	if got := procs[2].Leaf().String(); got != "system/numa0/chip1/core0/lp0" {
		t.Fatalf("unexpected leaf for core 2: %s", got)
	}
}

func TestBuildHostRejectsUnknownSource(t *testing.T) {
	cfg := &config.MachineConfig{}
	cfg.Machine.Topology.Source = "cloud"
	if _, err := buildHost(cfg); err == nil {
		t.Fatalf("expected error for unknown topology source")
	}
}

func TestArrivalsByTick(t *testing.T) {
	cfg, _ := testSystem(t)
	arrivals := arrivalsByTick(cfg)
	if len(arrivals[0]) != 1 || arrivals[0][0].KeyName != "early" {
		t.Fatalf("unexpected tick 0 arrivals %+v", arrivals[0])
	}
	if len(arrivals[5]) != 1 || arrivals[5][0].KeyName != "late" {
		t.Fatalf("unexpected tick 5 arrivals %+v", arrivals[5])
	}
}

func TestAddWorkload(t *testing.T) {
	cfg, sys := testSystem(t)
	late := cfg.Workloads["late"]
	if err := addWorkload(sys, late); err != nil {
		t.Fatalf("add workload: %v", err)
	}
	p, _ := sys.Processor(3)
	if got := p.Load(p.Active()); got != 2 {
		t.Fatalf("core 3 load = %d, want 2", got)
	}
	if got := sys.Tree().Root().Load(p.Active()); got != 2 {
		t.Fatalf("root load = %d, want 2", got)
	}

	late.Core = 9
	live := sys.Arena().Live()
	if err := addWorkload(sys, late); err == nil {
		t.Fatalf("expected error adding to a missing core")
	}
	if sys.Arena().Live() != live {
		t.Fatalf("failed add leaked a task: %d -> %d", live, sys.Arena().Live())
	}
}

func TestRenderTopology(t *testing.T) {
	cfg, sys := testSystem(t)
	if err := addWorkload(sys, cfg.Workloads["early"]); err != nil {
		t.Fatalf("add workload: %v", err)
	}

	var buf bytes.Buffer
	renderTopology(&buf, sys)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	// system, numa, 2 chips, 4 cores, 4 lps
	if len(lines) != 12 {
		t.Fatalf("expected 12 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "system  load=3" {
		t.Fatalf("unexpected root line %q", lines[0])
	}
	if !strings.HasPrefix(lines[4], "        lp0  core=0 apic=") || !strings.HasSuffix(lines[4], "load=3") {
		t.Fatalf("unexpected leaf line %q", lines[4])
	}
}
