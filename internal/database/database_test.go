package database

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"smp-sched/internal/config"
	"smp-sched/internal/host"
	"smp-sched/internal/ipi"
	"smp-sched/internal/logging"
	"smp-sched/internal/smp"
	"smp-sched/internal/task"
)

func testConfig(t *testing.T) *config.MachineConfig {
	t.Helper()
	cfg, err := config.Parse(`
machine:
  name: spool-test
  ticks: 10
  tick_interval_ms: 5
  topology:
    packages: 1
    cores_per_package: 2
w:
  core: 0
  count: 3
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return cfg
}

func testSystem(t *testing.T) *smp.System {
	t.Helper()
	hc, err := host.Synthetic(1, 2, 1, 1)
	if err != nil {
		t.Fatalf("synthetic: %v", err)
	}
	sys, err := smp.NewSystem(task.NewArena(), smp.Options{
		Decoder:        hc.Decoder,
		Interrupter:    &ipi.Recorder{},
		Logger:         logging.Discard(),
		BalancerLogger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("system: %v", err)
	}
	for _, apic := range hc.APICIDs() {
		if _, err := sys.Plug(apic); err != nil {
			t.Fatalf("plug: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := sys.Add(0, sys.Arena().New("w")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return sys
}

func TestSamplesFromStats(t *testing.T) {
	sys := testSystem(t)
	if _, err := sys.Tick(0, 1); err != nil {
		t.Fatalf("tick: %v", err)
	}
	samples := SamplesFromStats(1, sys.Stats())
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if !samples[0].Busy || samples[0].Load != 3 || samples[0].Tick != 1 {
		t.Fatalf("unexpected core 0 sample %+v", samples[0])
	}
	if samples[1].Busy || samples[1].Load != 0 {
		t.Fatalf("unexpected core 1 sample %+v", samples[1])
	}
}

func TestCollectRunMetadata(t *testing.T) {
	cfg := testConfig(t)
	hc, _ := host.Synthetic(1, 2, 1, 1)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	meta := CollectRunMetadata("run-1", cfg, "raw", hc, 2, start, "dev")
	meta.Finish(start.Add(1500 * time.Millisecond))

	if meta.Tasks != 3 || meta.Cores != 2 || meta.CPUVendor != "synthetic" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.DurationMS != 1500 {
		t.Fatalf("duration = %d, want 1500", meta.DurationMS)
	}
	if len(meta.WorkloadChecksum) != 6 {
		t.Fatalf("checksum %q", meta.WorkloadChecksum)
	}
	if got := sampleTime(meta, 4); !got.Equal(start.Add(20 * time.Millisecond)) {
		t.Fatalf("sample time for tick 4 = %s", got)
	}
}

func TestSamplePointTags(t *testing.T) {
	meta := &RunMetadata{RunID: "r", MachineName: "m", Started: time.Unix(0, 0)}
	p := samplePoint(meta, Sample{Tick: 3, Core: 7, Domain: "system/numa0/chip0/core3/lp1", Policy: "round_robin", Load: 2})

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["core"] != "7" || tags["run_id"] != "r" || tags["policy"] != "round_robin" {
		t.Fatalf("unexpected tags %v", tags)
	}
	if p.Name() != loadMeasurement {
		t.Fatalf("measurement %q", p.Name())
	}
	// unpaced runs still spread ticks 1ms apart
	if !p.Time().Equal(time.Unix(0, 0).Add(3 * time.Millisecond)) {
		t.Fatalf("point time %s", p.Time())
	}
}

func TestSpoolRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	sys := testSystem(t)
	meta := CollectRunMetadata("0b9c7a3e-1111-2222-3333-444455556666", cfg, "raw", nil, 2, time.Now(), "dev")
	series := &Series{}
	series.Append(SamplesFromStats(1, sys.Stats())...)

	dir := t.TempDir()
	path, err := WriteSpoolArtifact(dir, BuildSpoolArtifact(meta, series, sys))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasSuffix(path, "_0b9c7a3e.json.gz") {
		t.Fatalf("unexpected artifact name %s", filepath.Base(path))
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp.*"))
	if len(leftovers) != 0 {
		t.Fatalf("temporary files left behind: %v", leftovers)
	}

	got, err := ReadSpoolArtifact(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.RunID != meta.RunID || got.MachineName != "spool-test" || got.Version != 1 {
		t.Fatalf("unexpected artifact header %+v", got)
	}
	if len(got.Samples) != 2 || len(got.Cores) != 2 {
		t.Fatalf("expected 2 samples and 2 cores, got %d and %d", len(got.Samples), len(got.Cores))
	}
	if len(got.Domains) == 0 || got.Domains[0].Load != 3 {
		t.Fatalf("unexpected domain snapshot %+v", got.Domains)
	}
}

func TestWriteSpoolArtifactNil(t *testing.T) {
	if _, err := WriteSpoolArtifact(t.TempDir(), nil); err == nil {
		t.Fatalf("expected error for nil artifact")
	}
}

func TestDefaultSpoolDir(t *testing.T) {
	t.Setenv("SMP_SCHED_SPOOL_DIR", "/tmp/elsewhere")
	if got := DefaultSpoolDir(); got != "/tmp/elsewhere" {
		t.Fatalf("DefaultSpoolDir = %q", got)
	}
}
