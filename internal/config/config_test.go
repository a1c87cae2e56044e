package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `
machine:
  name: two-socket
  ticks: 200
  policy: round_robin
  topology:
    packages: 2
    cores_per_package: 2
    threads_per_core: 2
  balancer:
    interval: 2
  data:
    db:
      enabled: true
      host: ${SMP_TEST_INFLUX_HOST}
      name: sched
      org: lab
      password: secret

web:
  index: 0
  core: 0
  count: 12

batch:
  index: 1
  core: 5
  count: 4
  prefix: b
  start_t: 50
`

func TestParse(t *testing.T) {
	t.Setenv("SMP_TEST_INFLUX_HOST", "http://influx:8086")
	cfg, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Machine.Data.DB.Host != "http://influx:8086" {
		t.Fatalf("env var not expanded: %q", cfg.Machine.Data.DB.Host)
	}
	if cfg.Machine.Topology.Source != TopologySynthetic || cfg.Machine.Topology.PackagesPerNode != 1 {
		t.Fatalf("defaults not applied: %+v", cfg.Machine.Topology)
	}
	if cfg.Machine.Data.SampleEvery != 1 {
		t.Fatalf("sample_every default = %d", cfg.Machine.Data.SampleEvery)
	}
	if cfg.TotalTasks() != 16 {
		t.Fatalf("total tasks = %d, want 16", cfg.TotalTasks())
	}

	ws := cfg.GetWorkloadsSorted()
	if len(ws) != 2 || ws[0].KeyName != "web" || ws[1].KeyName != "batch" {
		t.Fatalf("unexpected workload order %+v", ws)
	}
	if got := ws[0].TaskName(3); got != "web-3" {
		t.Fatalf("task name %q", got)
	}
	if got := ws[1].TaskName(0); got != "b-0" {
		t.Fatalf("prefixed task name %q", got)
	}
}

func TestParse_UnsetEnvVarIsKept(t *testing.T) {
	if got := expandEnvVars("x: ${SMP_TEST_SURELY_UNSET_VAR}"); got != "x: ${SMP_TEST_SURELY_UNSET_VAR}" {
		t.Fatalf("unexpected expansion %q", got)
	}
}

func TestValidateConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		edit func(string) string
		want string
	}{
		{"no name", func(s string) string { return strings.Replace(s, "name: two-socket", "name: \"\"", 1) }, "machine name"},
		{"no ticks", func(s string) string { return strings.Replace(s, "ticks: 200", "ticks: 0", 1) }, "ticks"},
		{"bad policy", func(s string) string { return strings.Replace(s, "policy: round_robin", "policy: cfs", 1) }, "unknown scheduling policy"},
		{"core out of range", func(s string) string { return strings.Replace(s, "core: 5", "core: 8", 1) }, "out of range"},
		{"late start", func(s string) string { return strings.Replace(s, "start_t: 50", "start_t: 500", 1) }, "outside the run"},
		{"start on the last tick", func(s string) string { return strings.Replace(s, "start_t: 50", "start_t: 200", 1) }, "outside the run"},
		{"duplicate index", func(s string) string { return strings.Replace(s, "index: 1", "index: 0", 1) }, "already used"},
		{"incomplete db", func(s string) string { return strings.Replace(s, "org: lab", "org: \"\"", 1) }, "database"},
		{"bad source", func(s string) string {
			return strings.Replace(s, "packages: 2\n", "source: acpi\n    packages: 2\n", 1)
		}, "topology source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.edit(sample))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfigWithContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.yml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, content, err := LoadConfigWithContent(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if content != sample || cfg.Machine.Name != "two-socket" {
		t.Fatalf("unexpected result %q", cfg.Machine.Name)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestWorkloadChecksum_IgnoresMapOrderAndTuning(t *testing.T) {
	cfg1, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg2, err := Parse(strings.Replace(sample, "interval: 2", "interval: 9", 1))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	s1, err := WorkloadChecksum(cfg1)
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	s2, _ := WorkloadChecksum(cfg2)
	if s1 != s2 || len(s1) != 6 {
		t.Fatalf("checksums differ or malformed: %q vs %q", s1, s2)
	}

	cfg2.Workloads["web"] = WorkloadConfig{KeyName: "web", Index: 0, Core: 0, Count: 13}
	s3, _ := WorkloadChecksum(cfg2)
	if s3 == s1 {
		t.Fatalf("changing a workload must change the checksum")
	}
}
