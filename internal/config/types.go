package config

import (
	"sort"
	"strconv"
	"time"
)

type MachineConfig struct {
	Machine   MachineInfo               `yaml:"machine"`
	Workloads map[string]WorkloadConfig `yaml:",inline"`
}

type MachineInfo struct {
	Name             string         `yaml:"name"`
	Description      string         `yaml:"description"`
	Ticks            int64          `yaml:"ticks"`
	TickIntervalMS   int            `yaml:"tick_interval_ms"`
	LogLevel         string         `yaml:"log_level"`
	BalancerLogLevel string         `yaml:"balancer_log_level"`
	Policy           string         `yaml:"policy"`
	Pin              bool           `yaml:"pin"`
	Topology         TopologyConfig `yaml:"topology"`
	Balancer         BalancerConfig `yaml:"balancer"`
	Data             DataConfig     `yaml:"data"`
}

const (
	TopologySynthetic = "synthetic"
	TopologyHost      = "host"
)

type TopologyConfig struct {
	Source          string `yaml:"source"`
	Packages        int    `yaml:"packages"`
	CoresPerPackage int    `yaml:"cores_per_package"`
	ThreadsPerCore  int    `yaml:"threads_per_core"`
	PackagesPerNode int    `yaml:"packages_per_node"`
}

type BalancerConfig struct {
	// Interval is the base backoff in ticks; a domain at level l waits
	// (l+1)^2 intervals between passes.
	Interval int64 `yaml:"interval"`
	MaxHops  int   `yaml:"max_hops"`
}

type DataConfig struct {
	DB          DatabaseConfig `yaml:"db"`
	SampleEvery int64          `yaml:"sample_every"`
	SpoolDir    string         `yaml:"spool_dir"`
	ExportDir   string         `yaml:"export_dir"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Org      string `yaml:"org"`
}

// WorkloadConfig is a batch of identical tasks handed to one core.
type WorkloadConfig struct {
	KeyName string `yaml:"-"`
	Index   int    `yaml:"index"`
	Core    int    `yaml:"core"`
	Count   int    `yaml:"count"`
	Prefix  string `yaml:"prefix,omitempty"`
	// StartT is the tick at which the batch arrives; 0 means before the first.
	StartT int64 `yaml:"start_t,omitempty"`
}

func (c *MachineConfig) GetTickInterval() time.Duration {
	return time.Duration(c.Machine.TickIntervalMS) * time.Millisecond
}

func (c *MachineConfig) GetWorkloadsSorted() []WorkloadConfig {
	workloads := make([]WorkloadConfig, 0, len(c.Workloads))
	for _, w := range c.Workloads {
		workloads = append(workloads, w)
	}
	sort.Slice(workloads, func(i, j int) bool {
		if workloads[i].Index != workloads[j].Index {
			return workloads[i].Index < workloads[j].Index
		}
		return workloads[i].KeyName < workloads[j].KeyName
	})
	return workloads
}

// TotalTasks is the number of tasks all workloads add over the run.
func (c *MachineConfig) TotalTasks() int {
	n := 0
	for _, w := range c.Workloads {
		n += w.Count
	}
	return n
}

func (w WorkloadConfig) TaskName(i int) string {
	prefix := w.Prefix
	if prefix == "" {
		prefix = w.KeyName
	}
	return prefix + "-" + strconv.Itoa(i)
}
