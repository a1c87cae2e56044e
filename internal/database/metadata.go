package database

import (
	"sync"
	"time"

	"smp-sched/internal/config"
	"smp-sched/internal/host"
	"smp-sched/internal/smp"
)

// RunMetadata describes one simulator run.
type RunMetadata struct {
	RunID            string    `json:"run_id"`
	MachineName      string    `json:"machine_name"`
	Description      string    `json:"description"`
	WorkloadChecksum string    `json:"workload_checksum"`
	Started          time.Time `json:"run_started"`
	Finished         time.Time `json:"run_finished"`
	DurationMS       int64     `json:"duration_ms"`
	Ticks            int64     `json:"ticks"`
	TickIntervalMS   int       `json:"tick_interval_ms"`
	Cores            int       `json:"cores"`
	Tasks            int       `json:"tasks"`
	Policy           string    `json:"policy"`
	BalanceInterval  int64     `json:"balance_interval"`
	MaxHops          int       `json:"max_hops"`
	TopologySource   string    `json:"topology_source"`
	Hostname         string    `json:"hostname"`
	OSInfo           string    `json:"os_info"`
	KernelVersion    string    `json:"kernel_version"`
	CPUVendor        string    `json:"cpu_vendor"`
	CPUModel         string    `json:"cpu_model"`
	DriverVersion    string    `json:"driver_version"`
	ConfigFile       string    `json:"config_file"`
}

func CollectRunMetadata(runID string, cfg *config.MachineConfig, configContent string, hc *host.HostConfig, cores int, started time.Time, driverVersion string) *RunMetadata {
	checksum, _ := config.WorkloadChecksum(cfg)
	m := cfg.Machine
	meta := &RunMetadata{
		RunID:            runID,
		MachineName:      m.Name,
		Description:      m.Description,
		WorkloadChecksum: checksum,
		Started:          started,
		Ticks:            m.Ticks,
		TickIntervalMS:   m.TickIntervalMS,
		Cores:            cores,
		Tasks:            cfg.TotalTasks(),
		Policy:           m.Policy,
		BalanceInterval:  m.Balancer.Interval,
		MaxHops:          m.Balancer.MaxHops,
		TopologySource:   m.Topology.Source,
		DriverVersion:    driverVersion,
		ConfigFile:       configContent,
	}
	if hc != nil {
		meta.Hostname = hc.Hostname
		meta.OSInfo = hc.OSInfo
		meta.KernelVersion = hc.KernelVersion
		meta.CPUVendor = hc.CPUVendor
		meta.CPUModel = hc.CPUModel
	}
	return meta
}

// Finish stamps the end of the run.
func (m *RunMetadata) Finish(at time.Time) {
	m.Finished = at
	m.DurationMS = at.Sub(m.Started).Milliseconds()
}

// Sample is one core's state after one tick.
type Sample struct {
	Tick    int64  `json:"tick"`
	Core    int    `json:"core"`
	Domain  string `json:"domain"`
	Policy  string `json:"policy"`
	Load    int64  `json:"load"`
	Queued  int    `json:"queued"`
	Pending int    `json:"pending"`
	Busy    bool   `json:"busy"`
}

func SamplesFromStats(tick int64, stats []smp.CoreStat) []Sample {
	out := make([]Sample, 0, len(stats))
	for _, s := range stats {
		out = append(out, Sample{
			Tick:    tick,
			Core:    s.Core,
			Domain:  s.Domain,
			Policy:  s.Policy,
			Load:    s.Load,
			Queued:  s.Queued,
			Pending: s.Pending,
			Busy:    s.Current != "idle",
		})
	}
	return out
}

// Series accumulates samples over a run. It is safe for concurrent use.
type Series struct {
	mu      sync.Mutex
	samples []Sample
}

func (s *Series) Append(samples ...Sample) {
	s.mu.Lock()
	s.samples = append(s.samples, samples...)
	s.mu.Unlock()
}

func (s *Series) Samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sample(nil), s.samples...)
}

func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}
