package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"smp-sched/internal/logging"
	"smp-sched/internal/policy"

	"gopkg.in/yaml.v3"
)

func LoadConfig(filepath string) (*MachineConfig, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

func LoadConfigWithContent(filepath string) (*MachineConfig, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	originalContent := string(data)
	config, err := Parse(originalContent)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, "", err
	}
	return config, originalContent, nil
}

// Parse expands ${VAR} references, decodes the YAML, applies defaults and
// validates the result.
func Parse(content string) (*MachineConfig, error) {
	var config MachineConfig
	if err := yaml.Unmarshal([]byte(expandEnvVars(content)), &config); err != nil {
		return nil, err
	}

	for keyName, w := range config.Workloads {
		w.KeyName = keyName
		config.Workloads[keyName] = w
	}
	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func applyDefaults(config *MachineConfig) {
	m := &config.Machine
	if m.Topology.Source == "" {
		m.Topology.Source = TopologySynthetic
	}
	if m.Topology.PackagesPerNode <= 0 {
		m.Topology.PackagesPerNode = 1
	}
	if m.Topology.ThreadsPerCore <= 0 {
		m.Topology.ThreadsPerCore = 1
	}
	if m.Data.SampleEvery <= 0 {
		m.Data.SampleEvery = 1
	}
}

func validateConfig(config *MachineConfig) error {
	m := config.Machine
	if m.Name == "" {
		return fmt.Errorf("machine name is required")
	}

	if m.Ticks <= 0 {
		return fmt.Errorf("ticks must be greater than 0")
	}

	if m.TickIntervalMS < 0 {
		return fmt.Errorf("tick_interval_ms must not be negative")
	}

	if _, err := policy.ParseID(m.Policy); err != nil {
		return err
	}

	if m.Balancer.Interval < 0 || m.Balancer.MaxHops < 0 {
		return fmt.Errorf("balancer interval and max_hops must not be negative")
	}

	cores := 0
	switch m.Topology.Source {
	case TopologySynthetic:
		t := m.Topology
		if t.Packages <= 0 || t.CoresPerPackage <= 0 {
			return fmt.Errorf("synthetic topology needs packages and cores_per_package")
		}
		cores = t.Packages * t.CoresPerPackage * t.ThreadsPerCore
	case TopologyHost:
		// core count is only known after discovery
	default:
		return fmt.Errorf("unknown topology source %q", m.Topology.Source)
	}

	// Validate database config
	db := m.Data.DB
	if db.Enabled && (db.Host == "" || db.Name == "" || db.Org == "" || db.Password == "") {
		return fmt.Errorf("incomplete database configuration")
	}

	if len(config.Workloads) == 0 {
		return fmt.Errorf("at least one workload must be defined")
	}

	indices := make(map[int]bool)
	for name, w := range config.Workloads {
		if w.Count <= 0 {
			return fmt.Errorf("workload %s: count must be greater than 0", name)
		}

		if w.Core < 0 || (cores > 0 && w.Core >= cores) {
			return fmt.Errorf("workload %s: core %d out of range", name, w.Core)
		}

		if w.StartT < 0 || w.StartT >= m.Ticks {
			return fmt.Errorf("workload %s: start_t %d outside the run", name, w.StartT)
		}

		if indices[w.Index] {
			return fmt.Errorf("workload %s: index %d is already used", name, w.Index)
		}
		indices[w.Index] = true
	}

	return nil
}
