package host

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"smp-sched/internal/logging"

	"github.com/sirupsen/logrus"
)

// HostConfig describes the processors the simulator runs on, or the
// synthetic machine it pretends to be.
type HostConfig struct {
	// CPU Information
	CPUVendor string
	CPUModel  string

	// System Information
	Hostname      string
	OSInfo        string
	KernelVersion string

	Topology CPUTopology
	Decoder  Decoder
}

// CPUTopology is the processor layout in enumeration order.
type CPUTopology struct {
	Sockets        int
	CoresPerSocket int
	ThreadsPerCore int
	LogicalCores   int
	CPUs           []CPUInfo
}

// CPUInfo is one logical processor as enumerated at boot.
type CPUInfo struct {
	LogicalID  int
	PhysicalID int
	CoreID     int
	APICID     uint32
	// Siblings and Cores are the per-package maxima the CPU reports.
	Siblings int
	Cores    int
	HasAPIC  bool
}

const cpuInfoPath = "/proc/cpuinfo"

// Discover reads the host's processors and derives the APIC decoder from
// them. Only CPUs in the process's affinity mask are returned.
func Discover(packagesPerNode int) (*HostConfig, error) {
	logger := logging.GetLogger()

	hc := &HostConfig{}
	hc.initSystemInfo()

	file, err := os.Open(cpuInfoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cpuInfoPath, err)
	}
	defer file.Close()

	cpus, vendor, model, err := ParseCPUInfo(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cpuInfoPath, err)
	}
	hc.CPUVendor = vendor
	hc.CPUModel = model

	allowed, err := allowedCPUs()
	if err != nil {
		logger.WithError(err).Warn("Failed to read CPU affinity mask, using every enumerated CPU")
	} else {
		filtered := cpus[:0]
		for _, c := range cpus {
			if allowed(c.LogicalID) {
				filtered = append(filtered, c)
			}
		}
		cpus = filtered
	}
	if len(cpus) == 0 {
		return nil, fmt.Errorf("no usable CPUs found")
	}

	if err := hc.setCPUs(cpus, packagesPerNode); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"cpu_model":        hc.CPUModel,
		"sockets":          hc.Topology.Sockets,
		"cores_per_socket": hc.Topology.CoresPerSocket,
		"threads_per_core": hc.Topology.ThreadsPerCore,
		"logical_cores":    hc.Topology.LogicalCores,
		"smt_bits":         hc.Decoder.SMTBits,
		"core_bits":        hc.Decoder.CoreBits,
	}).Info("Host topology discovered")

	return hc, nil
}

func (hc *HostConfig) initSystemInfo() {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	hc.Hostname = hostname
	hc.OSInfo = runtime.GOOS + "/" + runtime.GOARCH

	if data, err := os.ReadFile("/proc/version"); err == nil {
		version := strings.Fields(string(data))
		if len(version) >= 3 {
			hc.KernelVersion = version[2]
		}
	}
	if hc.KernelVersion == "" {
		hc.KernelVersion = "unknown"
	}
}

// setCPUs fills in the topology and decoder. CPUs without an APIC id (non-x86
// hosts) get one synthesised from their package, core and thread position.
func (hc *HostConfig) setCPUs(cpus []CPUInfo, packagesPerNode int) error {
	maxLogical, maxCores := 1, 1
	sockets := make(map[int]bool)
	coresBySocket := make(map[int]map[int]bool)
	for _, c := range cpus {
		if c.Siblings > maxLogical {
			maxLogical = c.Siblings
		}
		if c.Cores > maxCores {
			maxCores = c.Cores
		}
		sockets[c.PhysicalID] = true
		if coresBySocket[c.PhysicalID] == nil {
			coresBySocket[c.PhysicalID] = make(map[int]bool)
		}
		coresBySocket[c.PhysicalID][c.CoreID] = true
	}
	if maxLogical < maxCores {
		maxLogical = maxCores
	}

	dec, err := NewDecoder(maxLogical, maxCores, packagesPerNode)
	if err != nil {
		return err
	}

	synthesise := true
	for _, c := range cpus {
		if c.HasAPIC {
			synthesise = false
			break
		}
	}
	if synthesise {
		// Dense (package, core) -> next thread index.
		threadIdx := make(map[[2]int]int)
		for i := range cpus {
			c := &cpus[i]
			key := [2]int{c.PhysicalID, c.CoreID}
			c.APICID = dec.Encode(Location{Package: c.PhysicalID, Core: c.CoreID, Thread: threadIdx[key]})
			threadIdx[key]++
		}
	}

	coresPerSocket := 0
	for _, set := range coresBySocket {
		if len(set) > coresPerSocket {
			coresPerSocket = len(set)
		}
	}
	threads := maxLogical / maxCores
	if threads < 1 {
		threads = 1
	}

	hc.Decoder = dec
	hc.Topology = CPUTopology{
		Sockets:        len(sockets),
		CoresPerSocket: coresPerSocket,
		ThreadsPerCore: threads,
		LogicalCores:   len(cpus),
		CPUs:           cpus,
	}
	return nil
}

// ParseCPUInfo parses the /proc/cpuinfo format. Missing per-package counts
// default to one.
func ParseCPUInfo(r io.Reader) ([]CPUInfo, string, string, error) {
	var (
		cpus   []CPUInfo
		cur    *CPUInfo
		vendor string
		model  string
	)
	flush := func() {
		if cur != nil {
			if cur.Cores == 0 {
				cur.Cores = 1
			}
			if cur.Siblings == 0 {
				cur.Siblings = cur.Cores
			}
			cpus = append(cpus, *cur)
			cur = nil
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "processor":
			flush()
			id, err := strconv.Atoi(value)
			if err != nil {
				return nil, "", "", fmt.Errorf("invalid processor number %q: %w", value, err)
			}
			cur = &CPUInfo{LogicalID: id}
		case "vendor_id":
			if vendor == "" {
				vendor = value
			}
		case "model name":
			if model == "" {
				model = value
			}
		}

		if cur == nil {
			continue
		}
		switch key {
		case "physical id":
			cur.PhysicalID = atoiOr(value, 0)
		case "core id":
			cur.CoreID = atoiOr(value, 0)
		case "apicid":
			cur.APICID = uint32(atoiOr(value, 0))
			cur.HasAPIC = true
		case "siblings":
			cur.Siblings = atoiOr(value, 0)
		case "cpu cores":
			cur.Cores = atoiOr(value, 0)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, "", "", err
	}
	flush()

	if vendor == "" {
		vendor = "unknown"
	}
	if model == "" {
		model = "unknown"
	}
	sort.Slice(cpus, func(i, j int) bool { return cpus[i].LogicalID < cpus[j].LogicalID })
	return cpus, vendor, model, nil
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
