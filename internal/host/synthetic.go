package host

import (
	"fmt"
	"runtime"
)

// Synthetic builds a uniform machine of packages x cores x threads. APIC ids
// are laid out the way x86 firmware does, so decoding them recovers the
// location each CPU was generated from.
func Synthetic(packages, coresPerPackage, threadsPerCore, packagesPerNode int) (*HostConfig, error) {
	if packages <= 0 || coresPerPackage <= 0 || threadsPerCore <= 0 {
		return nil, fmt.Errorf("invalid synthetic topology %dx%dx%d", packages, coresPerPackage, threadsPerCore)
	}
	dec, err := NewDecoder(coresPerPackage*threadsPerCore, coresPerPackage, packagesPerNode)
	if err != nil {
		return nil, err
	}

	cpus := make([]CPUInfo, 0, packages*coresPerPackage*threadsPerCore)
	logical := 0
	for pkg := 0; pkg < packages; pkg++ {
		for core := 0; core < coresPerPackage; core++ {
			for th := 0; th < threadsPerCore; th++ {
				cpus = append(cpus, CPUInfo{
					LogicalID:  logical,
					PhysicalID: pkg,
					CoreID:     core,
					APICID:     dec.Encode(Location{Package: pkg, Core: core, Thread: th}),
					Siblings:   coresPerPackage * threadsPerCore,
					Cores:      coresPerPackage,
					HasAPIC:    true,
				})
				logical++
			}
		}
	}

	return &HostConfig{
		CPUVendor:     "synthetic",
		CPUModel:      fmt.Sprintf("%dP/%dC/%dT", packages, coresPerPackage, threadsPerCore),
		Hostname:      "synthetic",
		OSInfo:        runtime.GOOS + "/" + runtime.GOARCH,
		KernelVersion: "none",
		Decoder:       dec,
		Topology: CPUTopology{
			Sockets:        packages,
			CoresPerSocket: coresPerPackage,
			ThreadsPerCore: threadsPerCore,
			LogicalCores:   len(cpus),
			CPUs:           cpus,
		},
	}, nil
}

// APICIDs returns the APIC id of every CPU in enumeration order.
func (hc *HostConfig) APICIDs() []uint32 {
	out := make([]uint32, 0, len(hc.Topology.CPUs))
	for _, c := range hc.Topology.CPUs {
		out = append(out, c.APICID)
	}
	return out
}
