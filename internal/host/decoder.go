package host

import (
	"fmt"
	"math/bits"
)

// Location is a core's position in the hardware hierarchy.
type Location struct {
	Node    int
	Package int
	Core    int
	Thread  int
}

func (l Location) String() string {
	return fmt.Sprintf("node%d/pkg%d/core%d/thread%d", l.Node, l.Package, l.Core, l.Thread)
}

// Decoder splits a raw APIC id into per-level identifiers. The low SMTBits
// hold the thread id, the next CoreBits the core id, and whatever remains is
// the package id. Packages are grouped into NUMA nodes PackagesPerNode at a time.
type Decoder struct {
	SMTBits         uint
	CoreBits        uint
	PackagesPerNode int
}

// fieldWidth is the number of bits needed to hold count distinct ids.
func fieldWidth(count int) uint {
	if count <= 1 {
		return 0
	}
	return uint(bits.Len(uint(count - 1)))
}

// NewDecoder derives the field widths from the maximum logical processors and
// cores per package the CPU reports.
func NewDecoder(maxLogicalPerPackage, maxCoresPerPackage, packagesPerNode int) (Decoder, error) {
	if maxCoresPerPackage <= 0 {
		return Decoder{}, fmt.Errorf("max cores per package must be >= 1, got %d", maxCoresPerPackage)
	}
	if maxLogicalPerPackage < maxCoresPerPackage {
		return Decoder{}, fmt.Errorf("max logical per package (%d) below max cores per package (%d)", maxLogicalPerPackage, maxCoresPerPackage)
	}
	if packagesPerNode <= 0 {
		packagesPerNode = 1
	}
	threads := (maxLogicalPerPackage + maxCoresPerPackage - 1) / maxCoresPerPackage
	return Decoder{
		SMTBits:         fieldWidth(threads),
		CoreBits:        fieldWidth(maxCoresPerPackage),
		PackagesPerNode: packagesPerNode,
	}, nil
}

func (d Decoder) Decode(apicID uint32) Location {
	thread := int(apicID & (1<<d.SMTBits - 1))
	core := int((apicID >> d.SMTBits) & (1<<d.CoreBits - 1))
	pkg := int(apicID >> (d.SMTBits + d.CoreBits))
	ppn := d.PackagesPerNode
	if ppn <= 0 {
		ppn = 1
	}
	return Location{Node: pkg / ppn, Package: pkg, Core: core, Thread: thread}
}

// Encode is the inverse of Decode; the Node field is ignored.
func (d Decoder) Encode(l Location) uint32 {
	return uint32(l.Package)<<(d.SMTBits+d.CoreBits) |
		uint32(l.Core)<<d.SMTBits |
		uint32(l.Thread)
}
