package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

type workloadChecksumEntry struct {
	Key    string `json:"key"`
	Index  int    `json:"index"`
	Core   int    `json:"core"`
	Count  int    `json:"count"`
	StartT int64  `json:"start_t"`
}

type workloadChecksumPayload struct {
	Topology  TopologyConfig          `json:"topology"`
	Ticks     int64                   `json:"ticks"`
	Workloads []workloadChecksumEntry `json:"workloads"`
}

// WorkloadChecksum returns a short, stable checksum of what the run puts on
// the machine (topology, length, task batches), independent of balancer
// tuning, so runs of the same workload can be compared.
//
// It is the first 6 hex characters of the MD5 of a canonical JSON encoding.
func WorkloadChecksum(cfg *MachineConfig) (string, error) {
	if cfg == nil {
		return "", nil
	}

	sorted := cfg.GetWorkloadsSorted()
	entries := make([]workloadChecksumEntry, 0, len(sorted))
	for _, w := range sorted {
		entries = append(entries, workloadChecksumEntry{
			Key:    w.KeyName,
			Index:  w.Index,
			Core:   w.Core,
			Count:  w.Count,
			StartT: w.StartT,
		})
	}

	payload := workloadChecksumPayload{
		Topology:  cfg.Machine.Topology,
		Ticks:     cfg.Machine.Ticks,
		Workloads: entries,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(b)
	hexStr := hex.EncodeToString(sum[:])
	if len(hexStr) > 6 {
		hexStr = hexStr[:6]
	}
	return hexStr, nil
}
