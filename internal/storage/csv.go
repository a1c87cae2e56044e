// Package storage exports a run's samples as CSV, one file per core plus a
// metadata file.
package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"smp-sched/internal/database"

	log "github.com/sirupsen/logrus"
)

var sampleHeader = []string{
	"run_id", "tick", "core", "domain", "policy", "load", "queued", "pending", "busy",
}

// ExportToCSV writes the metadata and per-core sample files under exportPath
// and returns the paths written, metadata first.
func ExportToCSV(exportPath string, meta *database.RunMetadata, samples []database.Sample) ([]string, error) {
	if meta == nil {
		return nil, fmt.Errorf("run metadata is nil")
	}
	if err := os.MkdirAll(exportPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	prefix := fmt.Sprintf("%s_%s", meta.MachineName, meta.Started.UTC().Format("20060102_150405"))
	metadataFile := filepath.Join(exportPath, prefix+"_metadata.csv")
	if err := exportMetadata(metadataFile, meta); err != nil {
		return nil, fmt.Errorf("failed to export metadata: %w", err)
	}
	written := []string{metadataFile}

	byCore := make(map[int][]database.Sample)
	for _, s := range samples {
		byCore[s.Core] = append(byCore[s.Core], s)
	}
	cores := make([]int, 0, len(byCore))
	for c := range byCore {
		cores = append(cores, c)
	}
	sort.Ints(cores)

	for _, core := range cores {
		filename := filepath.Join(exportPath, fmt.Sprintf("%s_core%d.csv", prefix, core))
		if err := exportCore(filename, meta.RunID, byCore[core]); err != nil {
			return written, fmt.Errorf("failed to export core %d: %w", core, err)
		}
		written = append(written, filename)
	}

	log.WithFields(log.Fields{
		"export_path": exportPath,
		"machine":     meta.MachineName,
		"cores":       len(cores),
		"samples":     len(samples),
	}).Info("Exported samples to CSV")
	return written, nil
}

func exportMetadata(filename string, meta *database.RunMetadata) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	rows := [][]string{
		{"key", "value"},
		{"run_id", meta.RunID},
		{"machine_name", meta.MachineName},
		{"workload_checksum", meta.WorkloadChecksum},
		{"run_started", meta.Started.Format(time.RFC3339Nano)},
		{"run_finished", meta.Finished.Format(time.RFC3339Nano)},
		{"duration_ms", strconv.FormatInt(meta.DurationMS, 10)},
		{"ticks", strconv.FormatInt(meta.Ticks, 10)},
		{"cores", strconv.Itoa(meta.Cores)},
		{"tasks", strconv.Itoa(meta.Tasks)},
		{"policy", meta.Policy},
		{"balance_interval", strconv.FormatInt(meta.BalanceInterval, 10)},
		{"max_hops", strconv.Itoa(meta.MaxHops)},
		{"topology_source", meta.TopologySource},
		{"cpu_model", meta.CPUModel},
		{"driver_version", meta.DriverVersion},
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

func exportCore(filename, runID string, samples []database.Sample) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(sampleHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			runID,
			strconv.FormatInt(s.Tick, 10),
			strconv.Itoa(s.Core),
			s.Domain,
			s.Policy,
			strconv.FormatInt(s.Load, 10),
			strconv.Itoa(s.Queued),
			strconv.Itoa(s.Pending),
			strconv.FormatBool(s.Busy),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	return nil
}
