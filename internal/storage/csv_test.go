package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smp-sched/internal/database"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestExportToCSV(t *testing.T) {
	dir := t.TempDir()
	meta := &database.RunMetadata{
		RunID:       "run-1",
		MachineName: "box",
		Started:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Ticks:       2,
		Cores:       2,
	}
	samples := []database.Sample{
		{Tick: 1, Core: 1, Domain: "system/numa0/chip0/core0/lp1", Policy: "round_robin", Load: 3, Busy: true},
		{Tick: 1, Core: 0, Domain: "system/numa0/chip0/core0/lp0", Policy: "round_robin", Load: 0},
		{Tick: 2, Core: 1, Domain: "system/numa0/chip0/core0/lp1", Policy: "round_robin", Load: 2, Pending: 1, Busy: true},
	}

	paths, err := ExportToCSV(dir, meta, samples)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := []string{
		filepath.Join(dir, "box_20250301_120000_metadata.csv"),
		filepath.Join(dir, "box_20250301_120000_core0.csv"),
		filepath.Join(dir, "box_20250301_120000_core1.csv"),
	}
	if len(paths) != len(want) {
		t.Fatalf("expected %v, got %v", want, paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, paths)
		}
	}

	rows := readCSV(t, paths[2])
	if len(rows) != 3 {
		t.Fatalf("core1 should have header plus 2 rows, got %d", len(rows))
	}
	if rows[2][1] != "2" || rows[2][5] != "2" || rows[2][7] != "1" || rows[2][8] != "true" {
		t.Fatalf("unexpected row %v", rows[2])
	}

	md := readCSV(t, paths[0])
	if md[1][0] != "run_id" || md[1][1] != "run-1" {
		t.Fatalf("unexpected metadata rows %v", md[:2])
	}
}

func TestExportToCSVNilMetadata(t *testing.T) {
	if _, err := ExportToCSV(t.TempDir(), nil, nil); err == nil {
		t.Fatalf("expected error for nil metadata")
	}
}
