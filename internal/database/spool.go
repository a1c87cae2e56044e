package database

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smp-sched/internal/policy"
	"smp-sched/internal/smp"
	"smp-sched/internal/topology"
)

type SpoolArtifact struct {
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`

	RunID            string `json:"run_id"`
	MachineName      string `json:"machine_name"`
	WorkloadChecksum string `json:"workload_checksum"`

	Metadata *RunMetadata          `json:"metadata"`
	Samples  []Sample              `json:"samples"`
	Cores    []smp.CoreStat        `json:"cores"`
	Domains  []topology.DomainStat `json:"domains"`
}

func DefaultSpoolDir() string {
	if v := strings.TrimSpace(os.Getenv("SMP_SCHED_SPOOL_DIR")); v != "" {
		return v
	}
	return "spool"
}

// WriteSpoolArtifact writes a gzip-compressed JSON artifact to disk atomically.
// It returns the final file path.
func WriteSpoolArtifact(dir string, artifact *SpoolArtifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("spool artifact is nil")
	}
	if dir == "" {
		dir = DefaultSpoolDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	checksum := artifact.WorkloadChecksum
	if checksum == "" {
		checksum = "nocsum"
	}
	name := fmt.Sprintf(
		"run_%s_%s_%s.json.gz",
		artifact.CreatedAt.UTC().Format("20060102T150405Z"),
		checksum,
		shortID(artifact.RunID),
	)
	path := filepath.Join(dir, name)
	if err := writeAtomic(path, func(w io.Writer) error {
		gz := gzip.NewWriter(w)
		enc := json.NewEncoder(gz)
		enc.SetIndent("", "  ")
		if err := enc.Encode(artifact); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	}); err != nil {
		return "", fmt.Errorf("spool %s: %w", name, err)
	}
	return path, nil
}

// writeAtomic writes through a temp file in the same directory and renames it
// into place, so readers never see a partial artifact.
func writeAtomic(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func ReadSpoolArtifact(path string) (*SpoolArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("spool %s: %w", path, err)
	}
	defer gz.Close()

	var artifact SpoolArtifact
	if err := json.NewDecoder(gz).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("spool %s: %w", path, err)
	}
	return &artifact, nil
}

// BuildSpoolArtifact constructs a spool artifact from the end state of a run.
func BuildSpoolArtifact(meta *RunMetadata, series *Series, sys *smp.System) *SpoolArtifact {
	a := &SpoolArtifact{
		Version:   1,
		CreatedAt: time.Now(),
		Metadata:  meta,
	}
	if meta != nil {
		a.RunID = meta.RunID
		a.MachineName = meta.MachineName
		a.WorkloadChecksum = meta.WorkloadChecksum
	}
	if series != nil {
		a.Samples = series.Samples()
	}
	if sys != nil {
		id := policy.RoundRobin
		if meta != nil {
			if parsed, err := policy.ParseID(meta.Policy); err == nil {
				id = parsed
			}
		}
		a.Cores = sys.Stats()
		a.Domains = sys.Tree().Snapshot(id)
	}
	return a
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "noid"
	}
	return id
}
