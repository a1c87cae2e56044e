package database

import (
	"context"
	"fmt"
	"time"

	rundb "smp-sched/internal/database"
)

// SpoolSource serves a single run from a spool artifact.
type SpoolSource struct {
	artifact *rundb.SpoolArtifact
}

var _ Source = (*SpoolSource)(nil)

func OpenSpool(path string) (*SpoolSource, error) {
	a, err := rundb.ReadSpoolArtifact(path)
	if err != nil {
		return nil, err
	}
	return NewSpoolSource(a)
}

func NewSpoolSource(a *rundb.SpoolArtifact) (*SpoolSource, error) {
	if a == nil || a.Metadata == nil {
		return nil, fmt.Errorf("spool artifact has no metadata")
	}
	return &SpoolSource{artifact: a}, nil
}

// RunID is the id of the spooled run.
func (s *SpoolSource) RunID() string { return s.artifact.RunID }

func (s *SpoolSource) Close() {}

func (s *SpoolSource) QueryMetaData(_ context.Context, runID string) (*MetaData, error) {
	if err := s.check(runID); err != nil {
		return nil, err
	}
	m := s.artifact.Metadata
	return &MetaData{
		RunID:            m.RunID,
		MachineName:      m.MachineName,
		Description:      m.Description,
		WorkloadChecksum: m.WorkloadChecksum,
		RunStarted:       m.Started.Format(time.RFC3339),
		RunFinished:      m.Finished.Format(time.RFC3339),
		DurationMS:       m.DurationMS,
		Ticks:            m.Ticks,
		TickIntervalMS:   int64(m.TickIntervalMS),
		Cores:            int64(m.Cores),
		Tasks:            int64(m.Tasks),
		Policy:           m.Policy,
		BalanceInterval:  m.BalanceInterval,
		MaxHops:          int64(m.MaxHops),
		TopologySource:   m.TopologySource,
		Hostname:         m.Hostname,
		CPUVendor:        m.CPUVendor,
		CPUModel:         m.CPUModel,
		KernelVersion:    m.KernelVersion,
		OSInfo:           m.OSInfo,
		DriverVersion:    m.DriverVersion,
	}, nil
}

func (s *SpoolSource) QueryCoreSeries(_ context.Context, runID string, field string) ([]CorePoint, error) {
	if err := s.check(runID); err != nil {
		return nil, err
	}
	points := make([]CorePoint, 0, len(s.artifact.Samples))
	for _, sample := range s.artifact.Samples {
		var v float64
		switch field {
		case "load":
			v = float64(sample.Load)
		case "queued":
			v = float64(sample.Queued)
		case "pending":
			v = float64(sample.Pending)
		case "busy":
			if sample.Busy {
				v = 1
			}
		default:
			return nil, fmt.Errorf("unknown sample field %q", field)
		}
		points = append(points, CorePoint{Tick: sample.Tick, Core: sample.Core, Domain: sample.Domain, Value: v})
	}
	sortPoints(points)
	return points, nil
}

func (s *SpoolSource) check(runID string) error {
	if runID != "" && runID != s.artifact.RunID {
		return fmt.Errorf("%w: %s (spool holds %s)", ErrRunNotFound, runID, s.artifact.RunID)
	}
	return nil
}
