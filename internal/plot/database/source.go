// Package database reads recorded runs back for plotting, from InfluxDB or
// from a spool artifact.
package database

import (
	"context"
	"errors"
)

var ErrRunNotFound = errors.New("run not found")

// MetaData is the part of a run's metadata the plots print.
type MetaData struct {
	RunID            string
	MachineName      string
	Description      string
	WorkloadChecksum string
	RunStarted       string
	RunFinished      string
	DurationMS       int64
	Ticks            int64
	TickIntervalMS   int64
	Cores            int64
	Tasks            int64
	Policy           string
	BalanceInterval  int64
	MaxHops          int64
	TopologySource   string
	Hostname         string
	CPUVendor        string
	CPUModel         string
	KernelVersion    string
	OSInfo           string
	DriverVersion    string
}

// CorePoint is one sampled field of one core at one tick.
type CorePoint struct {
	Tick   int64
	Core   int
	Domain string
	Value  float64
}

// Source is where recorded runs are read from.
type Source interface {
	QueryMetaData(ctx context.Context, runID string) (*MetaData, error)
	// QueryCoreSeries returns field for every sampled core, ordered by core
	// then tick.
	QueryCoreSeries(ctx context.Context, runID string, field string) ([]CorePoint, error)
	Close()
}
