// Package plot renders recorded runs as pgfplots figures.
package plot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"smp-sched/internal/logging"
	"smp-sched/internal/plot/database"
	"smp-sched/internal/plot/timeseries"

	"github.com/sirupsen/logrus"
)

type PlotManager struct {
	source              database.Source
	timeseriesGenerator *timeseries.TimeseriesPlotGenerator
	logger              *logrus.Logger
}

// NewPlotManager reads runs from the InfluxDB named by the INFLUXDB_*
// environment variables.
func NewPlotManager() (*PlotManager, error) {
	logger := logging.GetLogger()

	dbClient, err := database.NewPlotDBClient(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create database client: %w", err)
	}
	return newManager(dbClient, logger), nil
}

// NewSpoolPlotManager reads the single run stored in a spool artifact.
func NewSpoolPlotManager(path string) (*PlotManager, string, error) {
	src, err := database.OpenSpool(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open spool artifact: %w", err)
	}
	return newManager(src, logging.GetLogger()), src.RunID(), nil
}

func newManager(src database.Source, logger *logrus.Logger) *PlotManager {
	return &PlotManager{
		source:              src,
		timeseriesGenerator: timeseries.NewTimeseriesPlotGenerator(src, logger),
		logger:              logger,
	}
}

func (pm *PlotManager) Close() {
	if pm.source != nil {
		pm.source.Close()
	}
}

func (pm *PlotManager) GenerateTimeseriesPlot(
	runID, field string,
	interval int64,
	minOverride, maxOverride *float64,
) (plotTikz, wrapperTex string, err error) {
	ctx := context.Background()

	opts := timeseries.PlotOptions{
		RunID:       runID,
		Field:       field,
		Interval:    interval,
		MinOverride: minOverride,
		MaxOverride: maxOverride,
	}
	return pm.timeseriesGenerator.Generate(ctx, opts)
}

// WriteFiles stores a generated plot under dir and returns the tikz path.
// The wrapper goes next to it with a .tex extension.
func WriteFiles(dir, runID, field, plotTikz, wrapperTex string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	tikzPath := filepath.Join(dir, timeseries.PlotFileName(runID, field))
	if err := os.WriteFile(tikzPath, []byte(plotTikz), 0644); err != nil {
		return "", err
	}
	wrapperPath := strings.TrimSuffix(tikzPath, ".tikz") + ".tex"
	if err := os.WriteFile(wrapperPath, []byte(wrapperTex), 0644); err != nil {
		return "", err
	}
	return tikzPath, nil
}
