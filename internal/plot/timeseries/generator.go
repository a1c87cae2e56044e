package timeseries

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"text/template"
	"time"

	"smp-sched/internal/plot/database"
	"smp-sched/internal/plot/timeseries/mappings"
	plotTemplate "smp-sched/internal/plot/timeseries/templates/plot"
	wrapperTemplate "smp-sched/internal/plot/timeseries/templates/wrapper"

	"github.com/sirupsen/logrus"
)

type TimeseriesPlotGenerator struct {
	source database.Source
	logger logrus.FieldLogger
}

func NewTimeseriesPlotGenerator(source database.Source, logger logrus.FieldLogger) *TimeseriesPlotGenerator {
	return &TimeseriesPlotGenerator{
		source: source,
		logger: logger,
	}
}

type PlotOptions struct {
	RunID string
	Field string
	// Interval averages the field over buckets of this many ticks; 0 plots
	// every sample.
	Interval    int64
	MinOverride *float64
	MaxOverride *float64
}

// Generate renders the per-core series of opts.Field as a tikz picture plus
// the LaTeX figure wrapping it.
func (g *TimeseriesPlotGenerator) Generate(ctx context.Context, opts PlotOptions) (string, string, error) {
	g.logger.WithFields(logrus.Fields{
		"run_id":   opts.RunID,
		"field":    opts.Field,
		"interval": opts.Interval,
	}).Info("Generating timeseries plot")

	yMapping, ok := mappings.GetFieldMapping(opts.Field)
	if !ok {
		return "", "", fmt.Errorf("unknown field: %s", opts.Field)
	}
	xMapping, _ := mappings.GetFieldMapping("tick")

	meta, err := g.source.QueryMetaData(ctx, opts.RunID)
	if err != nil {
		return "", "", fmt.Errorf("failed to query metadata: %w", err)
	}
	points, err := g.source.QueryCoreSeries(ctx, opts.RunID, opts.Field)
	if err != nil {
		return "", "", fmt.Errorf("failed to query core series: %w", err)
	}
	if len(points) == 0 {
		return "", "", fmt.Errorf("no data found for run %s and field %s", opts.RunID, opts.Field)
	}

	plotData := g.preparePlotData(meta, points, opts, xMapping, yMapping)
	wrapperData := g.prepareWrapperData(meta, opts, yMapping)

	plotOutput, err := render("plot", plotTemplate.PlotTemplate, plotData)
	if err != nil {
		return "", "", fmt.Errorf("failed to render plot: %w", err)
	}
	wrapperOutput, err := render("wrapper", wrapperTemplate.WrapperTemplate, wrapperData)
	if err != nil {
		return "", "", fmt.Errorf("failed to render wrapper: %w", err)
	}

	g.logger.WithField("series", len(plotData.Plots)).Info("Timeseries plot generated successfully")
	return plotOutput, wrapperOutput, nil
}

func (g *TimeseriesPlotGenerator) preparePlotData(
	meta *database.MetaData,
	points []database.CorePoint,
	opts PlotOptions,
	xMapping, yMapping mappings.FieldMapping,
) *plotTemplate.PlotData {
	byCore := make(map[int][]database.CorePoint)
	for _, p := range points {
		byCore[p.Core] = append(byCore[p.Core], p)
	}
	cores := make([]int, 0, len(byCore))
	for c := range byCore {
		cores = append(cores, c)
	}
	sort.Ints(cores)

	xMin, xMax := math.Inf(1), math.Inf(-1)
	yMin, yMax := math.Inf(1), math.Inf(-1)

	var series []plotTemplate.PlotSeries
	for _, core := range cores {
		corePoints := byCore[core]
		s := plotTemplate.PlotSeries{
			Core:        core,
			Domain:      corePoints[0].Domain,
			Style:       mappings.GetCoreStyle(core).ToTikzOptions(),
			LegendEntry: fmt.Sprintf("core %d", core),
		}
		for _, p := range aggregate(corePoints, opts.Interval) {
			x, y := float64(p.Tick), p.Value
			s.Coordinates = append(s.Coordinates, fmt.Sprintf("(%d,%.6f)", p.Tick, y))
			xMin, xMax = math.Min(xMin, x), math.Max(xMax, x)
			yMin, yMax = math.Min(yMin, y), math.Max(yMax, y)
		}
		series = append(series, s)
	}

	xMinStr, xMaxStr := axisLimits(xMapping, nil, nil, xMin, xMax)
	yMinStr, yMaxStr := axisLimits(yMapping, opts.MinOverride, opts.MaxOverride, yMin, yMax)

	return &plotTemplate.PlotData{
		GeneratedDate:    time.Now().Format("2006-01-02 15:04:05"),
		RunID:            meta.RunID,
		MachineName:      meta.MachineName,
		Description:      meta.Description,
		WorkloadChecksum: meta.WorkloadChecksum,
		RunStarted:       meta.RunStarted,
		RunFinished:      meta.RunFinished,
		DurationMS:       meta.DurationMS,
		Ticks:            meta.Ticks,
		TickIntervalMS:   meta.TickIntervalMS,
		Cores:            meta.Cores,
		Tasks:            meta.Tasks,
		Policy:           meta.Policy,
		BalanceInterval:  meta.BalanceInterval,
		MaxHops:          meta.MaxHops,
		TopologySource:   meta.TopologySource,
		Hostname:         meta.Hostname,
		CPUVendor:        meta.CPUVendor,
		CPUModel:         meta.CPUModel,
		KernelVersion:    meta.KernelVersion,
		OSInfo:           meta.OSInfo,
		DriverVersion:    meta.DriverVersion,
		XLabel:           xMapping.Label,
		YLabel:           yMapping.Label,
		Fieldname:        opts.Field,
		XMin:             xMinStr,
		XMax:             xMaxStr,
		YMin:             yMinStr,
		YMax:             yMaxStr,
		Plots:            series,
	}
}

// aggregate averages points into buckets of interval ticks, each placed at
// the bucket's first tick. Points must be sorted by tick.
func aggregate(points []database.CorePoint, interval int64) []database.CorePoint {
	if interval <= 1 {
		return points
	}
	var out []database.CorePoint
	var sum float64
	var n int
	flush := func(bucket int64) {
		if n == 0 {
			return
		}
		p := points[0]
		p.Tick = bucket * interval
		p.Value = sum / float64(n)
		out = append(out, p)
		sum, n = 0, 0
	}

	current := points[0].Tick / interval
	for _, p := range points {
		if b := p.Tick / interval; b != current {
			flush(current)
			current = b
		}
		sum += p.Value
		n++
	}
	flush(current)
	return out
}

func axisLimits(mapping mappings.FieldMapping, minOverride, maxOverride *float64, dataMin, dataMax float64) (string, string) {
	var minStr, maxStr string

	switch {
	case minOverride != nil:
		minStr = fmt.Sprintf("%.2f", *minOverride)
	case mapping.Min == "auto":
		minStr = fmt.Sprintf("%.2f", dataMin*0.95)
	default:
		if v, ok := mapping.Min.(float64); ok {
			minStr = fmt.Sprintf("%.2f", v)
		} else {
			minStr = "0"
		}
	}

	switch {
	case maxOverride != nil:
		maxStr = fmt.Sprintf("%.2f", *maxOverride)
	case mapping.Max == "auto":
		top := dataMax * 1.05
		if top <= 0 {
			top = 1
		}
		maxStr = fmt.Sprintf("%.2f", top)
	default:
		if v, ok := mapping.Max.(float64); ok {
			maxStr = fmt.Sprintf("%.2f", v)
		} else {
			maxStr = "100"
		}
	}

	return minStr, maxStr
}

func (g *TimeseriesPlotGenerator) prepareWrapperData(meta *database.MetaData, opts PlotOptions, yMapping mappings.FieldMapping) *wrapperTemplate.WrapperData {
	short := ShortID(meta.RunID)
	return &wrapperTemplate.WrapperData{
		GeneratedDate: time.Now().Format("2006-01-02 15:04:05"),
		RunID:         meta.RunID,
		ShortID:       short,
		YField:        opts.Field,
		PlotFileName:  PlotFileName(meta.RunID, opts.Field),
		ShortCaption:  yMapping.ShortLabel,
		Caption:       fmt.Sprintf("The %s per core on %s", yMapping.Label, meta.MachineName),
	}
}

// PlotFileName is the file the tikz output is expected under.
func PlotFileName(runID, field string) string {
	return fmt.Sprintf("run-%s-%s.tikz", ShortID(runID), field)
}

func ShortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

func render(name, text string, data interface{}) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return buf.String(), nil
}
