package timeseries

import (
	"context"
	"errors"
	"strings"
	"testing"

	"smp-sched/internal/logging"
	"smp-sched/internal/plot/database"
)

type fakeSource struct {
	meta   *database.MetaData
	points []database.CorePoint
	err    error
}

func (f *fakeSource) QueryMetaData(context.Context, string) (*database.MetaData, error) {
	return f.meta, f.err
}

func (f *fakeSource) QueryCoreSeries(context.Context, string, string) ([]database.CorePoint, error) {
	return f.points, f.err
}

func (f *fakeSource) Close() {}

func points() []database.CorePoint {
	return []database.CorePoint{
		{Tick: 1, Core: 0, Domain: "system/numa0/chip0/core0/lp0", Value: 4},
		{Tick: 2, Core: 0, Domain: "system/numa0/chip0/core0/lp0", Value: 2},
		{Tick: 3, Core: 0, Domain: "system/numa0/chip0/core0/lp0", Value: 2},
		{Tick: 1, Core: 1, Domain: "system/numa0/chip1/core0/lp0", Value: 0},
		{Tick: 2, Core: 1, Domain: "system/numa0/chip1/core0/lp0", Value: 2},
	}
}

func TestGenerate(t *testing.T) {
	src := &fakeSource{
		meta:   &database.MetaData{RunID: "0b9c7a3e-aaaa", MachineName: "box", Ticks: 3, Cores: 2},
		points: points(),
	}
	g := NewTimeseriesPlotGenerator(src, logging.Discard())

	tikz, wrapper, err := g.Generate(context.Background(), PlotOptions{RunID: "0b9c7a3e-aaaa", Field: "load"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, want := range []string{
		"% Run ID: 0b9c7a3e-aaaa",
		"% Core: 1 (system/numa0/chip1/core0/lp0)",
		"(3,2.000000)",
		`\addlegendentry{ core 0 }`,
		"ymax=4.20",
	} {
		if !strings.Contains(tikz, want) {
			t.Fatalf("plot output missing %q:\n%s", want, tikz)
		}
	}
	if !strings.Contains(wrapper, "run-0b9c7a3e-load.tikz") || !strings.Contains(wrapper, "fig:run-0b9c7a3e-load") {
		t.Fatalf("unexpected wrapper:\n%s", wrapper)
	}
}

func TestGenerateRejectsUnknownField(t *testing.T) {
	g := NewTimeseriesPlotGenerator(&fakeSource{}, logging.Discard())
	if _, _, err := g.Generate(context.Background(), PlotOptions{Field: "ipc"}); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestGenerateWithoutData(t *testing.T) {
	src := &fakeSource{meta: &database.MetaData{RunID: "r"}}
	g := NewTimeseriesPlotGenerator(src, logging.Discard())
	if _, _, err := g.Generate(context.Background(), PlotOptions{RunID: "r", Field: "load"}); err == nil {
		t.Fatalf("expected error for an empty series")
	}

	src.err = database.ErrRunNotFound
	_, _, err := g.Generate(context.Background(), PlotOptions{RunID: "r", Field: "load"})
	if !errors.Is(err, database.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	core0 := points()[:3]
	got := aggregate(core0, 2)
	// ticks 1 | 2,3
	if len(got) != 2 {
		t.Fatalf("expected 2 buckets, got %+v", got)
	}
	if got[0].Tick != 0 || got[0].Value != 4 {
		t.Fatalf("unexpected first bucket %+v", got[0])
	}
	if got[1].Tick != 2 || got[1].Value != 2 {
		t.Fatalf("unexpected second bucket %+v", got[1])
	}
	if n := len(aggregate(core0, 0)); n != 3 {
		t.Fatalf("interval 0 should keep every point, got %d", n)
	}
}
