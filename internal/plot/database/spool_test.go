package database

import (
	"context"
	"errors"
	"testing"
	"time"

	rundb "smp-sched/internal/database"
)

func artifact() *rundb.SpoolArtifact {
	return &rundb.SpoolArtifact{
		RunID: "run-1",
		Metadata: &rundb.RunMetadata{
			RunID:       "run-1",
			MachineName: "box",
			Started:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			Ticks:       2,
			Cores:       2,
		},
		Samples: []rundb.Sample{
			{Tick: 2, Core: 1, Load: 1, Busy: true},
			{Tick: 1, Core: 1, Load: 3, Busy: true},
			{Tick: 1, Core: 0, Load: 0, Pending: 2},
		},
	}
}

func TestSpoolSourceSeries(t *testing.T) {
	src, err := NewSpoolSource(artifact())
	if err != nil {
		t.Fatalf("new spool source: %v", err)
	}

	load, err := src.QueryCoreSeries(context.Background(), "", "load")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(load) != 3 || load[0].Core != 0 || load[1].Tick != 1 || load[1].Value != 3 || load[2].Tick != 2 {
		t.Fatalf("points not ordered by core then tick: %+v", load)
	}

	busy, _ := src.QueryCoreSeries(context.Background(), "run-1", "busy")
	if busy[0].Value != 0 || busy[1].Value != 1 {
		t.Fatalf("unexpected busy values %+v", busy)
	}

	if _, err := src.QueryCoreSeries(context.Background(), "", "ipc"); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestSpoolSourceMetaData(t *testing.T) {
	src, _ := NewSpoolSource(artifact())

	meta, err := src.QueryMetaData(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if meta.MachineName != "box" || meta.Cores != 2 || meta.RunStarted != "2025-03-01T12:00:00Z" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if _, err := src.QueryMetaData(context.Background(), "other"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestNewSpoolSourceRequiresMetadata(t *testing.T) {
	if _, err := NewSpoolSource(&rundb.SpoolArtifact{}); err == nil {
		t.Fatalf("expected error without metadata")
	}
}
