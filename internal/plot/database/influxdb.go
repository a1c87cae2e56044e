package database

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"
)

// PlotDBClient queries runs the simulator wrote to InfluxDB.
type PlotDBClient struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	bucket   string
	org      string
	logger   *logrus.Logger
}

var _ Source = (*PlotDBClient)(nil)

func NewPlotDBClient(logger *logrus.Logger) (*PlotDBClient, error) {
	host := os.Getenv("INFLUXDB_HOST")
	token := os.Getenv("INFLUXDB_TOKEN")
	org := os.Getenv("INFLUXDB_ORG")
	bucket := os.Getenv("INFLUXDB_BUCKET")

	if host == "" || token == "" || org == "" || bucket == "" {
		return nil, fmt.Errorf("missing required environment variables for InfluxDB connection")
	}

	client := influxdb2.NewClient(host, token)
	return &PlotDBClient{
		client:   client,
		queryAPI: client.QueryAPI(org),
		bucket:   bucket,
		org:      org,
		logger:   logger,
	}, nil
}

func (c *PlotDBClient) Close() {
	c.client.Close()
}

func (c *PlotDBClient) QueryCoreSeries(ctx context.Context, runID string, field string) ([]CorePoint, error) {
	c.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"field":  field,
	}).Debug("Querying core series")

	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: 0)
		|> filter(fn: (r) => r["_measurement"] == "core_load")
		|> filter(fn: (r) => r["run_id"] == "%s")
		|> filter(fn: (r) => r["_field"] == "tick" or r["_field"] == "%s")
		|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		|> sort(columns: ["core", "_time"])
	`, c.bucket, runID, field)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var points []CorePoint
	for result.Next() {
		record := result.Record()

		p := CorePoint{Core: -1}
		// core is a tag, so it comes back as a string
		if s, ok := record.ValueByKey("core").(string); ok {
			if n, err := strconv.Atoi(s); err == nil {
				p.Core = n
			}
		}
		if d, ok := record.ValueByKey("domain").(string); ok {
			p.Domain = d
		}
		if t, ok := record.ValueByKey("tick").(int64); ok {
			p.Tick = t
		}
		v, ok := toFloat64(record.ValueByKey(field))
		if !ok {
			continue
		}
		p.Value = v
		points = append(points, p)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}

	sortPoints(points)
	c.logger.WithField("data_points", len(points)).Debug("Query completed")
	return points, nil
}

func (c *PlotDBClient) QueryMetaData(ctx context.Context, runID string) (*MetaData, error) {
	c.logger.WithField("run_id", runID).Debug("Querying run metadata")

	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: 0)
		|> filter(fn: (r) => r["_measurement"] == "run_meta")
		|> filter(fn: (r) => r["run_id"] == "%s")
		|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
	`, c.bucket, runID)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var meta *MetaData
	if result.Next() {
		values := result.Record().Values()
		meta = &MetaData{
			RunID:            runID,
			MachineName:      stringValue(values, "machine_name"),
			Description:      stringValue(values, "description"),
			WorkloadChecksum: stringValue(values, "workload_checksum"),
			RunStarted:       stringValue(values, "run_started"),
			RunFinished:      stringValue(values, "run_finished"),
			DurationMS:       intValue(values, "duration_ms"),
			Ticks:            intValue(values, "ticks"),
			TickIntervalMS:   intValue(values, "tick_interval_ms"),
			Cores:            intValue(values, "cores"),
			Tasks:            intValue(values, "tasks"),
			Policy:           stringValue(values, "policy"),
			BalanceInterval:  intValue(values, "balance_interval"),
			MaxHops:          intValue(values, "max_hops"),
			TopologySource:   stringValue(values, "topology_source"),
			Hostname:         stringValue(values, "hostname"),
			CPUVendor:        stringValue(values, "cpu_vendor"),
			CPUModel:         stringValue(values, "cpu_model"),
			KernelVersion:    stringValue(values, "kernel_version"),
			OSInfo:           stringValue(values, "os_info"),
			DriverVersion:    stringValue(values, "driver_version"),
		}
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return meta, nil
}

func stringValue(values map[string]interface{}, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}

func intValue(values map[string]interface{}, key string) int64 {
	switch v := values[key].(type) {
	case int64:
		return v
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func toFloat64(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case int:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func sortPoints(points []CorePoint) {
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Core != points[j].Core {
			return points[i].Core < points[j].Core
		}
		return points[i].Tick < points[j].Tick
	})
}
