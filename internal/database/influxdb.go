package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"smp-sched/internal/config"
	"smp-sched/internal/logging"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

const (
	loadMeasurement = "core_load"
	metaMeasurement = "run_meta"
)

type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	org      string
}

func NewInfluxDBClient(config config.DatabaseConfig) (*InfluxDBClient, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(config.Host, config.Password)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", config.Host).WithError(err).Error("Failed to connect to InfluxDB")
		client.Close()
		return nil, err
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		logger.WithFields(logrus.Fields{
			"host":    config.Host,
			"status":  health.Status,
			"message": msg,
		}).Error("InfluxDB health check failed")
		client.Close()
		return nil, fmt.Errorf("influxdb at %s is unhealthy: %s", config.Host, health.Status)
	}

	logger.WithFields(logrus.Fields{
		"host":   config.Host,
		"bucket": config.Name,
		"org":    config.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxDBClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(config.Org, config.Name),
		bucket:   config.Name,
		org:      config.Org,
	}, nil
}

// WriteSamples writes one point per sample, timestamped start + tick*tickEvery
// so ticks stay ordered even for unpaced runs.
func (idb *InfluxDBClient) WriteSamples(ctx context.Context, meta *RunMetadata, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(samples))
	for _, s := range samples {
		points = append(points, samplePoint(meta, s))
	}
	if err := idb.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write load samples: %w", err)
	}
	return nil
}

func (idb *InfluxDBClient) WriteMetadata(ctx context.Context, meta *RunMetadata) error {
	if err := idb.writeAPI.WritePoint(ctx, metadataPoint(meta)); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (idb *InfluxDBClient) Close() {
	if idb.client != nil {
		idb.client.Close()
	}
}

func sampleTime(meta *RunMetadata, tick int64) time.Time {
	step := time.Duration(meta.TickIntervalMS) * time.Millisecond
	if step <= 0 {
		step = time.Millisecond
	}
	return meta.Started.Add(time.Duration(tick) * step)
}

func samplePoint(meta *RunMetadata, s Sample) *write.Point {
	return influxdb2.NewPoint(loadMeasurement,
		map[string]string{
			"run_id":  meta.RunID,
			"machine": meta.MachineName,
			"core":    strconv.Itoa(s.Core),
			"domain":  s.Domain,
			"policy":  s.Policy,
		},
		map[string]interface{}{
			"tick":    s.Tick,
			"load":    s.Load,
			"queued":  s.Queued,
			"pending": s.Pending,
			"busy":    s.Busy,
		},
		sampleTime(meta, s.Tick))
}

func metadataPoint(meta *RunMetadata) *write.Point {
	return influxdb2.NewPoint(metaMeasurement,
		map[string]string{
			"run_id": meta.RunID,
		},
		map[string]interface{}{
			"machine_name":      meta.MachineName,
			"description":       meta.Description,
			"workload_checksum": meta.WorkloadChecksum,
			"run_started":       meta.Started.Format(time.RFC3339),
			"run_finished":      meta.Finished.Format(time.RFC3339),
			"duration_ms":       meta.DurationMS,
			"ticks":             meta.Ticks,
			"tick_interval_ms":  meta.TickIntervalMS,
			"cores":             meta.Cores,
			"tasks":             meta.Tasks,
			"policy":            meta.Policy,
			"balance_interval":  meta.BalanceInterval,
			"max_hops":          meta.MaxHops,
			"topology_source":   meta.TopologySource,
			"hostname":          meta.Hostname,
			"os_info":           meta.OSInfo,
			"kernel_version":    meta.KernelVersion,
			"cpu_vendor":        meta.CPUVendor,
			"cpu_model":         meta.CPUModel,
			"driver_version":    meta.DriverVersion,
			"config_file":       meta.ConfigFile,
		},
		time.Now())
}
