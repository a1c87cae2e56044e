package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"smp-sched/internal/config"
	"smp-sched/internal/database"
	"smp-sched/internal/host"
	"smp-sched/internal/ipi"
	"smp-sched/internal/logging"
	"smp-sched/internal/plot"
	"smp-sched/internal/smp"
	"smp-sched/internal/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const Version = "1.0.0"

// influx points per blocking write
const writeBatch = 5000

type Simulation struct {
	config        *config.MachineConfig
	configContent string
	hostConfig    *host.HostConfig
	system        *smp.System
	machine       *smp.Machine
	counter       *smp.DispatchCounter
	dbClient      *database.InfluxDBClient
	series        *database.Series
	metadata      *database.RunMetadata
	runID         string
}

func loadEnvironment() {
	logger := logging.GetLogger()

	// Try to load .env file from current directory
	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
		return
	}

	// Try to load from the application directory
	if execPath, err := os.Executable(); err == nil {
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
			} else {
				logger.WithField("file", envFile).Debug("Loaded environment variables")
			}
		}
	}
}

func validateEnvironment() error {
	logger := logging.GetLogger()

	requiredVars := []string{
		"INFLUXDB_HOST",
		"INFLUXDB_TOKEN",
		"INFLUXDB_ORG",
		"INFLUXDB_BUCKET",
	}

	var missing []string
	for _, varName := range requiredVars {
		if os.Getenv(varName) == "" {
			missing = append(missing, varName)
		}
	}

	if len(missing) > 0 {
		logger.WithField("missing_vars", missing).Error("Missing required environment variables")
		return fmt.Errorf("missing required environment variables: %v. Please ensure your .env file contains these variables", missing)
	}

	logger.Debug("All required environment variables are present")
	return nil
}

func main() {
	logger := logging.GetLogger()

	loadEnvironment()

	var configFile string
	var logLevel string
	var logFormat string
	var fromHost bool
	var packagesPerNode int

	rootCmd := &cobra.Command{
		Use:     "smp-sched",
		Short:   "SMP scheduling core simulator",
		Long:    "Drives a topology-aware round-robin scheduler and its inter-processor balancer over a simulated or discovered multiprocessor",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logLevel != "" {
				if err := logging.SetLogLevel(logLevel); err != nil {
					return fmt.Errorf("invalid log level: %w", err)
				}
			}
			return logging.SetFormat(logFormat)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text, json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(configFile)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a machine configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(configFile)
		},
	}

	topologyCmd := &cobra.Command{
		Use:   "topology",
		Short: "Print the domain tree of a machine",
		Long:  "Print the domain tree built from the host's processors (--host) or from a configuration file (-c)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTopology(cmd, configFile, fromHost, packagesPerNode)
		},
	}

	runCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to machine configuration file")
	runCmd.MarkFlagRequired("config")

	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to machine configuration file")
	validateCmd.MarkFlagRequired("config")

	topologyCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to machine configuration file")
	topologyCmd.Flags().BoolVar(&fromHost, "host", false, "Discover the topology of this host")
	topologyCmd.Flags().IntVar(&packagesPerNode, "packages-per-node", 1, "Packages grouped into one NUMA node when discovering")
	topologyCmd.MarkFlagsMutuallyExclusive("config", "host")
	topologyCmd.MarkFlagsOneRequired("config", "host")

	var runID, spoolFile, field, outDir string
	var interval int64
	var yMin, yMax float64

	plotCmd := &cobra.Command{
		Use:   "plot",
		Short: "Render a recorded run as a pgfplots figure",
		Long:  "Render one sampled field per core of a run stored in InfluxDB (--run-id) or in a spool artifact (--spool)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var minOverride, maxOverride *float64
			if cmd.Flags().Changed("ymin") {
				minOverride = &yMin
			}
			if cmd.Flags().Changed("ymax") {
				maxOverride = &yMax
			}
			return plotRun(runID, spoolFile, field, interval, minOverride, maxOverride, outDir)
		},
	}

	plotCmd.Flags().StringVar(&runID, "run-id", "", "Run ID to query from InfluxDB")
	plotCmd.Flags().StringVar(&spoolFile, "spool", "", "Spool artifact to read instead of InfluxDB")
	plotCmd.Flags().StringVarP(&field, "field", "f", "load", "Sampled field (load, queued, pending, busy)")
	plotCmd.Flags().Int64Var(&interval, "interval", 0, "Average over buckets of this many ticks")
	plotCmd.Flags().Float64Var(&yMin, "ymin", 0, "Override the y axis minimum")
	plotCmd.Flags().Float64Var(&yMax, "ymax", 0, "Override the y axis maximum")
	plotCmd.Flags().StringVarP(&outDir, "output", "o", "plots", "Directory the .tikz and .tex files are written to")
	plotCmd.MarkFlagsOneRequired("run-id", "spool")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(plotCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("Command execution failed")
	}
}

func validateConfig(configFile string) error {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return err
	}
	logger.WithFields(logrus.Fields{
		"config_file": configFile,
		"machine":     cfg.Machine.Name,
		"workloads":   len(cfg.Workloads),
		"tasks":       cfg.TotalTasks(),
	}).Info("Configuration is valid")
	return nil
}

func printTopology(cmd *cobra.Command, configFile string, fromHost bool, packagesPerNode int) error {
	var hc *host.HostConfig
	var err error
	cfg := &config.MachineConfig{}
	if fromHost {
		hc, err = host.Discover(packagesPerNode)
	} else {
		cfg, err = config.LoadConfig(configFile)
		if err == nil {
			hc, err = buildHost(cfg)
		}
	}
	if err != nil {
		return err
	}

	sys, err := newSystem(cfg, hc, ipi.NewController(), nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), %d logical cores, apic fields smt=%d core=%d\n",
		hc.CPUModel, hc.CPUVendor, hc.Topology.LogicalCores, hc.Decoder.SMTBits, hc.Decoder.CoreBits)
	renderTopology(cmd.OutOrStdout(), sys)
	return nil
}

func plotRun(runID, spoolFile, field string, interval int64, minOverride, maxOverride *float64, outDir string) error {
	logger := logging.GetLogger()

	var pm *plot.PlotManager
	var err error
	if spoolFile != "" {
		var spooled string
		pm, spooled, err = plot.NewSpoolPlotManager(spoolFile)
		if runID == "" {
			runID = spooled
		}
	} else {
		if err := validateEnvironment(); err != nil {
			return err
		}
		pm, err = plot.NewPlotManager()
	}
	if err != nil {
		return err
	}
	defer pm.Close()

	tikz, wrapper, err := pm.GenerateTimeseriesPlot(runID, field, interval, minOverride, maxOverride)
	if err != nil {
		logger.WithError(err).Error("Failed to generate plot")
		return err
	}
	path, err := plot.WriteFiles(outDir, runID, field, tikz, wrapper)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"run_id": runID,
		"field":  field,
		"path":   path,
	}).Info("Plot written")
	return nil
}

func runSimulation(configFile string) error {
	logger := logging.GetLogger()

	sim := &Simulation{
		series:  &database.Series{},
		counter: smp.NewDispatchCounter(),
		runID:   uuid.NewString(),
	}

	var err error
	sim.config, sim.configContent, err = config.LoadConfigWithContent(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Failed to load configuration")
		return fmt.Errorf("failed to load config: %w", err)
	}
	m := sim.config.Machine

	// Set log levels from configuration
	if m.LogLevel != "" {
		if err := logging.SetLogLevel(m.LogLevel); err != nil {
			logger.WithField("log_level", m.LogLevel).WithError(err).Warn("Invalid log level in config, using INFO")
			logging.SetLogLevel("info")
		} else {
			logger.WithField("log_level", m.LogLevel).Debug("Log level set from configuration")
		}
	}
	if m.BalancerLogLevel != "" {
		if err := logging.SetBalancerLogLevel(m.BalancerLogLevel); err != nil {
			logger.WithField("balancer_log_level", m.BalancerLogLevel).WithError(err).Warn("Invalid balancer log level, using default")
		}
	}

	if m.Data.DB.Enabled {
		if err := validateEnvironment(); err != nil {
			return err
		}
		sim.dbClient, err = database.NewInfluxDBClient(m.Data.DB)
		if err != nil {
			logger.WithError(err).Error("Failed to create database client")
			return fmt.Errorf("failed to create database client: %w", err)
		}
		defer sim.dbClient.Close()
	}

	sim.hostConfig, err = buildHost(sim.config)
	if err != nil {
		logger.WithError(err).Error("Failed to build machine topology")
		return err
	}

	ctrl := ipi.NewController()
	sim.system, err = newSystem(sim.config, sim.hostConfig, ctrl, sim.counter)
	if err != nil {
		logger.WithError(err).Error("Failed to plug cores")
		return err
	}
	cores := len(sim.system.Processors())

	logger.WithFields(logrus.Fields{
		"machine":          m.Name,
		"cpu_model":        sim.hostConfig.CPUModel,
		"logical_cores":    cores,
		"packages":         sim.hostConfig.Topology.Sockets,
		"threads_per_core": sim.hostConfig.Topology.ThreadsPerCore,
	}).Info("Machine initialized")

	arrivals := arrivalsByTick(sim.config)
	for _, w := range arrivals[0] {
		if w.Core >= cores {
			return fmt.Errorf("workload %s: core %d not on this machine (%d cores)", w.KeyName, w.Core, cores)
		}
		if err := addWorkload(sim.system, w); err != nil {
			return err
		}
	}

	opts := smp.MachineOptions{
		TickEvery: sim.config.GetTickInterval(),
		OnTick: func(now int64) {
			if now%m.Data.SampleEvery == 0 {
				sim.series.Append(database.SamplesFromStats(now, sim.system.Stats())...)
			}
			for _, w := range arrivals[now] {
				if err := addWorkload(sim.system, w); err != nil {
					logger.WithError(err).Warn("Failed to add workload")
				}
			}
		},
	}
	if m.Pin {
		if cpus, err := pinTargets(cores); err != nil {
			logger.WithError(err).Warn("Cannot read host CPUs, core loops stay unpinned")
		} else {
			opts.PinCPUs = cpus
		}
	}
	sim.machine = smp.NewMachine(sim.system, ctrl, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.WithField("signal", sig.String()).Warn("Interrupted, stopping simulation")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.WithFields(logrus.Fields{
		"run_id": sim.runID,
		"ticks":  m.Ticks,
		"tasks":  sim.config.TotalTasks(),
	}).Info("Starting simulation")

	start := time.Now()
	sim.metadata = database.CollectRunMetadata(sim.runID, sim.config, sim.configContent, sim.hostConfig, cores, start, Version)
	runErr := sim.machine.Run(ctx, m.Ticks)
	sim.metadata.Finish(time.Now())
	if runErr != nil {
		logger.WithError(runErr).Error("Simulation stopped early")
	}

	if err := sim.system.Verify(); err != nil {
		logger.WithError(err).Error("Scheduler invariants violated")
	}
	sim.logSummary()

	if err := sim.persist(); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("simulation failed: %w", runErr)
	}
	logger.Info("Simulation completed successfully")
	return nil
}

func (sim *Simulation) logSummary() {
	logger := logging.GetLogger()
	for _, s := range sim.system.Stats() {
		logger.WithFields(logrus.Fields{
			"core":   s.Core,
			"domain": s.Domain,
			"load":   s.Load,
			"busy":   sim.counter.Busy(s.Core),
			"idle":   sim.counter.Idle(s.Core),
		}).Info("Core summary")
	}
}

// persist writes the run to InfluxDB when enabled, always to the spool, and
// to CSV when an export directory is set.
func (sim *Simulation) persist() error {
	logger := logging.GetLogger()
	ctx := context.Background()

	if sim.dbClient != nil {
		samples := sim.series.Samples()
		for i := 0; i < len(samples); i += writeBatch {
			end := min(i+writeBatch, len(samples))
			if err := sim.dbClient.WriteSamples(ctx, sim.metadata, samples[i:end]); err != nil {
				logger.WithError(err).Error("Failed to write samples")
				return err
			}
		}
		if err := sim.dbClient.WriteMetadata(ctx, sim.metadata); err != nil {
			logger.WithError(err).Error("Failed to write metadata")
			return err
		}
		logger.WithField("samples", len(samples)).Info("Run written to InfluxDB")
	}

	path, err := database.WriteSpoolArtifact(sim.config.Machine.Data.SpoolDir, database.BuildSpoolArtifact(sim.metadata, sim.series, sim.system))
	if err != nil {
		logger.WithError(err).Error("Failed to write spool artifact")
		return err
	}
	logger.WithField("path", path).Info("Run spooled")

	if dir := sim.config.Machine.Data.ExportDir; dir != "" {
		if _, err := storage.ExportToCSV(dir, sim.metadata, sim.series.Samples()); err != nil {
			logger.WithError(err).Error("Failed to export CSV")
			return err
		}
	}
	return nil
}
