package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/fieldlink/dscore/internal/engine"
	"github.com/fieldlink/dscore/internal/events"
	"github.com/fieldlink/dscore/internal/metrics"
	"github.com/fieldlink/dscore/internal/netconsole"
	"github.com/fieldlink/dscore/internal/refproto"
	"github.com/fieldlink/dscore/internal/store"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	FMSAddress    string
	FMSInputPort  int
	FMSOutputPort int

	RadioAddress    string
	RadioInputPort  int
	RadioOutputPort int

	RobotAddress    string
	RobotInputPort  int
	RobotOutputPort int

	NetConsoleAddress    string
	NetConsoleInputPort  int
	NetConsoleOutputPort int

	FMSIntervalMS   int64
	RadioIntervalMS int64
	RobotIntervalMS int64

	MetricsAddr  string
	TickInterval time.Duration
	ConfigFile   string
	Verbose      bool
	ShowVersion  bool
}

// fileConfig is the subset of config loadable from a --config YAML file:
// the endpoint topology and intervals an operator deploys per-venue, as
// opposed to per-process flags like --verbose or --tick-interval. A flag
// the user passed explicitly on the command line always wins over the
// file; the file only fills in flags left at their default value.
type fileConfig struct {
	FMSAddress    string `yaml:"fms_address"`
	FMSInputPort  int    `yaml:"fms_input_port"`
	FMSOutputPort int    `yaml:"fms_output_port"`

	RadioAddress    string `yaml:"radio_address"`
	RadioInputPort  int    `yaml:"radio_input_port"`
	RadioOutputPort int    `yaml:"radio_output_port"`

	RobotAddress    string `yaml:"robot_address"`
	RobotInputPort  int    `yaml:"robot_input_port"`
	RobotOutputPort int    `yaml:"robot_output_port"`

	NetConsoleAddress    string `yaml:"netconsole_address"`
	NetConsoleInputPort  int    `yaml:"netconsole_input_port"`
	NetConsoleOutputPort int    `yaml:"netconsole_output_port"`

	FMSIntervalMS   int64 `yaml:"fms_interval_ms"`
	RadioIntervalMS int64 `yaml:"radio_interval_ms"`
	RobotIntervalMS int64 `yaml:"robot_interval_ms"`

	MetricsAddr string `yaml:"metrics_addr"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := parseFlags()

	if cfg.ConfigFile != "" {
		if err := applyConfigFile(cfg, cfg.ConfigFile); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", cfg.ConfigFile, err)
		}
	}

	if cfg.ShowVersion {
		fmt.Printf("dsengine version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	queue := events.NewQueue(events.DefaultCapacity)
	st := store.New(queue)
	console := netconsole.New(netconsole.DefaultCapacity, netconsole.DefaultBatchSize, queue)

	m := metrics.New()
	reg := prometheus.NewRegistry()
	m.Register(reg)

	proto, err := refproto.New(refproto.Config{
		Logger:        log.With("component", "refproto"),
		FMS:           refproto.EndpointConfig{Address: cfg.FMSAddress, InputPort: cfg.FMSInputPort, OutputPort: cfg.FMSOutputPort},
		Radio:         refproto.EndpointConfig{Address: cfg.RadioAddress, InputPort: cfg.RadioInputPort, OutputPort: cfg.RadioOutputPort},
		Robot:         refproto.EndpointConfig{Address: cfg.RobotAddress, InputPort: cfg.RobotInputPort, OutputPort: cfg.RobotOutputPort},
		NetConsole:    refproto.EndpointConfig{Address: cfg.NetConsoleAddress, InputPort: cfg.NetConsoleInputPort, OutputPort: cfg.NetConsoleOutputPort},
		FMSInterval:   cfg.FMSIntervalMS,
		RadioInterval: cfg.RadioIntervalMS,
		RobotInterval: cfg.RobotIntervalMS,
	})
	if err != nil {
		return fmt.Errorf("failed to open reference protocol: %w", err)
	}
	defer proto.Close()

	eng := engine.New(engine.Config{
		Logger:     log.With("component", "engine"),
		Store:      st,
		Queue:      queue,
		NetConsole: console,
		Metrics:    m,
	})
	if err := eng.SetProtocol(proto); err != nil {
		return fmt.Errorf("failed to install reference protocol: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, st.StatusString())
	})

	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.MetricsAddr, err)
	}
	log.Info("metrics listener created", "address", metricsLis.Addr().String())

	httpSrv := &http.Server{Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(metricsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
			return
		}
		errCh <- nil
	}()

	eng.Start()
	log.Info("engine started", "tick_interval", cfg.TickInterval)

	clock := clockwork.NewRealClock()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runTickLoop(ctx, eng, clock, cfg.TickInterval)
	}()

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	stop()
	<-loopDone
	eng.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown error", "error", err)
	}

	log.Info("dsengine shutdown complete")
	return nil
}

// runTickLoop drives the engine on its own goroutine, converting
// clockwork's wall-clock ticks into the elapsed_ms each tick phase is
// specified in terms of. Using clockwork rather than a bare time.Ticker
// keeps the loop substitutable with a fake clock in integration tests.
func runTickLoop(ctx context.Context, eng *engine.Engine, clock clockwork.Clock, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	last := clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			elapsedMS := now.Sub(last).Milliseconds()
			last = now
			eng.Tick(elapsedMS)
		}
	}
}

func parseFlags() *config {
	cfg := &config{}

	flag.StringVar(&cfg.FMSAddress, "fms-address", "127.0.0.1", "FMS peer address")
	flag.IntVar(&cfg.FMSInputPort, "fms-input-port", 1160, "FMS receive port")
	flag.IntVar(&cfg.FMSOutputPort, "fms-output-port", 1120, "FMS send port")

	flag.StringVar(&cfg.RadioAddress, "radio-address", "127.0.0.1", "Radio peer address")
	flag.IntVar(&cfg.RadioInputPort, "radio-input-port", 1161, "Radio receive port")
	flag.IntVar(&cfg.RadioOutputPort, "radio-output-port", 1121, "Radio send port")

	flag.StringVar(&cfg.RobotAddress, "robot-address", "127.0.0.1", "Robot peer address")
	flag.IntVar(&cfg.RobotInputPort, "robot-input-port", 1165, "Robot receive port")
	flag.IntVar(&cfg.RobotOutputPort, "robot-output-port", 1110, "Robot send port")

	flag.StringVar(&cfg.NetConsoleAddress, "netconsole-address", "127.0.0.1", "NetConsole destination address")
	flag.IntVar(&cfg.NetConsoleInputPort, "netconsole-input-port", 1166, "NetConsole receive port")
	flag.IntVar(&cfg.NetConsoleOutputPort, "netconsole-output-port", 6666, "NetConsole send port")

	flag.Int64Var(&cfg.FMSIntervalMS, "fms-interval-ms", 500, "FMS send interval in milliseconds")
	flag.Int64Var(&cfg.RadioIntervalMS, "radio-interval-ms", 1000, "Radio send interval in milliseconds")
	flag.Int64Var(&cfg.RobotIntervalMS, "robot-interval-ms", 20, "Robot send interval in milliseconds")

	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", ":8080", "Address to serve /metrics and /status on")
	flag.DurationVar(&cfg.TickInterval, "tick-interval", 2*time.Millisecond, "Host-side engine tick cadence")
	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to a YAML file overriding the endpoint/interval flags above")
	flag.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose logging")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	flag.Parse()
	return cfg
}

// applyConfigFile loads path as YAML and overlays it onto cfg, field by
// field, but only where the matching flag was left at its default — an
// explicit command-line flag always takes precedence over the file.
func applyConfigFile(cfg *config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	// setStr/setInt only overlay a field when the flag was left at its
	// default (not explicitly passed) and the file actually set a
	// non-zero value, so an empty/absent YAML key never clobbers a flag's
	// built-in default.
	setStr := func(name string, dst *string, v string) {
		if v != "" {
			if f := flag.Lookup(name); f != nil && !f.Changed {
				*dst = v
			}
		}
	}
	setInt := func(name string, dst *int, v int) {
		if v != 0 {
			if f := flag.Lookup(name); f != nil && !f.Changed {
				*dst = v
			}
		}
	}
	setInt64 := func(name string, dst *int64, v int64) {
		if v != 0 {
			if f := flag.Lookup(name); f != nil && !f.Changed {
				*dst = v
			}
		}
	}

	setStr("fms-address", &cfg.FMSAddress, fc.FMSAddress)
	setInt("fms-input-port", &cfg.FMSInputPort, fc.FMSInputPort)
	setInt("fms-output-port", &cfg.FMSOutputPort, fc.FMSOutputPort)

	setStr("radio-address", &cfg.RadioAddress, fc.RadioAddress)
	setInt("radio-input-port", &cfg.RadioInputPort, fc.RadioInputPort)
	setInt("radio-output-port", &cfg.RadioOutputPort, fc.RadioOutputPort)

	setStr("robot-address", &cfg.RobotAddress, fc.RobotAddress)
	setInt("robot-input-port", &cfg.RobotInputPort, fc.RobotInputPort)
	setInt("robot-output-port", &cfg.RobotOutputPort, fc.RobotOutputPort)

	setStr("netconsole-address", &cfg.NetConsoleAddress, fc.NetConsoleAddress)
	setInt("netconsole-input-port", &cfg.NetConsoleInputPort, fc.NetConsoleInputPort)
	setInt("netconsole-output-port", &cfg.NetConsoleOutputPort, fc.NetConsoleOutputPort)

	setInt64("fms-interval-ms", &cfg.FMSIntervalMS, fc.FMSIntervalMS)
	setInt64("radio-interval-ms", &cfg.RadioIntervalMS, fc.RadioIntervalMS)
	setInt64("robot-interval-ms", &cfg.RobotIntervalMS, fc.RobotIntervalMS)

	setStr("metrics-addr", &cfg.MetricsAddr, fc.MetricsAddr)

	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}
