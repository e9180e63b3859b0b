// Package daemon wires the configuration, dataplane backend, and API
// server into a running service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/aetherless/aetherless/pkg/api"
	"github.com/aetherless/aetherless/pkg/capture"
	"github.com/aetherless/aetherless/pkg/config"
	"github.com/aetherless/aetherless/pkg/dataplane"
	"github.com/aetherless/aetherless/pkg/logging"
	"github.com/aetherless/aetherless/pkg/xdp"
)

// Options are the command-line overrides applied on top of the
// configuration file.
type Options struct {
	ConfigFile string
	Interface  string
	Policy     string
	APIAddr    string
}

// Daemon is the aetherless service.
type Daemon struct {
	opts Options
}

// New creates a daemon with the given options.
func New(opts Options) *Daemon {
	return &Daemon{opts: opts}
}

// statsAdapter exposes the userspace sharded counters through the API
// server's StatsReader interface.
type statsAdapter struct {
	s *dataplane.Stats
}

func (a statsAdapter) ReadStats() (dataplane.Counters, error) { return a.s.Totals(), nil }
func (a statsAdapter) ClearStats() error                      { a.s.Reset(); return nil }

// Run starts the daemon and blocks until the context is cancelled or a
// termination signal arrives.
func (d *Daemon) Run(ctx context.Context) error {
	cfg, err := d.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Interface == "" {
		return fmt.Errorf("no interface configured")
	}

	policy, err := dataplane.ParsePolicy(cfg.Policy)
	if err != nil {
		return err
	}

	table := dataplane.NewTable()
	if err := seedTable(table, cfg.Ports); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting aetherless",
		"interface", cfg.Interface,
		"backend", cfg.Backend,
		"policy", policy.String(),
		"ports", table.Len())

	apiCfg := api.Config{
		Addr:      cfg.APIAddr,
		Table:     table,
		Policy:    policy,
		Backend:   cfg.Backend,
		Interface: cfg.Interface,
	}

	errCh := make(chan error, 2)

	switch cfg.Backend {
	case config.BackendXDP:
		mgr := xdp.New()
		if err := mgr.Load(cfg.XDP.Object); err != nil {
			return err
		}
		defer mgr.Close()

		for port, val := range table.Entries() {
			if err := mgr.SyncPort(port, val); err != nil {
				return err
			}
		}
		if err := mgr.Attach(cfg.Interface, xdp.ProgramFor(policy)); err != nil {
			return err
		}
		defer func() {
			if err := mgr.Detach(cfg.Interface); err != nil {
				slog.Error("detach failed", "err", err)
			}
		}()

		apiCfg.Stats = mgr
		apiCfg.Sync = mgr

	case config.BackendSoftware:
		workers := cfg.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		stats := dataplane.NewStats(workers)

		var trace dataplane.TraceFunc
		if policy == dataplane.PolicyPermissive && cfg.Trace.File != "" {
			tw, err := logging.NewTraceWriter(cfg.Trace.File, cfg.Trace.FileSize, cfg.Trace.FileCount)
			if err != nil {
				return err
			}
			defer tw.Close()
			trace = tw.Match
		}

		engine := dataplane.NewEngine(table, stats, policy, trace)
		capMgr := capture.New(capture.Options{
			Interface: cfg.Interface,
			Workers:   workers,
		}, engine)

		go func() {
			if err := capMgr.Run(ctx); err != nil {
				errCh <- fmt.Errorf("capture: %w", err)
			}
		}()

		apiCfg.Stats = statsAdapter{stats}
		apiCfg.Shards = func() []dataplane.Counters {
			out := make([]dataplane.Counters, stats.Shards())
			for i := range out {
				out[i] = stats.Shard(i)
			}
			return out
		}

	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	srv := api.NewServer(apiCfg)
	go func() {
		if err := srv.Run(ctx); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if c, err := apiCfg.Stats.ReadStats(); err == nil {
		slog.Info("final statistics",
			"packets_total", c.Total,
			"packets_matched", c.Matched,
			"packets_passed", c.Passed,
			"packets_dropped", c.Dropped)
	}
	slog.Info("shutting down")
	return nil
}

// loadConfig reads the configuration file and applies command-line
// overrides. A missing file at the default path is not fatal.
func (d *Daemon) loadConfig() (*config.Config, error) {
	path := d.opts.ConfigFile
	if path == "" {
		path = config.DefaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		// Missing file at the default path is fine; an explicitly
		// requested file must exist.
		if d.opts.ConfigFile != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		slog.Warn("config file not found, using defaults", "path", path)
		cfg = config.Default()
	}

	if d.opts.Interface != "" {
		cfg.Interface = d.opts.Interface
	}
	if d.opts.Policy != "" {
		cfg.Policy = d.opts.Policy
	}
	if d.opts.APIAddr != "" {
		cfg.APIAddr = d.opts.APIAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedTable installs the statically configured redirect entries.
func seedTable(table *dataplane.Table, ports []config.PortBinding) error {
	for _, pb := range ports {
		addr := netip.AddrFrom4([4]byte{127, 0, 0, 1})
		if pb.Addr != "" {
			parsed, err := netip.ParseAddr(pb.Addr)
			if err != nil {
				return fmt.Errorf("port %d: invalid addr %q: %w", pb.Port, pb.Addr, err)
			}
			addr = parsed
		}
		val := dataplane.PortValue{PID: pb.PID, Addr: dataplane.PackAddr(addr)}
		if err := table.Register(pb.Port, val); err != nil {
			return fmt.Errorf("register port %d: %w", pb.Port, err)
		}
	}
	return nil
}
