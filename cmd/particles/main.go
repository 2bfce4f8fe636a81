// Command particles runs the particle simulation in a window, or headless
// for a fixed number of frames.
//
// Usage:
//
//	particles [-config file] [-watch] [-headless] [-frames n] [-backend name] [-metrics addr] [-log level]
//
// The configuration file is TOML, or YAML when it ends in .yaml or .yml.
// With -watch, edits to its swapchain section are applied while running.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/particles"
	"github.com/gogpu/particles/config"
	"github.com/gogpu/particles/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintln(os.Stderr, "particles:", err)
		os.Exit(1)
	}
}

type flags struct {
	config   string
	watch    bool
	headless bool
	frames   int
	backend  string
	metrics  string
	logLevel string
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("particles", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "configuration `file` (TOML or YAML)")
	fs.BoolVar(&f.watch, "watch", false, "apply swapchain changes to the configuration file while running")
	fs.BoolVar(&f.headless, "headless", false, "run without a window on the sim backend")
	fs.IntVar(&f.frames, "frames", 0, "stop after `n` frames (0 runs until closed)")
	fs.StringVar(&f.backend, "backend", "", "backend `name`: auto, wgpu or sim")
	fs.StringVar(&f.metrics, "metrics", "", "serve Prometheus metrics on `addr`")
	fs.StringVar(&f.logLevel, "log", "", "log `level`: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if fs.NArg() > 0 {
		return flags{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if f.frames < 0 {
		return flags{}, fmt.Errorf("-frames must not be negative, got %d", f.frames)
	}
	if f.watch && f.config == "" {
		return flags{}, errors.New("-watch needs -config")
	}
	return f, nil
}

// loadConfig reads the configuration file, if any, and applies the flag
// overrides.
func loadConfig(f flags) (config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return config.Config{}, err
		}
	}
	if f.headless {
		cfg.Window.Headless = true
	}
	if f.backend != "" {
		cfg.Device.Backend = f.backend
	}
	if f.metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = f.metrics
	}
	if f.logLevel != "" {
		cfg.Debug.LogLevel = f.logLevel
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	level, err := config.ParseLevel(cfg.Debug.LogLevel)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})).
		With("run", uuid.NewString())
	particles.SetLogger(logger)
	defer particles.SetLogger(nil)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var opts []particles.Option
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, particles.WithRegisterer(reg))
		serveMetrics(gctx, g, metrics.NewServer(cfg.Metrics.Addr, reg), logger)
	}

	var (
		win  *window
		poll = func() bool { return true }
	)
	if !cfg.Window.Headless {
		if win, err = openWindow(cfg.Window); err != nil {
			return errors.Join(err, stopBackground(cancel, g))
		}
		defer win.Close()
		opts = append(opts, particles.WithWindow(win))
		poll = win.Poll
	}

	pump := particles.NewPump(win.events())
	if win != nil {
		win.OnClose(func() { pump.Push(particles.CloseRequested{}) })
	}
	if f.watch {
		g.Go(func() error {
			return config.Watch(gctx, f.config, config.DefaultDebounce, func(c config.Config, err error) {
				if err != nil {
					logger.Warn("config reload failed", "err", err)
					return
				}
				prefs, err := c.Swapchain.Preferences()
				if err != nil {
					logger.Warn("config reload rejected", "err", err)
					return
				}
				logger.Info("swapchain reconfigured", "file", f.config)
				pump.Push(particles.Reconfigure{Swapchain: prefs})
			})
		})
	}

	sim, err := particles.New(gctx, cfg, opts...)
	if err != nil {
		return errors.Join(err, stopBackground(cancel, g))
	}
	logger.Info("running", "backend", sim.Backend(), "particles", sim.Len(), "headless", cfg.Window.Headless)

	start := time.Now()
	err = loop(gctx, sim, pump, poll, f.frames)
	err = errors.Join(err, sim.Close(context.WithoutCancel(ctx)))
	if err == nil {
		printSummary(stdout, sim.Backend(), sim.Len(), sim.Stats(), time.Since(start))
	}
	return errors.Join(err, stopBackground(cancel, g))
}

// loop redraws until frames frames are rendered, poll reports the window
// closed, a close is requested or ctx is done.
func loop(ctx context.Context, sim *particles.Simulation, pump *particles.Pump, poll func() bool, frames int) error {
	for n := 0; frames == 0 || n < frames; n++ {
		if ctx.Err() != nil || !poll() {
			return nil
		}
		for _, ev := range pump.Drain() {
			if err := sim.Handle(ctx, ev); err != nil {
				return err
			}
		}
		if sim.State() == particles.StateClosed {
			return nil
		}
		if err := sim.Redraw(ctx); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, srv *http.Server, logger *slog.Logger) {
	g.Go(func() error {
		logger.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	})
}

func stopBackground(cancel context.CancelFunc, g *errgroup.Group) error {
	cancel()
	return g.Wait()
}
