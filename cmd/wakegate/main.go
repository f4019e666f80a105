// Command wakegate listens to a microphone (or replays a WAV file), opens a
// dictation session whenever a wake word is heard and transcribes until a
// sleep word closes it. Finished transcripts are persisted to the configured
// sinks.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wakegate/internal/app"
	"github.com/MrWong99/wakegate/internal/config"
	"github.com/MrWong99/wakegate/internal/event"
	"github.com/MrWong99/wakegate/internal/health"
	"github.com/MrWong99/wakegate/internal/observe"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2

	shutdownTimeout = 15 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "wakegate: %v\n", err)
		return exitUsage
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(opts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "wakegate: config file %q not found\n", opts.configPath)
		} else {
			fmt.Fprintf(os.Stderr, "wakegate: %v\n", err)
		}
		return exitFailure
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("wakegate starting",
		"config", opts.configPath,
		"model", cfg.Session.ModelPath,
		"engine", cfg.EffectiveEngine(),
		"source", cfg.Audio.Source,
		"listen_addr", cfg.Server.ListenAddr,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "wakegate"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return exitFailure
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	built, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return exitFailure
	}
	defer func() {
		if err := built.engine.Close(); err != nil {
			slog.Warn("engine close error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, built.providers)
	if err != nil {
		closeSinks(built.providers.Sinks)
		slog.Error("failed to initialise application", "err", err)
		return exitFailure
	}
	subscribePrinter(application.Bus(), os.Stdout)

	// ── Config hot reload ─────────────────────────────────────────────────────
	if opts.configPath != "" {
		w, err := config.NewWatcher(opts.configPath, func(old, new *config.Config) {
			applyConfigChange(&level, config.Diff(old, new))
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
			go reloadOnHangup(ctx, w)
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runErr := serve(ctx, cfg.Server.ListenAddr, application, built)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return exitFailure
	}
	if runErr != nil {
		slog.Error("run error", "err", runErr)
		return exitFailure
	}
	slog.Info("goodbye")
	return exitOK
}

// serve runs the application next to the status server until ctx ends or the
// audio source is exhausted. An empty addr disables the status server.
func serve(ctx context.Context, addr string, application *app.App, built *builtProviders) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		err := application.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           statusHandler(application, built),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("status server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	slog.Info("ready, say a wake word (Ctrl+C to quit)")
	return g.Wait()
}

// statusHandler serves /metrics, /healthz and /readyz.
func statusHandler(application *app.App, built *builtProviders) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	checkers := append(application.Checkers(), engineChecker(built))
	health.New(checkers...).Register(mux)

	return observe.Middleware(observe.DefaultMetrics())(mux)
}

// ── Output ────────────────────────────────────────────────────────────────────

// subscribePrinter prints every bus event as a tagged line on w.
func subscribePrinter(bus *event.Bus, w io.Writer) {
	bus.Subscribe(event.KindWake, func(ev event.Event) error {
		_, err := fmt.Fprintf(w, "[WAKE] %s\n", ev.Word)
		return err
	})
	bus.Subscribe(event.KindTranscript, func(ev event.Event) error {
		tag := "[TRANSCRIPT][PART]"
		if ev.IsFinal {
			tag = "[TRANSCRIPT][FINAL]"
		}
		_, err := fmt.Fprintf(w, "%s %s\n", tag, ev.Text)
		return err
	})
	bus.Subscribe(event.KindSleep, func(ev event.Event) error {
		if _, err := fmt.Fprintf(w, "[SLEEP] %s\n", ev.Word); err != nil {
			return err
		}
		if ev.Record != "" {
			_, err := fmt.Fprintf(w, "[SAVED] %s\n", ev.Record)
			return err
		}
		return nil
	})
	bus.Subscribe(event.KindError, func(ev event.Event) error {
		_, err := fmt.Fprintf(w, "[ERROR] %v\n", ev.Err)
		return err
	})
}

// ── Flags and config ──────────────────────────────────────────────────────────

type options struct {
	model      string
	configPath string
	input      string
	listen     string
	listenSet  bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("wakegate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.model, "model", "", "whisper model file, or ws:// URL of a vosk server (required)")
	fs.StringVar(&o.configPath, "config", "", "path to the YAML configuration file")
	fs.StringVar(&o.input, "input", "", "replay this WAV file instead of capturing the microphone")
	fs.StringVar(&o.listen, "listen", "", "status server address; empty disables it")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "listen" {
			o.listenSet = true
		}
	})
	if o.model == "" {
		fs.Usage()
		return options{}, errors.New("--model is required")
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

// loadConfig loads the config file (or the defaults) and applies the command
// line overrides.
func loadConfig(o options) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	cfg.Session.ModelPath = o.model
	if o.input != "" {
		cfg.Audio.Source = config.SourceWAV
		cfg.Audio.File = o.input
	}
	if o.listenSet {
		cfg.Server.ListenAddr = o.listen
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// reloadOnHangup re-reads the config file on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if changed, err := w.Reload(); err != nil {
				slog.Warn("config reload failed", "err", err)
			} else if !changed {
				slog.Info("config unchanged")
			}
		}
	}
}

func applyConfigChange(level *slog.LevelVar, d config.ConfigDiff) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changed, restart required to apply", "sections", d.RestartRequired)
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
