// Command slackrelay runs the Slack interactivity relay as an HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/slackrelay"
	"github.com/xraph/slackrelay/api"
	"github.com/xraph/slackrelay/config"
	"github.com/xraph/slackrelay/observability"
	"github.com/xraph/slackrelay/store/redis"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default slackrelay.yaml)")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("slackrelay stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg slackrelay.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []slackrelay.Option{
		slackrelay.WithConfig(cfg),
		slackrelay.WithLogger(logger),
	}

	if cfg.Telemetry.Tracing {
		shutdown, err := observability.InitTracer("slackrelay", os.Stdout)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
		opts = append(opts, slackrelay.WithTracer(observability.NewTracer()))
	}

	var handlerOpts []api.Option
	handlerOpts = append(handlerOpts, api.WithLogger(logger))
	if cfg.Telemetry.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, slackrelay.WithMetrics(observability.NewMetrics(reg)))
		handlerOpts = append(handlerOpts, api.WithGatherer(reg))
	}

	if cfg.Dedup.Backend == slackrelay.BackendRedis {
		rs, err := redis.Open(ctx, cfg.Redis.URL, redis.WithMaxEntries(cfg.DLQ.MaxEntries))
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		opts = append(opts, slackrelay.WithStore(rs))
		logger.Info("using redis backend")
	}

	bridge, err := slackrelay.New(opts...)
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}
	bridge.LogEnvCheck(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewHandler(bridge, handlerOpts...),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("slackrelay listening", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		// In-flight forwards are detached from requests, so drain them after
		// the listener stops.
		if berr := bridge.Shutdown(shutdownCtx); berr != nil {
			err = errors.Join(err, berr)
		}
		return err
	})
	return g.Wait()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
