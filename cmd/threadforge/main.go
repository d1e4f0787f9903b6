package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/threadforge/threadforge/pkg/engine"
	"github.com/threadforge/threadforge/pkg/history"
	"github.com/threadforge/threadforge/pkg/registry"
)

func main() {
	// A missing .env file is fine; explicit environment still applies.
	_ = godotenv.Load()

	var cfgPath string

	rootCmd := &cobra.Command{
		Use:   "threadforge",
		Short: "Priority task engine",
		Long: `threadforge runs JSON-described tasks on a priority worker pool.
Tasks are either built-in workloads (HEAVY_LOOP, TIMED_LOOP, MIXED_LOOP,
INSTANT_MESSAGE) or named pipelines assembled from them.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML or JSON config")

	var (
		taskID   string
		priority int
	)
	runCmd := &cobra.Command{
		Use:   "run <taskData> [payload]",
		Short: "Submit one task and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := ""
			if len(args) > 1 {
				payload = args[1]
			}
			return runTask(cmd.Context(), cfgPath, taskID, priority, args[0], payload)
		},
	}
	runCmd.Flags().StringVar(&taskID, "id", "cli-task", "task id")
	runCmd.Flags().IntVar(&priority, "priority", 1, "priority (0=low, 1=normal, 2=high)")
	rootCmd.AddCommand(runCmd)

	pipelinesCmd := &cobra.Command{
		Use:   "pipelines",
		Short: "List pipeline definitions from the configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listPipelines(cmd.Context(), cfgPath)
		},
	}
	rootCmd.AddCommand(pipelinesCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().Timestamp().Logger()
}

// buildEngine assembles an engine and its collaborators from config. The
// returned cleanup releases everything the engine borrowed.
func buildEngine(ctx context.Context, cfg fileConfig, log zerolog.Logger) (*engine.Engine, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var store registry.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rs, err := registry.NewRedisStore(registry.RedisConfig{
			Client:    client,
			Namespace: cfg.Redis.Namespace,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		store = rs
		cleanups = append(cleanups, func() { _ = rs.Close() })
	}

	var hist *history.Store
	if cfg.HistoryPath != "" {
		h, err := history.Open(cfg.HistoryPath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		hist = h
		cleanups = append(cleanups, func() { _ = h.Close() })
	}

	eng := engine.New(engine.Config{
		Workers:          cfg.Workers,
		QueueLimit:       cfg.QueueLimit,
		ProgressInterval: cfg.progressInterval(),
		PipelineStore:    store,
		History:          hist,
		Logger:           log,
		ProgressSink: func(taskID string, v float64) {
			log.Info().Str("task", taskID).Int("percent", int(v*100)).Msg("progress")
		},
	})
	cleanups = append(cleanups, eng.Shutdown)

	if store != nil {
		if err := eng.LoadPipelines(ctx); err != nil {
			log.Warn().Err(err).Msg("could not load pipelines from store")
		}
	}

	if cfg.PipelinesDir != "" {
		watcher := registry.NewWatcher(eng.Registry(), cfg.PipelinesDir, log)
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				log.Warn().Err(err).Str("dir", cfg.PipelinesDir).Msg("pipeline watch stopped")
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		cleanups = append(cleanups, func() { _ = srv.Close() })
	}

	return eng, cleanup, nil
}

func runTask(ctx context.Context, cfgPath, id string, priority int, taskData, payload string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	eng, cleanup, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	// Give a configured watcher a moment to pick up definition files
	// before routing the descriptor.
	if cfg.PipelinesDir != "" {
		time.Sleep(100 * time.Millisecond)
	}

	result, err := eng.Submit(ctx, id, priority, taskData, payload)
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

func listPipelines(ctx context.Context, cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	eng, cleanup, err := buildEngine(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.PipelinesDir != "" {
		time.Sleep(100 * time.Millisecond)
	}

	names := eng.Pipelines()
	if len(names) == 0 {
		fmt.Println("no pipelines registered")
		return nil
	}
	for _, name := range names {
		def, _ := eng.Registry().Definition(name)
		fmt.Printf("%s\t%s\n", name, compactJSON(def))
	}
	return nil
}

func compactJSON(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
