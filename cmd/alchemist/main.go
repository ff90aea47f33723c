package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alchemist-io/alchemist/internal/analyzer"
	"github.com/alchemist-io/alchemist/internal/api"
	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/encoder"
	"github.com/alchemist-io/alchemist/internal/encoder/vmaf"
	"github.com/alchemist-io/alchemist/internal/events"
	"github.com/alchemist-io/alchemist/internal/logger"
	"github.com/alchemist-io/alchemist/internal/metrics"
	"github.com/alchemist-io/alchemist/internal/monitor"
	"github.com/alchemist-io/alchemist/internal/notify"
	"github.com/alchemist-io/alchemist/internal/orchestrator"
	"github.com/alchemist-io/alchemist/internal/rollup"
	"github.com/alchemist-io/alchemist/internal/scheduler"
	"github.com/alchemist-io/alchemist/internal/store"
	"github.com/alchemist-io/alchemist/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config/alchemist.yaml)")
	listenAddr := flag.String("listen", "", "Override listen address from config")
	dbPath := flag.String("db", "", "Override database path from config")
	metricsFlag := flag.Bool("metrics", false, "Expose Prometheus metrics at /metrics")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			cfgPath = envPath
		} else {
			cfgPath = "config/alchemist.yaml"
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("warning: could not load config from %s: %v\n", cfgPath, err)
		cfg = config.DefaultConfig()
	}

	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		cfg.DBPath = envDB
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if envListen := os.Getenv("LISTEN_ADDR"); envListen != "" {
		cfg.ListenAddr = envListen
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	if envMetrics := os.Getenv("ENABLE_METRICS"); envMetrics != "" {
		cfg.Engine.System.EnableTelemetry = true
	}
	if *metricsFlag {
		cfg.Engine.System.EnableTelemetry = true
	}

	logger.Init(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logger.Warn("could not create database directory", "path", cfg.DBPath, "error", err)
	}

	logger.Info("starting alchemist",
		"db_path", cfg.DBPath,
		"config", cfgPath,
		"listen_addr", cfg.ListenAddr,
		"output_codec", cfg.Engine.Transcode.OutputCodec,
		"concurrent_jobs", cfg.Engine.Transcode.ConcurrentJobs,
	)

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	liveSettings, err := config.LoadLiveSettings(ctx, st, cfg.Engine)
	if err != nil {
		logger.Error("failed to load live settings", "error", err)
		os.Exit(1)
	}

	// Detect hardware encoders once at startup; the registry is read-only
	// for the lifetime of the process after this point.
	registry := encoder.NewRegistry()
	for key, enc := range registry.DetectEncoders(cfg.FFmpegPath) {
		logger.Info("encoder detected", "key", key, "name", enc.Name, "available", enc.Available)
	}

	prober := analyzer.NewProber(cfg.FFprobePath)
	transcoder := encoder.NewTranscoder(cfg.FFmpegPath)
	detector := vmaf.NewDetector(cfg.FFmpegPath)
	detector.Detect()

	bus := events.NewBus()
	notifier := notify.NewDispatcher(st)
	metricsReg := metrics.New(cfg.Engine.System.EnableTelemetry)

	settingsFn := liveSettings.Current

	orch := &orchestrator.Orchestrator{
		Store:      st,
		Prober:     prober,
		Registry:   registry,
		Transcoder: transcoder,
		Detector:   detector,
		Bus:        bus,
		Notifier:   notifier,
		Metrics:    metricsReg,
		Settings:   settingsFn,
		FFmpegPath: cfg.FFmpegPath,
		TempDirFor: cfg.GetTempDir,
	}

	engineState := scheduler.NewEngineState()
	activeHours := scheduler.NewActiveHoursEvaluator(time.Local)
	pool := scheduler.NewPool(st, orch, engineState, activeHours, settingsFn)
	pool.Metrics = metricsReg
	if cfg.Engine.System.MaxLoadAverage > 0 {
		pool.Monitor = monitor.NewGopsutilMonitor()
	}

	w, err := watcher.New(st, settingsFn)
	if err != nil {
		logger.Error("failed to start file watcher", "error", err)
		os.Exit(1)
	}
	w.Notifier = notifier

	roll := rollup.NewRunner(st, 0)

	handler := api.NewHandler(st, pool, w, bus, liveSettings, notifier)
	router := api.NewRouter(handler)

	var mux http.Handler = router
	if cfg.Engine.System.EnableTelemetry {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/", router)
		metricsMux.Handle("/metrics", metricsReg.Handler())
		mux = metricsMux
	}

	pool.Start(ctx)
	defer pool.Stop()

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start file watcher", "error", err)
		os.Exit(1)
	}
	defer w.Stop()

	if err := roll.Start(); err != nil {
		logger.Error("failed to start rollup scheduler", "error", err)
		os.Exit(1)
	}
	defer roll.Stop()

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("stopped")
}
