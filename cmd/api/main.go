package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"content-batch/internal/config"
	"content-batch/internal/estimator"
	"content-batch/internal/events"
	"content-batch/internal/generator"
	"content-batch/internal/handler"
	"content-batch/internal/logger"
	"content-batch/internal/metrics"
	"content-batch/internal/models"
	"content-batch/internal/repository"
	"content-batch/internal/service"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.GetLogger().Fatalf("failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	logger.SetDefault(log)

	kv, err := repository.OpenKVStore(cfg.Store.Backend, cfg.Store.DBPath, cfg.Store.DataDir)
	if err != nil {
		log.Fatalf("failed to initialize store: %v", err)
	}
	store := repository.NewJobStore(kv)
	defer store.Close()

	if cfg.Generator.URL == "" {
		log.Fatal("GENERATOR_URL is required")
	}
	gen := generator.NewHTTPClient(cfg.Generator.URL, cfg.Generator.APIKey, cfg.Generator.Timeout)

	// Wire events into metrics and the log
	metricsInstance := metrics.NewMetrics()
	notifier := events.NewNotifier(log)
	notifier.Subscribe(metricsInstance.Observe)
	notifier.Subscribe(func(ev models.Event) {
		entry := logger.WithJob(log, ev.Job).WithField("event", ev.Type)
		if ev.Error != "" {
			entry = entry.WithField("error", ev.Error)
		}
		entry.Debug("job event")
	})

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()

	pacer := service.NewPacer(cfg.Engine.InterItemDelay, cfg.Engine.MaxCallsPerMinute)
	controller := service.NewController(store, gen, service.Options{
		Context:   runCtx,
		MaxItems:  cfg.Engine.MaxItems,
		Pacer:     pacer,
		Estimator: estimator.New(cfg.Engine.InterItemDelay),
		Notifier:  notifier,
		Logger:    log,
	})

	job, err := controller.Recover(context.Background())
	if err != nil {
		log.Fatalf("failed to recover job: %v", err)
	}
	if job != nil {
		logger.WithJob(log, job).WithField("items", len(job.Items)).Info("loaded stored job")
	}

	jobHandler := handler.NewJobHandler(controller, metricsInstance, cfg.Defaults, log)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.NewRouter(jobHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Infof("API server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-sigChan
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("error closing server")
	}

	// An in-flight item is allowed to finish; the job is left paused
	cancelRuns()
	waitDone := make(chan error, 1)
	go func() { waitDone <- controller.Wait() }()
	select {
	case err := <-waitDone:
		if err != nil {
			log.WithError(err).Warn("last run ended with an error")
		}
	case <-time.After(cfg.Generator.Timeout + 5*time.Second):
		log.Warn("timed out waiting for the current item; it will be retried after restart")
	}

	log.Info("server stopped")
}
