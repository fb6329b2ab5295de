package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"content-batch/internal/config"
	"content-batch/internal/estimator"
	"content-batch/internal/events"
	"content-batch/internal/generator"
	"content-batch/internal/importer"
	"content-batch/internal/logger"
	"content-batch/internal/metrics"
	"content-batch/internal/models"
	"content-batch/internal/repository"
	"content-batch/internal/service"
)

// runner drives one batch headless: import a CSV (or pick up the stored job),
// run it to completion and write the exports. SIGINT pauses after the current item.
func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	csvPath := flag.String("csv", "", "CSV file to create a new job from; empty resumes the stored job")
	model := flag.String("model", "", "model override for a new job")
	length := flag.String("length", "", "length override for a new job")
	recordsOut := flag.String("records", "", "write structured records JSON here when done")
	bundleOut := flag.String("bundle", "", "write the markdown zip bundle here when done")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.GetLogger().Fatalf("failed to load config: %v", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
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

	metricsInstance := metrics.NewMetrics()
	notifier := events.NewNotifier(log)
	notifier.Subscribe(metricsInstance.Observe)
	notifier.Subscribe(progressPrinter(log))

	controller := service.NewController(store, generator.NewHTTPClient(cfg.Generator.URL, cfg.Generator.APIKey, cfg.Generator.Timeout), service.Options{
		MaxItems:  cfg.Engine.MaxItems,
		Pacer:     service.NewPacer(cfg.Engine.InterItemDelay, cfg.Engine.MaxCallsPerMinute),
		Estimator: estimator.New(cfg.Engine.InterItemDelay),
		Notifier:  notifier,
		Logger:    log,
	})

	ctx := context.Background()
	job, err := controller.Recover(ctx)
	if err != nil {
		log.Fatalf("failed to recover job: %v", err)
	}

	if *csvPath != "" {
		job, err = createFromCSV(ctx, controller, *csvPath, cfg.Defaults.Merge(&models.Settings{Model: *model, Length: *length}))
		if err != nil {
			log.Fatalf("failed to create job: %v", err)
		}
		est := controller.Estimator()
		log.WithFields(logrus.Fields{
			"items":          len(job.Items),
			"estimated_cost": fmt.Sprintf("$%.4f", job.Cost.Estimated),
			"minutes":        est.EstimateMinutes(len(job.Items)),
		}).Info("job created")
	}
	if job == nil {
		log.Fatal("no stored job; pass -csv to create one")
	}

	if start := startFor(controller, job); start != nil {
		if err := start(ctx); err != nil {
			log.Fatalf("failed to start job: %v", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			log.Info("pausing after the current item...")
			controller.Pause()
		}()

		if err := controller.Wait(); err != nil {
			log.WithError(err).Error("run halted")
		}
	} else {
		log.Info("nothing left to run")
	}

	job = controller.GetJob()
	log.WithFields(logrus.Fields{
		"status":      job.Status,
		"completed":   job.Progress.Completed,
		"failed":      job.Progress.Failed,
		"actual_cost": fmt.Sprintf("$%.4f", job.Cost.Actual),
		"tokens_out":  metricsInstance.GetSnapshot()["output_tokens"],
	}).Info("batch finished")

	if err := writeExports(controller, *recordsOut, *bundleOut); err != nil {
		log.Fatalf("failed to write exports: %v", err)
	}
	if job.Status != models.JobCompleted {
		os.Exit(2)
	}
}

// startFor picks how to run the stored job, or nil when there is nothing to do.
// A paused job is always resumed so a run halted after its last item can complete.
func startFor(c *service.Controller, job *models.Job) func(context.Context) error {
	if job.Status == models.JobPaused {
		return c.Resume
	}
	if job.NextRunnable() != nil {
		return c.Start
	}
	return nil
}

func createFromCSV(ctx context.Context, c *service.Controller, path string, settings models.Settings) (*models.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	inputs, err := importer.Parse(string(data))
	if err != nil {
		return nil, err
	}
	return c.CreateJob(ctx, inputs, settings)
}

func writeExports(c *service.Controller, recordsPath, bundlePath string) error {
	if recordsPath != "" {
		data, err := c.ExportAsStructuredRecords()
		if err != nil {
			return err
		}
		if err := os.WriteFile(recordsPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", recordsPath, err)
		}
	}
	if bundlePath != "" {
		data, err := c.ExportAsDocumentBundle()
		if err != nil {
			return err
		}
		if err := os.WriteFile(bundlePath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", bundlePath, err)
		}
	}
	return nil
}

func progressPrinter(log logrus.FieldLogger) events.Handler {
	return func(ev models.Event) {
		if ev.Item == nil || ev.Job == nil {
			return
		}
		fields := logrus.Fields{
			"order": fmt.Sprintf("%d/%d", ev.Item.Order, ev.Job.Progress.Total),
			"topic": ev.Item.Input.Topic,
		}
		switch ev.Type {
		case models.EventItemComplete:
			log.WithFields(fields).Info("generated")
		case models.EventItemError:
			log.WithFields(fields).WithField("error", ev.Item.Error).Warn("generation failed")
		}
	}
}
