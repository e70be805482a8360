// predictd is the prediction daemon. It generates predictions and
// accumulators on an interval and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/puntaiq/pkg/accumulator"
	"github.com/phenomenon0/puntaiq/pkg/api"
	"github.com/phenomenon0/puntaiq/pkg/config"
	"github.com/phenomenon0/puntaiq/pkg/fixtures"
	"github.com/phenomenon0/puntaiq/pkg/history"
	"github.com/phenomenon0/puntaiq/pkg/logger"
	"github.com/phenomenon0/puntaiq/pkg/metrics"
	"github.com/phenomenon0/puntaiq/pkg/pipeline"
	"github.com/phenomenon0/puntaiq/pkg/predict"
	"github.com/phenomenon0/puntaiq/pkg/report"
	"github.com/phenomenon0/puntaiq/pkg/sink"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	once       = flag.Bool("once", false, "Run a single batch, print a summary and exit")
	verbose    = flag.Bool("verbose", false, "Log every stage")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize daemon")
	}
	defer d.close()

	if *once {
		b, err := d.runner.RunOnce(ctx)
		if err != nil {
			log.WithError(err).Fatal("Batch failed")
		}
		fmt.Println(report.Batch(b))
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d.runner.OnStageComplete(func(result *pipeline.StageResult) {
		if *verbose || !result.Success {
			log.WithFields(logrus.Fields{
				"stage":    result.Stage,
				"success":  result.Success,
				"duration": result.Duration,
			}).Info("stage complete")
		}
	})
	d.runner.OnError(func(err error) {
		if d.hub != nil {
			d.hub.BroadcastError(err, "pipeline")
		}
	})
	d.runner.OnBatch(func(*pipeline.Batch) {
		if d.hub != nil {
			d.hub.BroadcastStatus(d.runner.GetStatus())
		}
	})

	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     api.NewServer(d.runner, api.Options{Hub: d.hub, Registry: d.metrics.Registry(), Log: log}).Router(),
		ReadTimeout: 10 * time.Second,
		// On-demand batches run inside the request.
		WriteTimeout: 2 * time.Minute,
	}
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	if err := d.runner.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start pipeline")
	}
	log.WithFields(logrus.Fields{
		"sports":   cfg.Pipeline.Sports,
		"interval": cfg.Pipeline.Interval,
		"sinks":    d.sinks.Len(),
	}).Info("Daemon running")

	<-sigCh
	log.Info("Shutting down...")

	d.runner.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown")
	}
	cancel()

	status := d.runner.GetStatus()
	log.WithFields(logrus.Fields{
		"runs":         status.Runs,
		"last_batch":   status.LastBatchID,
		"accumulators": status.Accumulators,
	}).Info("Goodbye!")
}

type daemon struct {
	runner  *pipeline.Runner
	metrics *metrics.EngineMetrics
	hub     *sink.Hub
	sinks   *sink.Multi
	closers []func() error
}

func newDaemon(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*daemon, error) {
	d := &daemon{metrics: metrics.NewEngineMetrics()}

	source, err := newSource(cfg)
	if err != nil {
		return nil, err
	}

	var registry *predict.ModelRegistry
	if cfg.Engine.ModelPath != "" {
		registry, err = predict.LoadModelRegistry(cfg.Engine.ModelPath)
		if err != nil {
			return nil, err
		}
		log.WithField("version", registry.Version()).Info("Model registry loaded")
	}

	var hist pipeline.HistorySource
	if cfg.History.Path != "" {
		store, err := history.Open(history.Options{Path: cfg.History.Path})
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, store.Close)
		hist = store
	}

	sinks, err := d.openSinks(ctx, cfg, log)
	if err != nil {
		d.close()
		return nil, err
	}
	d.sinks = sink.NewMulti(log, sinks...)

	engine := predict.DefaultEngineConfig()
	engine.Workers = cfg.Engine.Workers
	engine.PremiumConfidence = cfg.Engine.PremiumConfidence
	engine.Value.MinValuePct = cfg.Engine.MinValuePct

	accs := accumulator.DefaultOrchestratorConfig()
	accs.Workers = cfg.Accumulators.Workers
	accs.Builder.MaxRelaxSteps = cfg.Accumulators.MaxRelaxSteps

	d.runner, err = pipeline.NewRunner(&pipeline.Config{
		Sports:      cfg.Sports(),
		DaysAhead:   cfg.Pipeline.DaysAhead,
		Interval:    cfg.Pipeline.Interval,
		NotifyUsers: cfg.Pipeline.NotifyUsers,
	}, pipeline.Deps{
		Source:       source,
		Registry:     registry,
		History:      hist,
		Sink:         d.sinks,
		Metrics:      d.metrics,
		Engine:       engine,
		Accumulators: accs,
		Log:          log,
	})
	if err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func newSource(cfg *config.Config) (fixtures.Source, error) {
	switch cfg.Fixtures.Source {
	case config.SourceSynthetic:
		return fixtures.NewSynthetic(cfg.Fixtures.Seed, time.Now().UTC()), nil
	case config.SourceFile:
		return fixtures.NewFileSource(cfg.Fixtures.Path, time.Now), nil
	case config.SourceHTTP:
		return fixtures.NewHTTPSource(cfg.Fixtures.BaseURL,
			fixtures.WithRateLimit(cfg.Fixtures.RateLimit, cfg.Fixtures.Burst),
			fixtures.WithAPIKey(cfg.Fixtures.APIKey),
		), nil
	default:
		return nil, fmt.Errorf("unknown fixtures source %q", cfg.Fixtures.Source)
	}
}

func (d *daemon) openSinks(ctx context.Context, cfg *config.Config, log *logrus.Logger) ([]sink.Sink, error) {
	var sinks []sink.Sink

	if cfg.Sinks.OutputDir != "" {
		fs, err := sink.NewFileStore(cfg.Sinks.OutputDir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
		log.WithField("dir", cfg.Sinks.OutputDir).Info("File sink enabled")
	}

	if cfg.Sinks.SQL.DSN != "" {
		store, err := sink.OpenSQL(ctx, cfg.Sinks.SQL.Driver, cfg.Sinks.SQL.DSN)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, store.Close)
		sinks = append(sinks, store)
		log.WithField("driver", cfg.Sinks.SQL.Driver).Info("SQL sink enabled")
	}

	if cfg.Sinks.Telegram.Token != "" {
		tg, err := sink.NewTelegram(sink.TelegramConfig{
			Token:        cfg.Sinks.Telegram.Token,
			ChatID:       cfg.Sinks.Telegram.ChatID,
			SendInterval: cfg.Sinks.Telegram.SendInterval,
		}, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
		log.Info("Telegram notifications enabled")
	}

	if cfg.Sinks.WebSocket && !*once {
		d.hub = sink.NewHub(log)
		go d.hub.Run(ctx)
		sinks = append(sinks, d.hub)
	}
	return sinks, nil
}

func (d *daemon) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}
