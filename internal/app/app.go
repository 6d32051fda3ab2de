// Package app wires every logvault component into one process and
// manages its lifecycle: load config, build components in dependency
// order, start them, serve HTTP, and shut down cleanly on signal.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"logvault/internal/alarm"
	"logvault/internal/buffer"
	"logvault/internal/config"
	"logvault/internal/configstore"
	"logvault/internal/extraction"
	"logvault/internal/index"
	"logvault/internal/metrics"
	"logvault/internal/redaction"
	"logvault/internal/retention"
	"logvault/internal/scanner"
	"logvault/internal/search"
	"logvault/internal/shard"
	"logvault/internal/tracing"
	apperrors "logvault/pkg/errors"
	"logvault/pkg/positions"
	"logvault/pkg/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// App coordinates every component's lifecycle: scanner and supplemental
// sources feed the buffer, the buffer redacts and extracts before
// flushing to the shard router, search and alarms read from the
// router, and the HTTP server exposes all of it.
type App struct {
	config *types.Config
	logger *logrus.Logger

	tracingManager *tracing.Manager

	redactionEngine *redaction.Engine
	redactionMu     sync.RWMutex
	redactionCfg    types.RedactionConfig
	redactionPath   string

	extractor *extraction.Extractor

	posStore      *positions.Store
	fileScanner   *scanner.Scanner
	dockerSources []*scanner.DockerSource
	kafkaSources  []*scanner.KafkaSource

	shardStores []*index.Store
	router      *shard.Router
	buf         *buffer.Buffer

	searchExecutor *search.Executor

	retentionExecutor    *retention.Executor
	retentionPolicyStore *configstore.Store[types.RetentionPolicy]

	alarmStore     *alarm.MemStore
	alarmEvaluator *alarm.Evaluator
	alarmNotifier  *alarm.HTTPNotifier

	dirConfigStore   *configstore.Store[types.LogDirectoryConfig]
	fieldConfigStore *configstore.Store[types.FieldConfiguration]

	httpServer *http.Server

	ctx        context.Context
	cancel     context.CancelFunc
	configFile string
	startTime  time.Time
	wg         sync.WaitGroup
}

// New loads configuration from configFile, builds every component, and
// returns a fully wired App ready for Start.
func New(configFile string) (*App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.App.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		config:     cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		configFile: configFile,
		startTime:  time.Now(),
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeComponents builds components in dependency order: tracing
// first, then the config stores (which depend on nothing but disk), then
// redaction and extraction, then the index/shard layer, then the buffer
// that uses them, then ingestion sources that feed the buffer, then
// search/retention/alarm which read from the shard layer, and finally
// the HTTP surface over all of it.
func (app *App) initializeComponents() error {
	if err := os.MkdirAll(app.config.ConfigDir, 0o755); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeFileIO, "app", "initializeComponents", "failed to create config dir")
	}
	if err := os.MkdirAll(app.config.DataDir, 0o755); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeFileIO, "app", "initializeComponents", "failed to create data dir")
	}

	if err := app.initTracing(); err != nil {
		return err
	}
	if err := app.initConfigStores(); err != nil {
		return err
	}
	if err := app.initRedaction(); err != nil {
		return err
	}
	app.initExtraction()
	if err := app.initIndexAndShards(); err != nil {
		return err
	}
	if err := app.initBuffer(); err != nil {
		return err
	}
	if err := app.initSources(); err != nil {
		return err
	}
	app.initSearch()
	app.initRetention()
	app.initAlarms()
	app.initHTTPServer()

	return nil
}

func (app *App) initTracing() error {
	tm, err := tracing.New(app.config.Tracing, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	app.tracingManager = tm
	return nil
}

func (app *App) initConfigStores() error {
	var err error
	app.dirConfigStore, err = configstore.Open[types.LogDirectoryConfig](app.config.ConfigDir + "/log_directories.json")
	if err != nil {
		return fmt.Errorf("failed to open log directory config store: %w", err)
	}
	app.fieldConfigStore, err = configstore.Open[types.FieldConfiguration](app.config.ConfigDir + "/field_configurations.json")
	if err != nil {
		return fmt.Errorf("failed to open field configuration store: %w", err)
	}
	app.retentionPolicyStore, err = configstore.Open[types.RetentionPolicy](app.config.ConfigDir + "/retention_policies.json")
	if err != nil {
		return fmt.Errorf("failed to open retention policy store: %w", err)
	}
	return nil
}

func (app *App) initRedaction() error {
	app.redactionPath = app.config.ConfigDir + "/redaction.json"
	cfg, err := loadRedactionConfig(app.redactionPath)
	if err != nil {
		return fmt.Errorf("failed to load redaction config: %w", err)
	}
	app.redactionCfg = cfg
	app.redactionEngine = redaction.NewEngine(cfg, app.logger)
	return nil
}

func (app *App) initExtraction() {
	app.extractor = extraction.NewExtractor(app.fieldConfigStore.List(), app.logger)
}

func (app *App) initIndexAndShards() error {
	shardCfg := app.config.Shard
	n := shardCfg.NumberOfShards
	if n < 1 {
		n = 1
	}

	stores := make([]*index.Store, n)
	for i := 0; i < n; i++ {
		shardID := fmt.Sprintf("shard-%d", i)
		store, err := index.Open(index.Config{
			Dir:            fmt.Sprintf("%s/%s", app.config.Index.SegmentDir, shardID),
			ShardID:        shardID,
			Codec:          app.config.Index.Codec,
			MaxRecords:     app.config.Buffer.CommitBatchSize,
			CommitInterval: time.Duration(app.config.Buffer.CommitIntervalMS) * time.Millisecond,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to open index store for %s: %w", shardID, err)
		}
		stores[i] = store
	}

	app.shardStores = stores
	app.router = shard.NewRouter(shardCfg, stores, app.logger)
	return nil
}

func (app *App) initBuffer() error {
	posStore, err := positions.Open(app.config.Scanner.OffsetStoreDir, app.logger)
	if err != nil {
		return fmt.Errorf("failed to open positions store: %w", err)
	}
	app.posStore = posStore

	stages := []buffer.Stage{
		app.redactStage,
		app.extractStage,
	}

	app.buf = buffer.New(
		app.config.Buffer.MaxRecords,
		time.Duration(app.config.Buffer.FlushIntervalMS)*time.Millisecond,
		app.router,
		stages,
		app.logger,
	)
	return nil
}

// redactStage applies the current redaction snapshot to every field the
// engine has a rule for, including the message itself.
func (app *App) redactStage(rec *types.LogRecord) *types.LogRecord {
	snap := app.redactionEngine.Snapshot()
	rec.Message = snap.Redact("message", rec.Message)
	for k, v := range rec.Fields {
		rec.Fields[k] = snap.Redact(k, v)
	}
	return rec
}

// extractStage runs field extraction after redaction so extracted
// values never leak unredacted source text into the index.
func (app *App) extractStage(rec *types.LogRecord) *types.LogRecord {
	extracted := app.extractor.Extract(rec)
	if rec.Fields == nil {
		rec.Fields = make(map[string]string, len(extracted))
	}
	for k, v := range extracted {
		rec.Fields[k] = v
	}
	return rec
}

func (app *App) initSources() error {
	submit := func(ctx context.Context, rec *types.LogRecord) error {
		return app.buf.Enqueue(ctx, rec)
	}

	fileScanner, err := scanner.New(app.posStore, submit, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize log scanner: %w", err)
	}
	app.fileScanner = fileScanner

	for _, dir := range app.dirConfigStore.List() {
		if !dir.Enabled {
			continue
		}
		if err := app.fileScanner.AddDirectory(dir); err != nil {
			return fmt.Errorf("failed to register log directory %s: %w", dir.ID, err)
		}
	}
	for _, dir := range app.config.Scanner.Directories {
		if !dir.Enabled {
			continue
		}
		if err := app.fileScanner.AddDirectory(dir); err != nil {
			return fmt.Errorf("failed to register log directory %s: %w", dir.ID, err)
		}
	}

	for _, kcfg := range app.config.Scanner.KafkaSources {
		if !kcfg.Enabled {
			continue
		}
		src, err := scanner.NewKafkaSource(kcfg, submit, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize kafka source %s: %w", kcfg.ID, err)
		}
		app.kafkaSources = append(app.kafkaSources, src)
	}

	for _, ccfg := range app.config.Scanner.ContainerSources {
		if !ccfg.Enabled {
			continue
		}
		src, err := scanner.NewDockerSource(ccfg, submit, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container source %s: %w", ccfg.ID, err)
		}
		app.dockerSources = append(app.dockerSources, src)
	}

	return nil
}

func (app *App) initSearch() {
	app.searchExecutor = search.NewExecutor(app.router)
	app.searchExecutor.SetTracer(app.tracingManager.Tracer())
	app.router.SetTracer(app.tracingManager.Tracer())
}

func (app *App) initRetention() {
	app.retentionExecutor = retention.New(
		app.router,
		app.retentionPolicyStore,
		time.Duration(app.config.Retention.IntervalSeconds)*time.Second,
		app.logger,
	)
}

func (app *App) initAlarms() {
	app.alarmStore = alarm.NewMemStore()
	app.alarmNotifier = alarm.NewHTTPNotifier(app.config.Notification.SMTPAddr, app.config.Notification.SMTPFrom)
	app.alarmEvaluator = alarm.New(
		app.alarmStore,
		app.searchExecutor,
		app.alarmNotifier,
		time.Duration(app.config.Alarm.IntervalSeconds)*time.Second,
		app.logger,
	)
}

func (app *App) initHTTPServer() {
	router := mux.NewRouter()
	app.registerHandlers(router)

	readTimeout, err := time.ParseDuration(app.config.Server.ReadTimeout)
	if err != nil {
		readTimeout = 30 * time.Second
	}
	writeTimeout, err := time.ParseDuration(app.config.Server.WriteTimeout)
	if err != nil {
		writeTimeout = 60 * time.Second
	}

	app.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

// Start brings up every background component, then the HTTP server in
// its own goroutine tracked by the App's WaitGroup.
func (app *App) Start() error {
	app.logger.Info("starting logvault")

	app.buf.Run(app.ctx)

	for _, src := range app.kafkaSources {
		src := src
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := src.Run(app.ctx); err != nil && app.ctx.Err() == nil {
				app.logger.WithError(err).Error("kafka source stopped")
			}
		}()
	}
	for _, src := range app.dockerSources {
		if err := src.Run(app.ctx); err != nil {
			return fmt.Errorf("failed to start container source: %w", err)
		}
	}

	app.retentionExecutor.Run()
	app.alarmEvaluator.Run()

	if app.httpServer != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.logger.WithField("addr", app.httpServer.Addr).Info("starting HTTP server")
			if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				app.logger.WithError(err).Error("HTTP server error")
			}
		}()
	}

	app.logger.Info("logvault started")
	return nil
}

// Stop cancels the root context, shuts the HTTP server down with a
// timeout, and closes every component. Component errors are logged but
// never abort the rest of the shutdown sequence.
func (app *App) Stop() error {
	app.logger.Info("stopping logvault")
	app.cancel()

	if app.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.httpServer.Shutdown(ctx); err != nil {
			app.logger.WithError(err).Error("failed to shut down HTTP server")
		}
	}

	for _, src := range app.dockerSources {
		src.Close()
	}
	for _, src := range app.kafkaSources {
		if err := src.Close(); err != nil {
			app.logger.WithError(err).Error("failed to close kafka source")
		}
	}
	if app.fileScanner != nil {
		if err := app.fileScanner.Close(); err != nil {
			app.logger.WithError(err).Error("failed to close log scanner")
		}
	}

	app.retentionExecutor.Close()
	app.alarmEvaluator.Close()

	if app.buf != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.buf.Shutdown(ctx); err != nil {
			app.logger.WithError(err).Error("failed to drain buffer")
		}
	}

	for _, store := range app.shardStores {
		if err := store.Close(); err != nil {
			app.logger.WithError(err).Error("failed to close index store")
		}
	}

	if app.tracingManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.tracingManager.Shutdown(ctx); err != nil {
			app.logger.WithError(err).Error("failed to shut down tracing manager")
		}
	}

	app.wg.Wait()
	app.logger.Info("logvault stopped")
	return nil
}

// Run starts the application and blocks until SIGINT/SIGTERM, then
// shuts down gracefully.
func (app *App) Run() error {
	if err := app.Start(); err != nil {
		return err
	}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	app.logger.Info("shutdown signal received")
	return app.Stop()
}
