package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/beanstack/pkg/config"
	"github.com/openfroyo/beanstack/pkg/engine"
	"github.com/openfroyo/beanstack/pkg/policy"
	"github.com/openfroyo/beanstack/pkg/providers/beanstalk"
	"github.com/openfroyo/beanstack/pkg/settings"
	"github.com/openfroyo/beanstack/pkg/stores"
	"github.com/openfroyo/beanstack/pkg/telemetry"
)

// newService creates the control-plane client. Tests replace it.
var newService = func(ctx context.Context, cfg *config.StackConfig, logger zerolog.Logger) (engine.CloudEnvironmentService, error) {
	client, err := beanstalk.New(ctx, beanstalk.Config{Region: cfg.Region, Profile: cfg.Profile}, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// loadStack loads the dotenv files and the stack file. Relative paths in the
// stack file resolve against the stack file's directory.
func loadStack() (*config.StackConfig, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath, config.LoadOptions{})
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(configPath)
	cfg.PropertiesFile = resolvePath(base, cfg.PropertiesFile)
	cfg.EnvFile = resolvePath(base, cfg.EnvFile)
	cfg.HistoryDB = resolvePath(base, cfg.HistoryDB)
	for i, p := range cfg.Policy.Paths {
		cfg.Policy.Paths[i] = resolvePath(base, p)
	}

	if err := config.LoadDotEnv(cfg.EnvFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// buildTemplates builds the settings of every template family. All families
// share one property file and differ in their certificate binding.
func buildTemplates(cfg *config.StackConfig) ([]engine.TemplateRequest, error) {
	raw, err := config.LoadProperties(cfg.PropertiesFile, cfg.Variables())
	if err != nil {
		return nil, err
	}

	families := cfg.Families()
	requests := make([]engine.TemplateRequest, 0, len(families))
	for _, family := range families {
		list, err := settings.Build(raw, settings.BuildOptions{
			TemplateSuffix: family,
			Production:     cfg.Production,
			CertificateARN: cfg.Certificates[family],
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build %s settings: %w", family, err)
		}
		requests = append(requests, engine.TemplateRequest{
			Family:          family,
			Settings:        list,
			ApplicationName: cfg.ApplicationName,
			SolutionStack:   cfg.SolutionStack,
		})
	}
	return requests, nil
}

// app is the wired engine of one command invocation.
type app struct {
	cfg    *config.StackConfig
	tel    *telemetry.Telemetry
	logger zerolog.Logger

	service     engine.CloudEnvironmentService
	observer    *engine.Observer
	templates   *engine.TemplateManager
	reconciler  *engine.Reconciler
	coordinator *engine.Coordinator

	guard *policy.Engine
	store stores.Store
}

func newTelemetry(cfg *config.StackConfig, metricsAddr string) (*telemetry.Telemetry, error) {
	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceVersion = buildVersion
	telCfg.Environment = cfg.TemplatePrefix()
	telCfg.Logging.Level = effectiveLogLevel()
	telCfg.Tracing.Enabled = traceExporter != "none"
	telCfg.Tracing.Exporter = traceExporter
	telCfg.Tracing.Endpoint = otlpEndpoint
	telCfg.Metrics.ListenAddress = metricsAddr

	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return tel, nil
}

// appOption adjusts the wiring of newApp.
type appOption func(*app)

// withGuard makes newApp vet settings with guard instead of building its own.
// A nil guard leaves the decision to the stack's policy section.
func withGuard(guard *policy.Engine) appOption {
	return func(a *app) {
		a.guard = guard
	}
}

// newApp wires the engine for cfg. withHistory opens the run-history store
// if the stack configures one. The caller owns tel.
func newApp(ctx context.Context, cfg *config.StackConfig, tel *telemetry.Telemetry, withHistory bool, opts ...appOption) (*app, error) {
	logger := tel.Logger.Zerolog()

	service, err := newService(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		tel:     tel,
		logger:  logger,
		service: service,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.observer = engine.NewObserver(service, cfg.ApplicationName, engine.ObserverOptions{
		PollInterval: cfg.PollInterval,
		ReadyTimeout: cfg.ReadyTimeout,
		Logger:       logger,
		Metrics:      tel.Metrics,
	})
	a.templates = engine.NewTemplateManager(service, cfg.TemplatePrefix(), settings.Fingerprint, logger)
	a.reconciler = engine.NewReconciler(service, a.observer, logger, tel.Metrics)

	coordOpts := engine.CoordinatorOptions{Logger: logger}

	if a.guard == nil && cfg.Policy.Enabled {
		guard, err := newGuard(ctx, cfg, logger, tel.Metrics)
		if err != nil {
			return nil, err
		}
		a.guard = guard
	}
	if a.guard != nil {
		coordOpts.Guard = a.guard
	}

	if withHistory && cfg.HistoryDB != "" {
		store, err := openStore(ctx, cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		a.store = store
		coordOpts.Recorder = store
	}

	a.coordinator = engine.NewCoordinator(service, a.observer, a.templates, a.reconciler, coordOpts)
	return a, nil
}

// startTelemetry attaches tel to ctx and serves metrics if an address is
// configured. The returned stop function flushes traces.
func startTelemetry(ctx context.Context, tel *telemetry.Telemetry) (context.Context, func(), error) {
	ctx = tel.WithContext(ctx)
	addr, err := tel.Metrics.StartMetricsServer(ctx, tel.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start metrics server: %w", err)
	}
	if addr != "" {
		tel.Logger.WithField("address", addr).Info("Serving metrics")
	}

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			tel.Logger.WithError(err).Warn("Failed to flush traces")
		}
	}
	return ctx, stop, nil
}

// Close releases the history store.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}
}

func newGuard(ctx context.Context, cfg *config.StackConfig, logger zerolog.Logger, metrics policy.ViolationRecorder) (*policy.Engine, error) {
	guard, err := policy.NewEngine(logger, policy.Options{
		Stack:      cfg.TemplatePrefix(),
		Production: cfg.Production,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, err
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := guard.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}
	return guard, nil
}

func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
