package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ziadkadry99/auditq/internal/audit"
	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/config"
	"github.com/ziadkadry99/auditq/internal/db"
	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/findings"
	"github.com/ziadkadry99/auditq/internal/llm"
	"github.com/ziadkadry99/auditq/internal/logging"
	"github.com/ziadkadry99/auditq/internal/masking"
	"github.com/ziadkadry99/auditq/internal/metrics"
	"github.com/ziadkadry99/auditq/internal/pseudonym"
	"github.com/ziadkadry99/auditq/internal/retry"
	"github.com/ziadkadry99/auditq/internal/router"
	"github.com/ziadkadry99/auditq/internal/rules"
	"github.com/ziadkadry99/auditq/internal/schema"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `auditq init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

// openDatabase opens the configured record store.
func openDatabase(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return db.OpenPostgres(ctx, cfg.Database.DSN)
	default:
		return db.Open(cfg.Database.Path)
	}
}

func loadRegistry(cfg *config.Config) (*schema.Registry, error) {
	if cfg.SchemaFile != "" {
		return schema.Load(cfg.SchemaFile)
	}
	return schema.Default()
}

func loadRules(cfg *config.Config) (*rules.Set, error) {
	if cfg.Rules.Dir != "" {
		return rules.Load(cfg.Rules.Dir, cfg.Rules.Glob)
	}
	return rules.Default()
}

// app holds every wired component a command may need.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *db.DB
	registry   *schema.Registry
	rules      *rules.Set
	masker     *masking.Masker
	classifier *classifier.Classifier
	extractor  *extractor.Extractor
	findings   *findings.Store
	pseudonyms *pseudonym.Service
	audit      *audit.Store
	router     *router.Router
}

// buildApp wires the pipeline from config. A provider that cannot be built
// (usually a missing API key) is logged and the pipeline runs without one:
// listings still work and analytical answers carry a notice.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var err error
	if a.registry, err = loadRegistry(cfg); err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	if a.rules, err = loadRules(cfg); err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	if a.masker, err = masking.New(a.rules.Masking); err != nil {
		return nil, fmt.Errorf("building masker: %w", err)
	}
	if a.classifier, err = classifier.New(a.rules.Classifier); err != nil {
		return nil, fmt.Errorf("building classifier: %w", err)
	}
	detector, err := pseudonym.NewDetector(a.rules.Pseudonym)
	if err != nil {
		return nil, fmt.Errorf("building detector: %w", err)
	}

	var provider llm.Provider
	chain, err := llm.FromConfig(cfg, logger)
	if err != nil {
		logger.Warn("no LLM provider available; analytical answers will be unavailable", zap.Error(err))
	} else {
		provider = chain
	}

	var extractionProvider llm.Provider
	if cfg.Extraction == config.ExtractionHybrid {
		extractionProvider = provider
	}
	if a.extractor, err = extractor.New(a.registry, extractionProvider, logger); err != nil {
		return nil, fmt.Errorf("building extractor: %w", err)
	}

	if a.db, err = openDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a.findings = findings.NewStore(a.db, a.registry)
	a.audit = audit.NewStore(a.db)
	a.pseudonyms = pseudonym.NewService(pseudonym.NewSQLStore(a.db), detector,
		pseudonym.WithRetention(cfg.Pseudonym.Retention),
		pseudonym.WithLogger(logger),
		pseudonym.OnCreate(func(c pseudonym.Category) { metrics.MappingCreated(string(c)) }),
	)

	opts := router.DefaultOptions()
	opts.ListingLimit = cfg.Limits.Listing
	opts.ContextLimit = cfg.Limits.Context
	opts.StoreRetry = retry.Policy{
		Attempts:  cfg.Retry.Attempts,
		BaseDelay: cfg.Retry.BaseDelay,
		Timeout:   cfg.Timeouts.RecordStore,
	}

	deps := router.Deps{
		Masker:     a.masker,
		Classifier: a.classifier,
		Extractor:  a.extractor,
		Store:      a.findings,
		Pseudonyms: a.pseudonyms,
		LLM:        provider,
		Audit:      a.audit,
		Logger:     logger,
	}
	if a.router, err = router.New(deps, opts); err != nil {
		a.db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
