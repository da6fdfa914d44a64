// Package orchestrator assembles the browser, motion, navigation,
// extraction, translation, and persistence components into the single
// traversal loop that scrapes a storefront catalog end to end.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/browser"
	"github.com/mobhervr3-png/chinak2/internal/catalog"
	"github.com/mobhervr3-png/chinak2/internal/config"
	"github.com/mobhervr3-png/chinak2/internal/credentials"
	"github.com/mobhervr3-png/chinak2/internal/extractor"
	"github.com/mobhervr3-png/chinak2/internal/llmclient"
	"github.com/mobhervr3-png/chinak2/internal/motion"
	"github.com/mobhervr3-png/chinak2/internal/navigator"
	"github.com/mobhervr3-png/chinak2/internal/pricing"
	"github.com/mobhervr3-png/chinak2/internal/translator"
)

// Orchestrator owns the long-lived collaborators: the browser process, the
// database pool, the LLM router, and the credential pool. One Run executes
// one scraping session.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger
	rng    *rand.Rand

	manager  *browser.Manager
	pool     *credentials.Pool
	db       *pgxpool.Pool
	adapter  *catalog.Adapter
	pipeline *translator.Pipeline
}

// New builds every long-lived component from the configuration. The
// returned orchestrator must be shut down via Shutdown.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Orchestrator, error) {
	log := logger.Named("orchestrator")

	pgCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		pgCfg.MaxConns = cfg.Database.MaxConns
	}
	if cfg.Database.ConnectTimeout > 0 {
		pgCfg.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout
	}
	if cfg.Database.StatementTimeout > 0 {
		pgCfg.ConnConfig.RuntimeParams["statement_timeout"] =
			strconv.FormatInt(cfg.Database.StatementTimeout.Milliseconds(), 10)
	}
	db, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	store, err := catalog.New(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize catalog store: %w", err)
	}

	router, embedder, err := llmclient.NewRouterFromConfig(cfg.Translator, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize llm clients: %w", err)
	}

	normalizer := &pricing.Normalizer{
		ExchangeRate:  cfg.Pricing.ExchangeRate,
		MarginPercent: cfg.Pricing.MarginPercent,
		RoundUnit:     cfg.Pricing.RoundUnit,
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	manager, err := browser.NewManager(ctx, cfg, logger, rng)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &Orchestrator{
		cfg:      cfg,
		logger:   log,
		rng:      rng,
		manager:  manager,
		pool:     credentials.NewPool(cfg.Credentials.Dir, logger),
		db:       db,
		adapter:  catalog.NewAdapter(store, normalizer, embedder, logger),
		pipeline: translator.New(router, cfg.Translator, logger),
	}, nil
}

// Run executes one scraping session: open a tab, install credentials, and
// traverse the listing until the product limit, an operator interrupt, or a
// categorical persistence block ends it.
func (o *Orchestrator) Run(ctx context.Context) error {
	signals := navigator.NewSignals(o.cfg.Crawler.BackoffInitial, o.cfg.Crawler.BackoffMax, o.logger)

	session, err := o.manager.NewSession(ctx, signals)
	if err != nil {
		return fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			o.logger.Warn("Session close failed.", zap.Error(err))
		}
	}()

	exec := motion.NewCDPExecutor()
	sim := motion.NewWithRand(o.cfg.Motion, o.logger, exec, o.rng, o.rng.Int63())
	tm := newTabMotion(sim, session)

	rotator := newCookieRotator(o.pool, session, o.logger)
	if err := rotator.Rotate(ctx); err != nil {
		// An unreadable pool is not fatal; the session browses anonymously.
		o.logger.Warn("Initial credential install failed.", zap.Error(err))
	}

	width, height, err := viewport(session, exec)
	if err != nil {
		return err
	}

	proc := newProductProcessor(
		extractor.New(session, tm, width, height, o.logger),
		o.pipeline,
		o.adapter,
		o.logger,
	)

	// A permission-denied write means every later write fails too, so the
	// traversal is cancelled from inside the handler.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	var fatalErr error
	handler := func(hctx context.Context) error {
		err := proc.Process(hctx)
		if errors.Is(err, catalog.ErrPermissionDenied) {
			fatalErr = err
			cancelRun()
		}
		return err
	}

	nav := navigator.New(o.cfg.Crawler, o.logger, session, tm, rotator, signals,
		width, height, o.rng, handler)
	runErr := nav.Run(runCtx)

	if err := rotator.PersistActive(ctx); err != nil {
		o.logger.Warn("Credential persistence failed.", zap.Error(err))
	}
	o.adapter.Wait()

	o.logger.Info("Session finished.", zap.Int("products_visited", nav.Visited()))

	if fatalErr != nil {
		return fatalErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// Shutdown releases the browser process and the database pool.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.manager.Shutdown(ctx)
	o.db.Close()
	return err
}
