package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tradecore/internal/api"
	"tradecore/internal/config"
	"tradecore/internal/events"
	"tradecore/internal/execution"
	"tradecore/internal/governor"
	"tradecore/internal/kafka"
	"tradecore/internal/ledger"
	"tradecore/internal/market"
	"tradecore/internal/repository"
	"tradecore/internal/risk"
	"tradecore/internal/router"
	"tradecore/internal/service"
	"tradecore/internal/websocket"
	"tradecore/pkg/crypto"
	"tradecore/pkg/ratelimit"
	"tradecore/pkg/retry"
	"tradecore/pkg/utils"
)

// app собранный процесс: компоненты и фоновые задачи
type app struct {
	cfg    *config.Config
	logger *utils.Logger

	store    *repository.Store
	ledger   *ledger.Ledger
	governor *governor.Governor
	risk     *risk.Engine
	hub      *websocket.Hub
	bus      *events.Bus
	cache    *market.CachedSource
	sandbox  []*execution.SandboxAdapter
	producer *kafka.EventProducer
	consumer *kafka.AlertConsumer
	limiter  *ratelimit.KeyedLimiter
	server   *http.Server
}

// newApp собирает граф зависимостей:
// store -> ledger -> governor -> risk -> adapters -> router -> service -> HTTP
func newApp(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// ============ Хранилище ============

	var ledgerOpts []ledger.Option
	var governorOpts []governor.Option
	var riskOpts []risk.Option
	if cfg.Database.Persistent() {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.store = repository.NewStore(db)
		ledgerOpts = append(ledgerOpts, ledger.WithJournal(a.store))
		governorOpts = append(governorOpts, governor.WithStore(a.store))
		riskOpts = append(riskOpts, risk.WithStore(a.store))
		logger.Info("database connected",
			utils.String("driver", cfg.Database.Driver),
			utils.String("dsn", cfg.Database.DSNWithoutPassword()))
	} else {
		logger.Warn("DB_DRIVER=memory: state is lost on restart")
	}

	// ============ События ============

	a.hub = websocket.NewHub(logger)
	a.hub.SetAllowedOrigins(cfg.Security.AllowedOrigins)
	a.bus = events.NewBus(cfg.Engine.EventHistory, logger, a.hub)
	a.hub.SetReplayer(a.bus)
	if cfg.Kafka.EventsEnabled() {
		a.producer = kafka.NewEventProducer(kafka.ProducerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.EventTopic,
		}, logger)
		a.bus.AddSink(a.producer)
	}

	// ============ Цены ============

	static := market.NewStaticSource(cfg.Market.StaticPrices)
	prices := market.ChainSource{static}
	if cfg.Market.YahooEnabled {
		cache, err := market.NewCachedSource(market.NewYahooSource(), cfg.Market.CacheSize, cfg.Market.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create price cache: %w", err)
		}
		a.cache = cache
		prices = append(prices, cache)
	}

	// ============ Ядро ============

	a.ledger = ledger.New(logger, ledgerOpts...)
	if a.store != nil {
		n, err := a.ledger.Restore(ctx, a.store)
		if err != nil {
			return nil, fmt.Errorf("failed to restore ledger: %w", err)
		}
		logger.Info("ledger restored", utils.Int("accounts", n))
	}
	for _, acc := range cfg.Accounts.Accounts {
		if _, err := a.ledger.EnsureAccount(ctx, acc); err != nil {
			return nil, fmt.Errorf("failed to create account %s: %w", acc.ID, err)
		}
	}

	gov, err := governor.New(cfg.Governor, logger, append(governorOpts, governor.WithPublisher(a.bus))...)
	if err != nil {
		return nil, err
	}
	if err := gov.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to load strategies: %w", err)
	}
	a.governor = gov

	sim := execution.NewSimulator(execution.SimulatorConfig{
		Latency:           cfg.Engine.SimulatorLatency,
		BaseSlippage:      cfg.Engine.BaseSlippage,
		SizeImpactDivisor: cfg.Engine.SizeImpactDivisor,
		MaxSlippage:       cfg.Engine.MaxSlippage,
		Commissions:       market.DefaultCommissions(),
	}, prices, a.ledger, logger)

	a.risk = risk.NewEngine(a.ledger, prices, risk.Config{
		TickInterval:   cfg.Engine.RiskTickInterval,
		Session:        utils.NewSessionClock(cfg.Engine.SessionTimezone, cfg.Engine.SessionRolloverHour),
		FlattenTimeout: cfg.Engine.FlattenTimeout,
	}, logger, append(riskOpts, risk.WithSweeper(sim), risk.WithNotifier(a.bus))...)
	if err := a.risk.Restore(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore violations: %w", err)
	}

	registry, err := a.buildRegistry(sim)
	if err != nil {
		return nil, err
	}

	routerCfg := router.DefaultConfig()
	routerCfg.Groups = cfg.Accounts.Groups
	routerCfg.PaperBalance = cfg.Engine.PaperBalance
	routerCfg.AttemptTimeout = cfg.Engine.AttemptTimeout
	r := router.New(a.ledger, gov, a.risk, registry, routerCfg, logger)
	retryCfg := retry.RouterConfig(cfg.Engine.AttemptTimeout)
	retryCfg.MaxAttempts = cfg.Engine.RetryAttempts
	retryCfg.InitialDelay = cfg.Engine.RetryBackoff
	r.SetRetryConfig(retryCfg)

	a.ledger.SetCallbacks(gov, r, a.bus)
	a.ledger.OnFill(a.risk.OnFill)

	svc := service.NewTradingService(a.ledger, r, gov, a.risk, static, logger)

	if cfg.Kafka.AlertsEnabled() {
		a.consumer = kafka.NewAlertConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.AlertTopic,
			GroupID: cfg.Kafka.GroupID,
		}, svc, logger)
	}

	// ============ HTTP ============

	var verifier *crypto.TokenVerifier
	if cfg.Security.APITokenHash != "" {
		verifier = crypto.NewTokenVerifier(cfg.Security.APITokenHash)
	} else {
		logger.Warn("API_TOKEN_HASH is not set: API is open")
	}
	if cfg.Engine.AlertRateLimit > 0 {
		a.limiter = ratelimit.NewKeyedLimiter(cfg.Engine.AlertRateLimit, cfg.Engine.AlertBurst, 10*time.Minute)
	}

	handler := api.SetupRoutes(&api.Dependencies{
		Service:        svc,
		Stream:         a.hub.ServeWS,
		Verifier:       verifier,
		AlertLimiter:   a.limiter,
		AllowedOrigins: cfg.Security.AllowedOrigins,
		DebugUsername:  cfg.Security.DebugUsername,
		DebugPassword:  cfg.Security.DebugPassword,
		Logger:         logger,
	})
	a.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// buildRegistry симулятор и настроенные песочницы
func (a *app) buildRegistry(sim *execution.Simulator) (*execution.Registry, error) {
	var sealer *crypto.Sealer
	if a.cfg.Security.EncryptionKey != "" {
		key, err := crypto.ParseKey(a.cfg.Security.EncryptionKey)
		if err != nil {
			return nil, err
		}
		if sealer, err = crypto.NewSealer(key); err != nil {
			return nil, err
		}
	}

	registry := execution.NewRegistry(sim)
	for _, ac := range a.cfg.Accounts.Adapters {
		adapter, err := execution.NewSandboxAdapter(execution.SandboxConfig{
			Name:      ac.Name,
			BaseURL:   ac.BaseURL,
			APIKey:    ac.APIKey,
			APISecret: ac.APISecret,
			Timeout:   ac.TimeoutDuration(),
			RateLimit: ac.RateLimit,
			Burst:     ac.Burst,
		}, sealer, a.logger)
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
		a.sandbox = append(a.sandbox, adapter)
	}
	a.logger.Info("execution adapters registered", utils.Any("adapters", registry.Names()))
	return registry, nil
}

// Run запускает фоновые задачи и HTTP сервер, ждёт отмены ctx
// и останавливает всё в обратном порядке
func (a *app) Run(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(bg)
			a.logger.Debug("background task stopped", utils.String("task", name))
		}()
	}

	go a.hub.Run()
	start("risk", a.risk.Run)
	if a.producer != nil {
		start("kafka_events", a.producer.Run)
	}
	if a.consumer != nil {
		start("kafka_alerts", func(ctx context.Context) {
			if err := a.consumer.Run(ctx); err != nil {
				a.logger.Error("alert consumer stopped", utils.Err(err))
			}
		})
	}
	if a.limiter != nil {
		start("limiter_sweep", func(ctx context.Context) {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.limiter.Sweep()
				}
			}
		})
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", utils.String("addr", a.server.Addr))
		var err error
		if a.cfg.Server.UseHTTPS {
			err = a.server.ListenAndServeTLS(a.cfg.Server.CertFile, a.cfg.Server.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = err
	}

	a.logger.Info("shutting down server...")
	shutdownCtx, done := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer done()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", utils.Err(err))
	}
	cancel()
	wg.Wait()
	a.close(shutdownCtx)

	a.logger.Info("server exited")
	return runErr
}

func (a *app) close(ctx context.Context) {
	if err := a.governor.Shutdown(ctx); err != nil {
		a.logger.Error("failed to persist strategies", utils.Err(err))
	}
	a.hub.Stop()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("failed to close kafka producer", utils.Err(err))
		}
	}
	for _, s := range a.sandbox {
		s.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close database", utils.Err(err))
		}
	}
}
