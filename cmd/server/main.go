package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/RomuloBreno/project-easy-briefing/internal"
	"github.com/RomuloBreno/project-easy-briefing/internal/analysis"
	"github.com/RomuloBreno/project-easy-briefing/internal/billing"
	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
	"github.com/RomuloBreno/project-easy-briefing/internal/email"
	"github.com/RomuloBreno/project-easy-briefing/internal/handler/api"
	"github.com/RomuloBreno/project-easy-briefing/internal/handler/webhook"
	"github.com/RomuloBreno/project-easy-briefing/internal/jobs"
	"github.com/RomuloBreno/project-easy-briefing/internal/memory"
	"github.com/RomuloBreno/project-easy-briefing/internal/middleware"
	mongostore "github.com/RomuloBreno/project-easy-briefing/internal/mongo"
	"github.com/RomuloBreno/project-easy-briefing/internal/postgres"
	"github.com/RomuloBreno/project-easy-briefing/internal/redis"
	"github.com/RomuloBreno/project-easy-briefing/internal/router"
	"github.com/RomuloBreno/project-easy-briefing/internal/routes"
	"github.com/RomuloBreno/project-easy-briefing/internal/service"
	"github.com/RomuloBreno/project-easy-briefing/internal/telemetry"
	"github.com/RomuloBreno/project-easy-briefing/internal/worker"
)

const metricsNamespace = "easybriefing"

type stores struct {
	orders domain.OrderStore
	users  domain.UserPlanStore
	ping   func(ctx context.Context) error
	close  func()
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flushSentry()

	telemetry.InitBusinessMetrics(metricsNamespace)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	catalog := domain.DefaultPlanCatalog()

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize %s provider: %w", cfg.Payment.Gateway, err)
	}
	logger.Info("Payment provider initialized", "gateway", provider.Name())

	g, gctx := errgroup.WithContext(ctx)

	// Redis backs the reconcile lock and the email queue. Without it the
	// lock is a no-op and emails are sent inline.
	var locker service.Locker
	emailHandler, err := newEmailTaskHandler(cfg, logger)
	if err != nil {
		return err
	}
	var notifier service.ActivationNotifier = jobs.NewInlineNotifier(emailHandler)

	if cfg.Redis.Enabled() {
		rdb, err := redis.Connect(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: 3,
		}, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = redis.NewLocker(rdb)

		queueCfg := jobs.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		jobClient := jobs.NewClient(queueCfg, logger)
		defer jobClient.Close()
		notifier = jobClient

		jobWorker := jobs.NewWorker(jobs.WorkerConfig{Redis: queueCfg, Concurrency: cfg.Worker.Concurrency}, emailHandler, logger)
		g.Go(func() error { return jobWorker.Run(gctx) })
	} else {
		logger.Warn("REDIS_ADDR not set: webhook lock disabled, emails sent inline")
	}

	// Initialize services
	activationService := service.NewPlanActivationService(st.users, catalog, notifier, logger)
	quotaEnforcer := service.NewQuotaEnforcer(st.users, catalog, logger)
	orderService := service.NewOrderService(st.orders, st.users, catalog, provider, service.OrderServiceConfig{
		Currency:        cfg.Payment.Currency,
		GatewayTimeout:  cfg.Payment.GatewayTimeout,
		PendingOrderTTL: cfg.Orders.PendingOrderTTL,
	}, logger)
	reconciler := service.NewWebhookReconciler(st.orders, st.users, provider, activationService, locker, service.ReconcilerConfig{
		WebhookSecret:  cfg.Payment.WebhookSecret(),
		GatewayTimeout: cfg.Payment.GatewayTimeout,
	}, logger)

	var analyzer analysis.Analyzer = analysis.Unconfigured{}
	if cfg.Analysis.OpenAIAPIKey != "" {
		analyzer, err = analysis.NewOpenAIClient(analysis.OpenAIConfig{
			APIKey:    cfg.Analysis.OpenAIAPIKey,
			BaseURL:   cfg.Analysis.OpenAIBaseURL,
			Transport: &telemetry.HTTPTransport{},
		})
		if err != nil {
			return fmt.Errorf("failed to initialize analyzer: %w", err)
		}
	} else {
		logger.Warn("OPENAI_API_KEY not set: analysis requests will fail")
	}
	analysisService := service.NewAnalysisService(st.users, quotaEnforcer, activationService, catalog, analyzer, cfg.Analysis.SystemPrompt, logger)

	// Background workers
	sweeper := worker.NewSweeper(st.orders, reconciler, provider.Name(), worker.Config{
		PollInterval:   cfg.Worker.PollInterval,
		MaxConcurrency: cfg.Worker.Concurrency,
		StaleAfter:     cfg.Orders.StaleOrderAge,
	}, logger)
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	scheduler, err := worker.NewScheduler(activationService, cfg.Worker.PlanExpirySchedule, logger)
	if err != nil {
		return err
	}
	g.Go(func() error {
		scheduler.Start(gctx)
		return nil
	})

	// ==========================================================================
	// HTTP
	// ==========================================================================

	metrics := middleware.NewMetrics(metricsNamespace)
	analysisLimiter := middleware.NewRateLimiter(middleware.StrictRateLimiterConfig())
	defer analysisLimiter.Stop()

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		metrics.Middleware,
		router.CORS(cfg.CORSOrigins),
		middleware.WithUser,
		telemetry.SentryContextMiddleware(sentryUser),
		middleware.WithRequestLogger(logger),
		router.Logger(logger),
	)

	webhookDeps := routes.WebhookDeps{}
	switch provider.Name() {
	case internal.GatewayStripe:
		webhookDeps.StripeHandler = webhook.NewStripeHandler(reconciler, logger)
	default:
		webhookDeps.MercadoPagoHandler = webhook.NewMercadoPagoHandler(reconciler, logger)
	}

	routes.RegisterWebhookRoutes(r, webhookDeps)
	routes.RegisterAPIRoutes(r, routes.APIDeps{
		OrderHandler:    api.NewOrderHandler(orderService),
		PlanHandler:     api.NewPlanHandler(catalog, activationService),
		AnalysisHandler: api.NewAnalysisHandler(analysisService),
		AnalysisLimiter: analysisLimiter.Middleware,
	})
	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		Health:  healthHandler(st.ping),
		Metrics: metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Analysis calls wait on the model.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("Starting server", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case internal.StoreDriverPostgres:
		logger.Info("Connecting to database...")
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}

		logger.Info("Running database migrations...")
		if err := internal.RunPoolMigrations(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}

		return &stores{
			orders: postgres.NewOrderStore(pool),
			users:  postgres.NewUserPlanStore(pool),
			ping:   pool.Ping,
			close:  pool.Close,
		}, nil

	case internal.StoreDriverMongo:
		logger.Info("Connecting to mongo...", "database", cfg.Store.MongoDatabase)
		client, err := mongostore.Connect(ctx, mongostore.Config{
			URI:           cfg.Store.MongoURI,
			Database:      cfg.Store.MongoDatabase,
			RetryInterval: time.Second,
		})
		if err != nil {
			return nil, err
		}
		store, err := mongostore.NewStore(ctx, client.Database(cfg.Store.MongoDatabase))
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}

		return &stores{
			orders: store,
			users:  store,
			ping:   func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					logger.Error("failed to disconnect mongo", "error", err)
				}
			},
		}, nil

	default:
		logger.Warn("Using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return &stores{
			orders: store,
			users:  store,
			ping:   func(context.Context) error { return nil },
			close:  func() {},
		}, nil
	}
}

func newProvider(cfg *internal.Config) (billing.Provider, error) {
	timeoutSeconds := int(cfg.Payment.GatewayTimeout / time.Second)
	transport := &telemetry.HTTPTransport{}

	switch cfg.Payment.Gateway {
	case internal.GatewayStripe:
		return billing.NewStripeProvider(billing.StripeConfig{
			APIKey:         cfg.Payment.Stripe.SecretKey,
			WebhookSecret:  cfg.Payment.Stripe.WebhookSecret,
			ReturnURL:      cfg.BaseURL,
			TimeoutSeconds: timeoutSeconds,
			Transport:      transport,
		})
	default:
		return billing.NewMercadoPagoProvider(billing.MercadoPagoConfig{
			AccessToken:     cfg.Payment.MercadoPago.AccessToken,
			WebhookSecret:   cfg.Payment.MercadoPago.WebhookSecret,
			ReturnURL:       cfg.BaseURL,
			NotificationURL: cfg.BaseURL + "/webhooks/mercadopago",
			BaseURL:         cfg.Payment.MercadoPago.BaseURL,
			TimeoutSeconds:  timeoutSeconds,
			Transport:       transport,
		})
	}
}

func newEmailTaskHandler(cfg *internal.Config, logger *slog.Logger) (*jobs.EmailTaskHandler, error) {
	var sender email.Sender
	if cfg.Email.SMTPHost != "" {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.FromEmail,
			FromName: cfg.Email.FromName,
		}, logger)
	} else {
		sender = email.NewLogSender(logger)
	}

	emailService, err := email.NewService(sender, cfg.Email.FromEmail, cfg.Email.FromName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize email service: %w", err)
	}
	return jobs.NewEmailTaskHandler(emailService, cfg.DashboardURL, logger), nil
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func sentryUser(ctx context.Context) *telemetry.UserInfo {
	user := domain.UserFromContext(ctx)
	if user == nil {
		return nil
	}
	return &telemetry.UserInfo{ID: user.ID.String(), Email: user.Email}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
