package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	httpapi "github.com/shestoi/paybridge/internal/api/http"
	"github.com/shestoi/paybridge/internal/config"
	kafkaevent "github.com/shestoi/paybridge/internal/event/kafka"
	"github.com/shestoi/paybridge/internal/ledger/sheets"
	"github.com/shestoi/paybridge/internal/notify"
	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/provider/oxapay"
	"github.com/shestoi/paybridge/internal/provider/stripe"
	"github.com/shestoi/paybridge/internal/repository"
	"github.com/shestoi/paybridge/internal/repository/memory"
	mongorepo "github.com/shestoi/paybridge/internal/repository/mongo"
	"github.com/shestoi/paybridge/internal/repository/postgres"
	"github.com/shestoi/paybridge/internal/service"
	"github.com/shestoi/paybridge/internal/sweeper"
	"github.com/shestoi/paybridge/internal/telegram"
	platformkafka "github.com/shestoi/paybridge/platform/kafka"
	platformlogging "github.com/shestoi/paybridge/platform/logging"
	platformobservability "github.com/shestoi/paybridge/platform/observability"
	platformshutdown "github.com/shestoi/paybridge/platform/shutdown"
)

// App содержит все зависимости для запуска и корректного shutdown PayBridge
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	shutdownMgr *platformshutdown.Manager
	sweeper     *sweeper.Sweeper
	sweeperCtx  context.Context
	wg          sync.WaitGroup
}

// Build создаёт и связывает все зависимости.
// Шаги остановки регистрируются по мере создания ресурсов, поэтому при ошибке
// уже открытое закрывается через тот же shutdown manager.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "paybridge",
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		return nil, err
	}
	cfg.Log(logger)

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	fail := func(err error) (*App, error) {
		shutdownMgr.Shutdown()
		return nil, err
	}

	otelShutdown, err := platformobservability.Init(ctx, cfg.OTel)
	if err != nil {
		return fail(fmt.Errorf("init telemetry: %w", err))
	}
	shutdownMgr.Add("otel", otelShutdown)

	repo, err := buildStore(ctx, cfg, logger, shutdownMgr)
	if err != nil {
		return fail(err)
	}

	journal, err := buildJournal(ctx, cfg, logger, shutdownMgr)
	if err != nil {
		return fail(err)
	}

	sinks, err := buildSinks(ctx, cfg, logger, shutdownMgr)
	if err != nil {
		return fail(err)
	}
	notifier := notify.New(logger, notify.Config{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   cfg.Notify.Timeout,
	}, sinks...)
	shutdownMgr.Add("notifier", notifier.Close)

	crypto, card := buildGateways(cfg, logger)
	orders := service.NewOrderService(logger, repo, crypto, card, service.OrderConfig{
		DefaultPrice:          cfg.DefaultPrice,
		CryptoDiscountPercent: cfg.CryptoDiscountPercent,
		CallbackURL:           cfg.CallbackURL(),
	})
	reconciler := service.NewReconciler(logger, repo, notifier)
	dispatcher := service.NewDispatcher(logger, reconciler, journal, gatewaysOf(crypto, card)...)

	a := &App{
		logger:      logger,
		shutdownMgr: shutdownMgr,
	}

	if cfg.Sweeper.Enabled() {
		locker, err := buildLocker(ctx, cfg, logger, shutdownMgr)
		if err != nil {
			return fail(err)
		}
		sweeperCtx, cancel := context.WithCancel(context.Background())
		a.sweeper = sweeper.New(logger, repo, reconciler, locker, sweeper.Config{
			Interval: cfg.Sweeper.Interval,
			Grace:    cfg.Sweeper.Grace,
		})
		a.sweeperCtx = sweeperCtx
		shutdownMgr.Add("sweeper", func(context.Context) error {
			cancel()
			return nil
		})
	}

	handler := httpapi.NewHandler(logger, orders, dispatcher, journal)
	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins(),
		Readiness:      repo.Ping,
	}, logger)

	a.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	// останавливается первым: новые уведомления не принимаются, пока закрывается остальное
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(a.httpServer))

	return a, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting PayBridge", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var runErr error
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
			runErr = err
			cancel()
		}
	}()

	if a.sweeper != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.sweeper.Run(a.sweeperCtx)
		}()
	}

	a.shutdownMgr.WaitContext(ctx)

	a.wg.Wait()
	a.logger.Info("PayBridge stopped")
	return runErr
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger, mgr *platformshutdown.Manager) (repository.OrderRepository, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("Using in-memory store, data is lost on restart")
		return memory.NewRepository(), nil
	}

	logger.Info("Applying PostgreSQL migrations")
	if err := postgres.Migrate(ctx, cfg.PostgresDSN); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("Connecting to PostgreSQL")
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	mgr.Add("postgres_pool", platformshutdown.ClosePool(pool))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info("PostgreSQL connection established")

	return postgres.NewRepository(pool), nil
}

func buildJournal(ctx context.Context, cfg config.Config, logger *zap.Logger, mgr *platformshutdown.Manager) (repository.DeliveryJournal, error) {
	if cfg.Journal.MongoURI == "" {
		return memory.NewJournal(0), nil
	}

	logger.Info("Connecting to MongoDB", zap.String("database", cfg.Journal.MongoDatabase))
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Journal.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	mgr.Add("mongo_client", platformshutdown.DisconnectMongo(client))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return mongorepo.NewJournal(client, cfg.Journal.MongoDatabase), nil
}

func buildSinks(ctx context.Context, cfg config.Config, logger *zap.Logger, mgr *platformshutdown.Manager) ([]notify.Sink, error) {
	sinks := []notify.Sink{notify.NewLogSink(logger)}

	if cfg.Kafka.Enabled() {
		publisher := kafkaevent.NewPaidEventPublisher(logger, platformkafka.NewWriter(cfg.Kafka))
		mgr.Add("kafka_writer", platformshutdown.CloseCloser(publisher))
		sinks = append(sinks, publisher)
	}

	if cfg.Notify.TelegramBotToken != "" {
		sender := telegram.NewBotSender(logger, cfg.Notify.TelegramAPIURL, cfg.Notify.TelegramBotToken, cfg.Notify.Timeout)
		sinks = append(sinks, telegram.NewPaidSink(sender, cfg.Notify.TelegramChatID))
	}

	if cfg.Notify.GoogleSheetID != "" {
		ledger, err := sheets.NewLedger(ctx, logger, cfg.Notify.GoogleSheetID,
			option.WithCredentialsFile(cfg.Notify.GoogleCredentialsFile))
		if err != nil {
			return nil, fmt.Errorf("google sheets: %w", err)
		}
		sinks = append(sinks, ledger)
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("Downstream sinks configured", zap.Strings("sinks", names))
	return sinks, nil
}

func buildGateways(cfg config.Config, logger *zap.Logger) (crypto, card payment.Gateway) {
	p := cfg.Providers
	if p.CryptoEnabled() {
		crypto = oxapay.NewClient(logger, oxapay.Config{
			MerchantKey: p.OxaPayMerchantKey,
			APIURL:      p.OxaPayAPIURL,
			Timeout:     p.OxaPayTimeout,
			Lifetime:    p.OxaPayInvoiceLifetime,
		})
	}
	if p.CardEnabled() {
		card = stripe.NewGateway(logger, stripe.Config{
			SecretKey:     p.StripeSecretKey,
			WebhookSecret: p.StripeWebhookSecret,
			FrontendURL:   cfg.FrontendURL,
			ProductName:   p.ProductName,
			Timeout:       p.StripeTimeout,
		})
	}
	return crypto, card
}

// gatewaysOf отбрасывает ненастроенные шлюзы
func gatewaysOf(gws ...payment.Gateway) []payment.Gateway {
	out := make([]payment.Gateway, 0, len(gws))
	for _, g := range gws {
		if g != nil {
			out = append(out, g)
		}
	}
	return out
}

func buildLocker(ctx context.Context, cfg config.Config, logger *zap.Logger, mgr *platformshutdown.Manager) (sweeper.Locker, error) {
	logger.Info("Connecting to Redis", zap.String("addr", cfg.Sweeper.RedisAddr))
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Sweeper.RedisAddr,
		Password: cfg.Sweeper.RedisPassword,
	})
	mgr.Add("redis_client", platformshutdown.CloseCloser(client))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return sweeper.NewRedisLocker(client, ""), nil
}
