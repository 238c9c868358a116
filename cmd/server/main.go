package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	_ "github.com/jackc/pgx/v5/stdlib"

	apikeymetrics "keystone/internal/apikey/metrics"
	apikeymodels "keystone/internal/apikey/models"
	apikeyservice "keystone/internal/apikey/service"
	"keystone/internal/eventstore"
	otpmetrics "keystone/internal/otp/metrics"
	otpmodels "keystone/internal/otp/models"
	otpservice "keystone/internal/otp/service"
	passwordservice "keystone/internal/password/service"
	"keystone/internal/platform/audit"
	"keystone/internal/platform/config"
	"keystone/internal/platform/kafka/producer"
	"keystone/internal/platform/logger"
	sessionmetrics "keystone/internal/session/metrics"
	sessionmodels "keystone/internal/session/models"
	sessionservice "keystone/internal/session/service"
	"keystone/internal/tenantcrypt"
	"keystone/internal/token"
	httptransport "keystone/internal/transport/http"
	"keystone/pkg/secrets"
)

// main wires dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(slog.LevelInfo)

	registry, err := secrets.NewRegistry(cfg.DefaultStrategy,
		secrets.NewPBKDF2Strategy(secrets.DefaultPBKDF2Iterations),
		secrets.NewBcryptStrategy(0),
		secrets.NewPlainStrategy(),
	)
	if err != nil {
		log.Error("could not build strategy registry", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := newEventStore(ctx, cfg, log)
	if err != nil {
		log.Error("could not open event store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	publisher, closePublisher := newAuditPublisher(cfg, log)
	defer closePublisher()

	otpRepo := eventstore.NewRepository(store, otpmodels.DecodeEvent, otpmodels.Blank)
	apiKeyRepo := eventstore.NewRepository(store, apikeymodels.DecodeEvent, apikeymodels.Blank)
	sessionRepo := eventstore.NewRepository(store, sessionmodels.DecodeEvent, sessionmodels.Blank)

	otpSvc := otpservice.New(otpRepo, registry,
		otpservice.WithLogger(log),
		otpservice.WithMetrics(otpmetrics.New()),
		otpservice.WithAuditPublisher(publisher),
		otpservice.WithIssuancePolicy(cfg.OTPLength, cfg.OTPTTL, cfg.OTPMaxAttempts),
	)
	apiKeySvc := apikeyservice.New(apiKeyRepo, registry,
		apikeyservice.WithLogger(log),
		apikeyservice.WithMetrics(apikeymetrics.New()),
		apikeyservice.WithAuditPublisher(publisher),
	)
	sessionSvc := sessionservice.New(sessionRepo, registry,
		sessionservice.WithLogger(log),
		sessionservice.WithMetrics(sessionmetrics.New()),
		sessionservice.WithAuditPublisher(publisher),
	)

	masterKey, err := cfg.MasterKey()
	if err != nil {
		log.Error("invalid master key", "error", err)
		os.Exit(1)
	}
	encryptor, err := tenantcrypt.New(masterKey)
	if err != nil {
		log.Error("could not build tenant encryptor", "error", err)
		os.Exit(1)
	}

	blacklist := newBlacklist(cfg, log)
	issuer := token.NewIssuer(token.NewManager(blacklist), encryptor, cfg.TokenIssuer, cfg.TokenTTL)
	passwordSvc := passwordservice.New(registry, cfg.PasswordPolicy, passwordservice.WithLogger(log))

	handler := httptransport.NewHandler(otpSvc, apiKeySvc, sessionSvc, issuer, passwordSvc, log)
	router := httptransport.NewRouter(handler, log)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// newEventStore selects Postgres when a DSN is configured and falls
// back to the in-memory store otherwise.
func newEventStore(ctx context.Context, cfg config.Config, log *slog.Logger) (eventstore.Store, func(), error) {
	if cfg.PostgresDSN == "" {
		log.Warn("no postgres dsn configured, using in-memory event store")
		return eventstore.NewInMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	store := eventstore.NewPostgres(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, func() { _ = db.Close() }, nil
}

// newAuditPublisher streams committed events to Kafka when brokers are
// configured, otherwise discards them.
func newAuditPublisher(cfg config.Config, log *slog.Logger) (*audit.Publisher, func()) {
	var sink audit.Sink = audit.NoopSink{}
	closeSink := func() {}

	if cfg.KafkaBrokers != "" {
		p, err := producer.New(producer.Config{Brokers: cfg.KafkaBrokers, Retries: 3}, log)
		if err != nil {
			log.Warn("kafka unavailable, audit streaming disabled", "error", err)
		} else {
			sink = audit.NewKafkaSink(p, cfg.EventTopic)
			closeSink = func() { _ = p.Close() }
		}
	}

	publisher := audit.NewPublisher(sink,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	return publisher, func() {
		publisher.Close()
		closeSink()
	}
}

// newBlacklist backs single-use token semantics with redis when
// configured, otherwise with the in-process map.
func newBlacklist(cfg config.Config, log *slog.Logger) token.Blacklist {
	if cfg.RedisAddr == "" {
		log.Warn("no redis addr configured, using in-memory token blacklist")
		return token.NewInMemoryBlacklist()
	}
	return token.NewRedisBlacklist(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
}
