package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/carriage/carriage-api/internal/config"
	"github.com/carriage/carriage-api/internal/email"
	driverHandler "github.com/carriage/carriage-api/internal/handler/driver"
	"github.com/carriage/carriage-api/internal/handler/health"
	"github.com/carriage/carriage-api/internal/handler/prometheus"
	rideHandler "github.com/carriage/carriage-api/internal/handler/ride"
	subscriptionHandler "github.com/carriage/carriage-api/internal/handler/subscription"
	"github.com/carriage/carriage-api/internal/repository/cache"
	"github.com/carriage/carriage-api/internal/repository/postgres"
	redisrepo "github.com/carriage/carriage-api/internal/repository/redis"
	"github.com/carriage/carriage-api/internal/router"
	"github.com/carriage/carriage-api/internal/service/mail"
	"github.com/carriage/carriage-api/internal/service/notification"
	"github.com/carriage/carriage-api/internal/service/recurring"
	rideService "github.com/carriage/carriage-api/internal/service/ride"
	subscriptionService "github.com/carriage/carriage-api/internal/service/subscription"
	recurringWorker "github.com/carriage/carriage-api/internal/worker"
	"github.com/carriage/carriage-api/pkg/auth"
	"github.com/carriage/carriage-api/pkg/circuitbreaker"
	"github.com/carriage/carriage-api/pkg/logger"
	"github.com/carriage/carriage-api/pkg/metrics"
	"github.com/carriage/carriage-api/pkg/push"
	"github.com/carriage/carriage-api/pkg/validator"
	"github.com/carriage/carriage-api/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "directory containing config.yml")
	flag.Parse()

	var paths []string
	if *configPath != "" {
		paths = append(paths, *configPath)
	}
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log).WithFields(map[string]interface{}{"service": "carriage-api"})
	if err := run(cfg, log); err != nil {
		log.Fatal(err, "carriage api stopped")
	}
}

func newLogger(cfg config.LogConfig) *logger.Logger {
	level := logger.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = logger.DebugLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	}
	return logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Console,
	})
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx := context.Background()
	m := metrics.NewMetrics("carriage")

	loc, err := time.LoadLocation(cfg.Recurring.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	// Storage
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	rdb, err := redisrepo.NewClient(ctx, redisrepo.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	base := postgres.NewBaseRepository(db, m)
	rideRepo := postgres.NewRideRepository(base)
	driverRepo := postgres.NewDriverRepository(base)
	riderDir := cache.NewRiderDirectory(postgres.NewRiderRepository(base), cache.DefaultConfig())
	subRepo := redisrepo.NewSubscriptionRepository(rdb, cfg.Redis.KeyPrefix)

	// Outbound transports
	var sender email.Sender
	if cfg.SMTP.Enabled {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		log.Warn("smtp disabled, emails will only be logged")
		sender = email.NewLogSender(log)
	}

	webPush := push.NewWebPush(push.WebPushConfig{
		Subscriber:      cfg.Push.Subscriber,
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		TTL:             cfg.Push.TTL,
		HTTPClient:      &http.Client{Timeout: cfg.Push.Timeout},
	})

	var (
		mobile    notification.Transport
		registrar subscriptionService.Registrar
	)
	if cfg.SNS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SNS.Region))
		if err != nil {
			return fmt.Errorf("failed to load aws config: %w", err)
		}
		breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "sns",
			MaxFailures: cfg.SNS.BreakerMaxFailures,
			Timeout:     cfg.SNS.BreakerTimeout,
			IsFailure:   func(err error) bool { return !push.IsGone(err) },
		})
		snsPush := push.NewSNS(sns.NewFromConfig(awsCfg), push.SNSConfig{
			AndroidPlatformARN: cfg.SNS.AndroidPlatformARN,
			IOSPlatformARN:     cfg.SNS.IOSPlatformARN,
		}, breaker)
		mobile = notification.NewMobileTransport(snsPush)
		registrar = snsPush
	}

	// Services
	dispatcher := notification.NewDispatcher(subRepo, notification.NewWebTransport(webPush), mobile, log, m)
	notifier := notification.NewService(dispatcher, log)
	mailer := mail.NewEngine(riderDir, sender, log, m)
	tasks := worker.NewGroup(worker.GroupConfig{Timeout: cfg.Worker.TaskTimeout}, log, m)

	rides := rideService.NewService(rideRepo, driverRepo, notifier, mailer, tasks, log, rideService.WithLocation(loc))
	subs := subscriptionService.NewService(subRepo, registrar, log)

	var sweeper *recurringWorker.RecurringWorker
	if cfg.Recurring.Enabled {
		materializer := recurring.NewMaterializer(rideRepo, rides, recurring.Config{
			Location:    loc,
			Concurrency: cfg.Recurring.Concurrency,
		}, log, m)
		sweeper = recurringWorker.NewRecurringWorker(materializer, recurringWorker.RecurringConfig{
			Schedule: cfg.Recurring.Schedule,
			Location: loc,
		}, log)
		if err := sweeper.Start(); err != nil {
			return err
		}
	}

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	v := validator.New()
	healthH := health.NewHandler(map[string]health.Checker{
		"database": db.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	r := router.NewRouter(
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
		},
		log, m,
		auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer),
		healthH,
		prometheus.New(nil),
		rideHandler.NewHandler(rides, v),
		driverHandler.NewHandler(rides),
		subscriptionHandler.NewHandler(subs, v),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}
	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			log.Error(err, "recurring worker did not stop in time")
		}
	}
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "background tasks did not finish in time")
	}

	log.Info("server exited properly")
	return nil
}
