package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"loan-engine/internal/api"
	"loan-engine/internal/api/middleware"
	"loan-engine/internal/batch"
	"loan-engine/internal/config"
	"loan-engine/internal/domain/customer"
	"loan-engine/internal/domain/loan"
	"loan-engine/internal/event"
	"loan-engine/internal/infrastructure/cache/redis"
	"loan-engine/internal/infrastructure/database/memory"
	"loan-engine/internal/infrastructure/database/postgres"
	"loan-engine/internal/infrastructure/logging"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// infrastructure holds the connections opened at startup; any of them may be
// nil when the configuration does not need it.
type infrastructure struct {
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	rabbitConn  *amqp.Connection
}

type engine struct {
	loanService loan.LoanService
	loanRepo    loan.Repository
}

func main() {
	cfg, logger := initializeApp()

	infra, err := initializeInfrastructure(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize infrastructure", "error", err)
		os.Exit(1)
	}

	eng, err := initializeServices(cfg, infra, logger)
	if err != nil {
		logger.Error("Failed to initialize services", "error", err)
		closeInfrastructure(infra, logger)
		os.Exit(1)
	}

	sweepJob := batch.NewOverdueSweepJob(eng.loanRepo, eng.loanService, cfg.Batch.OverdueSweep.Workers, logger)
	cronScheduler := startBatchJobs(cfg.Batch.OverdueSweep, logger, sweepJob)

	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg.Server.RateLimit, logger)
	go rateLimiter.Run(limiterCtx)

	router := api.SetupRouter(eng.loanService, rateLimiter, cfg, logger)

	srv, serverErrors, shutdownChan := startServer(cfg, router, logger)
	handleShutdown(srv, cronScheduler, infra, shutdownChan, serverErrors, logger)
	stopLimiter()
}

func initializeApp() (*config.Config, *slog.Logger) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logger)
	logger.Info("Application starting...", "config_source", viper.ConfigFileUsed())

	return cfg, logger
}

func initializeInfrastructure(cfg *config.Config, logger *slog.Logger) (*infrastructure, error) {
	infra := &infrastructure{}

	if cfg.Storage.Driver != "memory" || cfg.Numbering.Backend == "postgres" {
		logger.Info("Initializing database connection pool...")
		pool, err := postgres.NewConnectionPool(context.Background(), cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		infra.dbPool = pool
	}

	if cfg.Numbering.Backend == "redis" {
		logger.Info("Initializing Redis client...", "addr", cfg.Redis.Addr)
		client, err := redis.NewRedisConnection(cfg.Redis)
		if err != nil {
			closeInfrastructure(infra, logger)
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("Redis client connected successfully.", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		infra.redisClient = client
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := setupRabbitMQ(cfg.RabbitMQ, logger)
		if err != nil {
			closeInfrastructure(infra, logger)
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		infra.rabbitConn = conn
	}

	return infra, nil
}

func initializeServices(cfg *config.Config, infra *infrastructure, logger *slog.Logger) (*engine, error) {
	logger.Info("Initializing application components...",
		"storage", cfg.Storage.Driver, "numbering", cfg.Numbering.Backend, "events", cfg.RabbitMQ.Enabled)

	var (
		loanRepo     loan.Repository
		customerRepo customer.CustomerRepository
	)
	switch cfg.Storage.Driver {
	case "memory":
		customers := memory.NewCustomerRepository()
		seedCustomers(customers, logger)
		loanRepo, customerRepo = memory.NewLoanRepository(), customers
	case "postgres", "":
		if infra.dbPool == nil {
			return nil, errors.New("postgres storage requires a database pool")
		}
		loanRepo = postgres.NewLoanRepository(infra.dbPool, logger)
		customerRepo = postgres.NewCustomerRepository(infra.dbPool, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	var sequence loan.NumberSequence
	switch cfg.Numbering.Backend {
	case "redis":
		if infra.redisClient == nil {
			return nil, errors.New("redis numbering requires a redis client")
		}
		sequence = redis.NewCounter(infra.redisClient, cfg.Redis.Prefix)
	case "postgres", "":
		if infra.dbPool == nil {
			return nil, errors.New("postgres numbering requires a database pool")
		}
		sequence = postgres.NewCounterSequence(infra.dbPool, logger)
	case "memory":
		sequence = memory.NewCounter()
	default:
		return nil, fmt.Errorf("unknown numbering backend %q", cfg.Numbering.Backend)
	}

	var publisher event.EventPublisher = event.NewLogPublisher(logger)
	if infra.rabbitConn != nil {
		p, err := event.NewRabbitMQEventPublisher(infra.rabbitConn, cfg.RabbitMQ.ExchangeName, logger)
		if err != nil {
			return nil, fmt.Errorf("event publisher: %w", err)
		}
		publisher = p
	}

	lateFee := decimal.Zero
	if s := strings.TrimSpace(cfg.Loan.DefaultLateFeePercentage); s != "" {
		var err error
		if lateFee, err = decimal.NewFromString(s); err != nil {
			return nil, fmt.Errorf("loan.defaultLateFeePercentage %q: %w", s, err)
		}
	}

	customerService := customer.NewCustomerService(customerRepo, logger)
	loanService := loan.NewLoanService(loanRepo, sequence, customerService, publisher, loan.ServiceConfig{
		NumberPrefix:             cfg.Loan.NumberPrefix,
		MinCreditScore:           cfg.Loan.MinCreditScore,
		DefaultLateFeePercentage: lateFee,
		MaxWriteRetries:          cfg.Loan.MaxWriteRetries,
	}, logger)

	return &engine{loanService: loanService, loanRepo: loanRepo}, nil
}

// seedCustomers gives the in-memory store something to lend to.
func seedCustomers(repo *memory.CustomerRepository, logger *slog.Logger) {
	for _, c := range []*customer.Customer{
		customer.NewCustomer("Demo Customer", "555-0100", "1 Main St", 700),
		customer.NewCustomer("Low Score Customer", "555-0101", "2 Main St", 450),
	} {
		saved := repo.Save(c)
		logger.Info("Seeded in-memory customer", "customerID", saved.CustomerID, "creditScore", saved.CreditScore)
	}
}

func startServer(cfg *config.Config, router http.Handler, logger *slog.Logger) (*http.Server, <-chan error, <-chan os.Signal) {
	logger.Info("Setting up HTTP server...", "port", cfg.Server.Port)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server listening on port %d", cfg.Server.Port))
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			serverErrors <- err
		} else {
			logger.Info("Server closed gracefully.")
			serverErrors <- nil
		}
	}()
	return srv, serverErrors, shutdownChan
}

func handleShutdown(srv *http.Server, cronScheduler *cron.Cron, infra *infrastructure,
	shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) {
	logger.Info("Shutdown handler started. Waiting for signal or server error...")

	triggerReason := waitForShutdownTrigger(shutdownChan, serverErrors, logger)

	logger.Info("Starting graceful shutdown...", "trigger", triggerReason)

	stopCronScheduler(cronScheduler, logger)
	shutdownHTTPServer(srv, serverErrors, logger)
	closeInfrastructure(infra, logger)

	logger.Info("Application shutdown process complete.")
}

func waitForShutdownTrigger(shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) string {
	select {
	case sig := <-shutdownChan:
		logger.Info("Shutdown signal received.", "signal", sig.String())
		return "signal: " + sig.String()
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server exited unexpectedly before signal", "error", err)
			os.Exit(1)
		}
		logger.Info("Server goroutine finished before signal.", "error", err)
		return "server exited"
	}
}

func stopCronScheduler(cronScheduler *cron.Cron, logger *slog.Logger) {
	logger.Info("Stopping cron scheduler...")
	cronCtx := cronScheduler.Stop()
	select {
	case <-cronCtx.Done():
		logger.Info("Cron scheduler stopped gracefully.")
	case <-time.After(15 * time.Second):
		logger.Warn("Cron scheduler shutdown timed out.")
	}
}

func shutdownHTTPServer(srv *http.Server, serverErrors <-chan error, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server graceful shutdown failed", "error", err)
		}
		if err := srv.Close(); err != nil {
			logger.Error("HTTP server forced close failed", "error", err)
		}
	} else {
		logger.Info("HTTP server gracefully stopped.")
	}

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Server goroutine exited with unexpected error after shutdown", "error", err)
		} else {
			logger.Info("Server goroutine confirmed exit.")
		}
	case <-time.After(5 * time.Second):
		logger.Warn("Timed out waiting for server goroutine confirmation.")
	}
}

func closeInfrastructure(infra *infrastructure, logger *slog.Logger) {
	if infra == nil {
		return
	}
	if infra.rabbitConn != nil && !infra.rabbitConn.IsClosed() {
		logger.Info("Closing RabbitMQ connection...")
		if err := infra.rabbitConn.Close(); err != nil {
			logger.Error("Failed to close RabbitMQ connection gracefully", slog.Any("error", err))
		}
	}
	if infra.redisClient != nil {
		logger.Info("Closing Redis client connection...")
		redis.Close(infra.redisClient)
	}
	if infra.dbPool != nil {
		logger.Info("Closing database connection pool...")
		infra.dbPool.Close()
	}
}

// startBatchJobs schedules the overdue sweep. The returned scheduler is
// always started so shutdown can stop it unconditionally.
func startBatchJobs(cfg config.OverdueSweepConfig, logger *slog.Logger, sweepJob *batch.OverdueSweepJob) *cron.Cron {
	logger.Info("Initializing batch job scheduler...")
	c := cron.New()

	if !cfg.Enabled {
		logger.Info("Overdue sweep is disabled via configuration.")
		c.Start()
		return c
	}

	scheduleSpec := cfg.Schedule
	if scheduleSpec == "" {
		scheduleSpec = "0 2 * * *"
		logger.Warn("Overdue sweep schedule not configured, using default", "schedule", scheduleSpec)
	}
	jobTimeout := cfg.Timeout
	if jobTimeout <= 0 {
		jobTimeout = 1 * time.Hour
	}

	jobID, err := c.AddJob(scheduleSpec, cron.FuncJob(func() {
		jobLogger := logger.With("job_name", "OverdueSweep")
		jobLogger.Info("Cron triggered: Running overdue sweep job.")

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if _, runErr := sweepJob.Run(ctx); runErr != nil {
			jobLogger.Error("Overdue sweep job finished with error", slog.Any("error", runErr))
		}
	}))
	if err != nil {
		logger.Error("Failed to schedule overdue sweep job", "schedule", scheduleSpec, slog.Any("error", err))
	} else {
		logger.Info("Scheduled overdue sweep job", "schedule", scheduleSpec, "job_id", jobID)
	}

	c.Start()
	logger.Info("Cron scheduler started.")
	return c
}

func connectRabbitMQ(uri string, logger *slog.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	retryCount := 5
	for i := 1; i <= retryCount; i++ {
		conn, err = amqp.Dial(uri)
		if err == nil {
			logger.Info("Successfully connected to RabbitMQ")

			go func() {
				blockChan := conn.NotifyBlocked(make(chan amqp.Blocking))
				closeChan := conn.NotifyClose(make(chan *amqp.Error))

				select {
				case b := <-blockChan:
					logger.Warn("RabbitMQ Connection Blocked", "reason", b.Reason)
				case e := <-closeChan:
					if e != nil {
						logger.Error("RabbitMQ Connection Closed", slog.Any("error", e))
					}
				}
			}()

			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ, retrying...",
			slog.Int("attempt", i),
			slog.Int("max_attempts", retryCount),
			slog.Any("error", err),
		)
		time.Sleep(time.Duration(i*2) * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", retryCount, err)
}

func rabbitMQURI(cfg config.RabbitMQConfig) (string, error) {
	if cfg.Host == "" {
		return "", errors.New("RabbitMQ host is not configured")
	}
	port := cfg.Port
	if port == 0 {
		port = 5672
	}
	switch {
	case cfg.Username != "" && cfg.Password != "":
		return fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.Username, cfg.Password, cfg.Host, port), nil
	case cfg.Username != "" || cfg.Password != "":
		return "", errors.New("RabbitMQ username and password must be provided together")
	default:
		return fmt.Sprintf("amqp://%s:%d/", cfg.Host, port), nil
	}
}

func setupRabbitMQ(cfg config.RabbitMQConfig, logger *slog.Logger) (*amqp.Connection, error) {
	uri, err := rabbitMQURI(cfg)
	if err != nil {
		return nil, err
	}
	return connectRabbitMQ(uri, logger)
}
