package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"loan-engine/internal/batch"
	"loan-engine/internal/config"
	"loan-engine/internal/domain/loan"
	"loan-engine/internal/infrastructure/database/memory"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func memoryConfig() *config.Config {
	return &config.Config{
		Storage:   config.StorageConfig{Driver: "memory"},
		Numbering: config.NumberingConfig{Backend: "memory"},
		Loan: config.LoanConfig{
			NumberPrefix:             "PREST",
			MinCreditScore:           500,
			DefaultLateFeePercentage: "5",
			MaxWriteRetries:          3,
		},
	}
}

func TestInitializeServices(t *testing.T) {
	t.Run("wires an in-memory engine", func(t *testing.T) {
		infra, err := initializeInfrastructure(memoryConfig(), testLogger)
		require.NoError(t, err)
		assert.Nil(t, infra.dbPool)
		assert.Nil(t, infra.redisClient)
		assert.Nil(t, infra.rabbitConn)

		eng, err := initializeServices(memoryConfig(), infra, testLogger)
		require.NoError(t, err)

		l, err := eng.loanService.CreateLoan(context.Background(), loan.CreateLoanInput{
			CustomerID:   1,
			LoanAmount:   decimal.NewFromInt(1000),
			InterestRate: decimal.NewFromInt(2),
			TermMonths:   10,
		})
		require.NoError(t, err)
		assert.Regexp(t, `^PREST-\d{6}-0001$`, l.LoanNumber)
		assert.True(t, l.LateFeePercentage.Equal(decimal.NewFromInt(5)))

		ids, err := eng.loanRepo.ListOpenLoanIDs(context.Background())
		require.NoError(t, err)
		assert.Len(t, ids, 1)
	})

	t.Run("rejects unknown backends", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Storage.Driver = "mongo"
		_, err := initializeServices(cfg, &infrastructure{}, testLogger)
		assert.ErrorContains(t, err, "unknown storage driver")

		cfg = memoryConfig()
		cfg.Numbering.Backend = "etcd"
		_, err = initializeServices(cfg, &infrastructure{}, testLogger)
		assert.ErrorContains(t, err, "unknown numbering backend")
	})

	t.Run("requires the connections its backends use", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Numbering.Backend = "redis"
		_, err := initializeServices(cfg, &infrastructure{}, testLogger)
		assert.ErrorContains(t, err, "redis numbering requires")

		cfg = memoryConfig()
		cfg.Storage.Driver = "postgres"
		_, err = initializeServices(cfg, &infrastructure{}, testLogger)
		assert.ErrorContains(t, err, "postgres storage requires")
	})

	t.Run("rejects a malformed late fee", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Loan.DefaultLateFeePercentage = "five"
		_, err := initializeServices(cfg, &infrastructure{}, testLogger)
		assert.ErrorContains(t, err, "defaultLateFeePercentage")
	})
}

func TestRabbitMQURI(t *testing.T) {
	uri, err := rabbitMQURI(config.RabbitMQConfig{Host: "mq", Port: 5673, Username: "guest", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "amqp://guest:secret@mq:5673/", uri)

	uri, err = rabbitMQURI(config.RabbitMQConfig{Host: "mq"})
	require.NoError(t, err)
	assert.Equal(t, "amqp://mq:5672/", uri)

	_, err = rabbitMQURI(config.RabbitMQConfig{Host: "mq", Username: "guest"})
	assert.Error(t, err)

	_, err = rabbitMQURI(config.RabbitMQConfig{})
	assert.Error(t, err)
}

func TestStartBatchJobs(t *testing.T) {
	job := batch.NewOverdueSweepJob(memory.NewLoanRepository(), nopRefresher{}, 1, testLogger)

	t.Run("schedules nothing when disabled", func(t *testing.T) {
		c := startBatchJobs(config.OverdueSweepConfig{Enabled: false}, testLogger, job)
		defer c.Stop()
		assert.Empty(t, c.Entries())
	})

	t.Run("schedules the sweep when enabled", func(t *testing.T) {
		c := startBatchJobs(config.OverdueSweepConfig{Enabled: true, Schedule: "*/5 * * * *"}, testLogger, job)
		defer c.Stop()
		assert.Len(t, c.Entries(), 1)
	})

	t.Run("survives an invalid schedule", func(t *testing.T) {
		c := startBatchJobs(config.OverdueSweepConfig{Enabled: true, Schedule: "not a cron"}, testLogger, job)
		defer c.Stop()
		assert.Empty(t, c.Entries())
	})
}

type nopRefresher struct{}

func (nopRefresher) RefreshLoan(context.Context, uuid.UUID) (loan.RefreshResult, error) {
	return loan.RefreshResult{}, nil
}

func TestStartServerAndShutdown(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:         0,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  5 * time.Second,
		},
	}

	srv, serverErrors, shutdownChan := startServer(cfg, http.NewServeMux(), testLogger)
	assert.NotNil(t, srv)
	assert.NotNil(t, serverErrors)
	assert.NotNil(t, shutdownChan)

	signals := make(chan os.Signal, 1)
	signals <- syscall.SIGTERM
	handleShutdown(srv, cron.New(), &infrastructure{}, signals, serverErrors, testLogger)
}
