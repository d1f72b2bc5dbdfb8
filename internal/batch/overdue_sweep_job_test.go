package batch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"loan-engine/internal/batch"
	"loan-engine/internal/domain/customer"
	"loan-engine/internal/domain/loan"
	"loan-engine/internal/event"
	"loan-engine/internal/infrastructure/database/memory"
	"loan-engine/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLoanLister struct {
	mock.Mock
}

func (m *MockLoanLister) ListOpenLoanIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if ids, ok := args.Get(0).([]uuid.UUID); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockLoanRefresher struct {
	mock.Mock
}

func (m *MockLoanRefresher) RefreshLoan(ctx context.Context, id uuid.UUID) (loan.RefreshResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(loan.RefreshResult), args.Error(1)
}

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOverdueSweepJob_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("counts outcomes across loans", func(t *testing.T) {
		lister, refresher := new(MockLoanLister), new(MockLoanRefresher)
		a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
		lister.On("ListOpenLoanIDs", mock.Anything).Return([]uuid.UUID{a, b, c, d}, nil)
		refresher.On("RefreshLoan", mock.Anything, a).Return(loan.RefreshResult{Changed: true, Defaulted: true, OverdueCount: 1}, nil)
		refresher.On("RefreshLoan", mock.Anything, b).Return(loan.RefreshResult{Changed: true, OverdueCount: 2}, nil)
		refresher.On("RefreshLoan", mock.Anything, c).Return(loan.RefreshResult{}, nil)
		refresher.On("RefreshLoan", mock.Anything, d).Return(loan.RefreshResult{}, apperrors.ErrNotFound)

		summary, err := batch.NewOverdueSweepJob(lister, refresher, 2, logger).Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, batch.SweepSummary{Total: 4, Processed: 3, Changed: 2, Defaulted: 1}, summary)
		refresher.AssertNumberOfCalls(t, "RefreshLoan", 4)
	})

	t.Run("reports refresh failures", func(t *testing.T) {
		lister, refresher := new(MockLoanLister), new(MockLoanRefresher)
		id := uuid.New()
		lister.On("ListOpenLoanIDs", mock.Anything).Return([]uuid.UUID{id}, nil)
		refresher.On("RefreshLoan", mock.Anything, id).Return(loan.RefreshResult{}, errors.New("db down"))

		summary, err := batch.NewOverdueSweepJob(lister, refresher, 0, logger).Run(ctx)

		assert.EqualError(t, err, "job completed with 1 errors")
		assert.Equal(t, 1, summary.Errors)
	})

	t.Run("aborts when open loans cannot be listed", func(t *testing.T) {
		lister, refresher := new(MockLoanLister), new(MockLoanRefresher)
		lister.On("ListOpenLoanIDs", mock.Anything).Return(nil, errors.New("timeout"))

		_, err := batch.NewOverdueSweepJob(lister, refresher, 1, logger).Run(ctx)

		assert.ErrorContains(t, err, "failed to get open loans")
		refresher.AssertNotCalled(t, "RefreshLoan", mock.Anything, mock.Anything)
	})

	t.Run("does nothing without open loans", func(t *testing.T) {
		lister, refresher := new(MockLoanLister), new(MockLoanRefresher)
		lister.On("ListOpenLoanIDs", mock.Anything).Return([]uuid.UUID{}, nil)

		summary, err := batch.NewOverdueSweepJob(lister, refresher, 1, logger).Run(ctx)

		require.NoError(t, err)
		assert.Zero(t, summary.Total)
	})
}

func TestOverdueSweepJob_DefaultsUnreadLoans(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	now := start

	repo := memory.NewLoanRepository()
	customers := memory.NewCustomerRepository()
	cust := customers.Save(customer.NewCustomer("Ana Ruiz", "", "", 700))
	svc := loan.NewLoanService(repo, memory.NewCounter(), customer.NewCustomerService(customers, logger),
		event.NewLogPublisher(logger),
		loan.ServiceConfig{MinCreditScore: 500, DefaultLateFeePercentage: decimal.NewFromInt(5), MaxWriteRetries: 3},
		logger, loan.WithClock(func() time.Time { return now }))

	l, err := svc.CreateLoan(ctx, loan.CreateLoanInput{
		CustomerID:   cust.CustomerID,
		LoanAmount:   decimal.NewFromInt(12000),
		InterestRate: decimal.NewFromInt(2),
		TermMonths:   12,
	})
	require.NoError(t, err)

	now = start.AddDate(0, 1, 5)
	summary, err := batch.NewOverdueSweepJob(repo, svc, 4, logger).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Defaulted)

	stored, err := repo.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusDefaulted, stored.Status)
	assert.True(t, stored.TotalLateFees.Equal(decimal.NewFromInt(62)), stored.TotalLateFees.String())

	summary, err = batch.NewOverdueSweepJob(repo, svc, 4, logger).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, batch.SweepSummary{Total: 1, Processed: 1}, summary)
}
