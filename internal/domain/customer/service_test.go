package customer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"loan-engine/internal/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockCustomerRepository struct {
	mock.Mock
}

func (m *MockCustomerRepository) FindByID(ctx context.Context, customerID int64) (*Customer, error) {
	args := m.Called(ctx, customerID)
	if c, ok := args.Get(0).(*Customer); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestGetCustomer(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the customer", func(t *testing.T) {
		repo := new(MockCustomerRepository)
		svc := NewCustomerService(repo, testLogger)
		want := &Customer{CustomerID: 7, Name: "Ana Ruiz", CreditScore: 640}
		repo.On("FindByID", ctx, int64(7)).Return(want, nil)

		got, err := svc.GetCustomer(ctx, 7)

		assert.NoError(t, err)
		assert.Equal(t, want, got)
		repo.AssertExpectations(t)
	})

	t.Run("maps missing customer to ErrNotFound", func(t *testing.T) {
		repo := new(MockCustomerRepository)
		svc := NewCustomerService(repo, testLogger)
		repo.On("FindByID", ctx, int64(8)).Return(nil, ErrNotFound)

		_, err := svc.GetCustomer(ctx, 8)

		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("wraps repository failures", func(t *testing.T) {
		repo := new(MockCustomerRepository)
		svc := NewCustomerService(repo, testLogger)
		dbErr := errors.New("connection refused")
		repo.On("FindByID", ctx, int64(9)).Return(nil, dbErr)

		_, err := svc.GetCustomer(ctx, 9)

		assert.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejects non-positive IDs without calling the repository", func(t *testing.T) {
		repo := new(MockCustomerRepository)
		svc := NewCustomerService(repo, testLogger)

		_, err := svc.GetCustomer(ctx, 0)

		assert.ErrorIs(t, err, ErrNotFound)
		repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})
}

func TestNewCustomerServicePanicsWithoutRepository(t *testing.T) {
	assert.Panics(t, func() { NewCustomerService(nil, testLogger) })
}

func TestMeetsCreditScore(t *testing.T) {
	c := NewCustomer("Luis Gomez", "555-0101", "Av. Central 12", 500)

	assert.True(t, c.Active)
	assert.True(t, c.MeetsCreditScore(500))
	assert.False(t, c.MeetsCreditScore(501))
}
