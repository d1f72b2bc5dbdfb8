package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

type CustomerService interface {
	GetCustomer(ctx context.Context, customerID int64) (*Customer, error)
}

var _ CustomerService = (*customerService)(nil)

type customerService struct {
	repo   CustomerRepository
	logger *slog.Logger
}

func NewCustomerService(repo CustomerRepository, logger *slog.Logger) CustomerService {
	if repo == nil {
		panic("customer repository cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewCustomerService, using default stderr handler")
	}
	return &customerService{
		repo:   repo,
		logger: logger.With(slog.String("component", "customerService")),
	}
}

func (s *customerService) GetCustomer(ctx context.Context, customerID int64) (*Customer, error) {
	logger := s.logger.With(slog.Int64("customerID", customerID))
	if customerID <= 0 {
		logger.WarnContext(ctx, "Validation failed: customer ID must be positive")
		return nil, fmt.Errorf("%w: invalid customer ID %d", ErrNotFound, customerID)
	}

	cust, err := s.repo.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.WarnContext(ctx, "Customer not found by repository")
			return nil, ErrNotFound
		}
		logger.ErrorContext(ctx, "Repository error finding customer", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get customer %d: %w", customerID, err)
	}

	logger.DebugContext(ctx, "Successfully retrieved customer")
	return cust, nil
}
