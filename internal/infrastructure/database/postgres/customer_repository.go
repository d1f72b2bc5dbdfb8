package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"loan-engine/internal/domain/customer"
	"loan-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

// CustomerRepository reads the customer records owned by the customer
// service. The loan engine never writes them.
type CustomerRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ customer.CustomerRepository = (*CustomerRepository)(nil)

func NewCustomerRepository(db DBPool, logger *slog.Logger) *CustomerRepository {
	if db == nil {
		panic("DBPool cannot be nil for CustomerRepository")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewCustomerRepository, using default stderr handler")
	}
	return &CustomerRepository{
		db:     db,
		logger: logger.With("component", "CustomerRepository"),
	}
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID int64) (*customer.Customer, error) {
	logger := r.logger.With(slog.Int64("customerID", customerID))
	logger.DebugContext(ctx, "Attempting to find customer by ID")

	query := `
        SELECT id, name, phone, address, credit_score, active, created_at, updated_at
        FROM customers
        WHERE id = $1`

	startTime := time.Now()
	var cust customer.Customer
	err := r.db.QueryRow(ctx, query, customerID).Scan(
		&cust.CustomerID,
		&cust.Name,
		&cust.Phone,
		&cust.Address,
		&cust.CreditScore,
		&cust.Active,
		&cust.CreateDate,
		&cust.UpdatedAt,
	)
	recordQuery("FindCustomerByID", err, startTime)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.WarnContext(ctx, "Customer not found")
			return nil, customer.ErrNotFound
		}
		logger.ErrorContext(ctx, "Failed to query/scan customer by ID", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to get customer by ID: %w", apperrors.ErrDatabase, err)
	}

	logger.DebugContext(ctx, "Customer found successfully")
	return &cust, nil
}
