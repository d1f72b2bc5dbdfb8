package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loan-engine/internal/domain/loan"
	"loan-engine/internal/pkg/apperrors"
)

// CounterSequence hands out loan numbers from the loan_number_counters table.
// The upsert takes a row lock, so concurrent callers are serialized per key.
type CounterSequence struct {
	db     DBPool
	logger *slog.Logger
}

var _ loan.NumberSequence = (*CounterSequence)(nil)

func NewCounterSequence(db DBPool, logger *slog.Logger) *CounterSequence {
	return &CounterSequence{db: db, logger: logger.With("component", "CounterSequence")}
}

func (s *CounterSequence) Next(ctx context.Context, key string) (int64, error) {
	query := `
        INSERT INTO loan_number_counters (counter_key, value)
        VALUES ($1, 1)
        ON CONFLICT (counter_key) DO UPDATE SET value = loan_number_counters.value + 1
        RETURNING value`

	startTime := time.Now()
	var value int64
	err := s.db.QueryRow(ctx, query, key).Scan(&value)
	recordQuery("NextLoanNumber", err, startTime)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to advance loan number counter", "key", key, "error", err)
		return 0, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return value, nil
}
