package customer

import (
	"context"
	"fmt"

	"loan-engine/internal/pkg/apperrors"
)

var ErrNotFound = fmt.Errorf("%w: customer not found", apperrors.ErrNotFound)

type CustomerRepository interface {
	FindByID(ctx context.Context, customerID int64) (*Customer, error)
}
