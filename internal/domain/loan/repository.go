package loan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ListFilter struct {
	Status *LoanStatus
	// Statuses matches any of the listed statuses. Repositories apply it in
	// addition to Status.
	Statuses   []LoanStatus
	CustomerID *int64
	StartFrom  *time.Time
	StartTo    *time.Time
	Limit      int
	Offset     int
}

// Repository persists the loan aggregate as a whole, schedule included.
//
// Update is optimistic: it succeeds only if the stored version still equals
// l.Version, increments l.Version on success and returns apperrors.ErrConflict
// otherwise.
type Repository interface {
	Create(ctx context.Context, l *Loan) error

	GetByID(ctx context.Context, id uuid.UUID) (*Loan, error)

	List(ctx context.Context, filter ListFilter) ([]*Loan, error)

	Update(ctx context.Context, l *Loan) error

	ListOpenLoanIDs(ctx context.Context) ([]uuid.UUID, error)
}

// NumberSequence hands out gap-tolerant, strictly increasing values per key.
type NumberSequence interface {
	Next(ctx context.Context, key string) (int64, error)
}

// NumberPeriod is the calendar month a loan number belongs to.
func NumberPeriod(t time.Time) string {
	return t.Format("200601")
}

// FormatLoanNumber renders PREFIX-YYYYMM-NNNN.
func FormatLoanNumber(prefix string, t time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, NumberPeriod(t), seq)
}
