package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"loan-engine/internal/domain/loan"
	"loan-engine/internal/pkg/apperrors"

	"github.com/google/uuid"
)

// LoanRepository keeps loans in process memory. Stored and returned loans are
// clones, so callers never alias the stored schedule.
type LoanRepository struct {
	mu       sync.RWMutex
	loans    map[uuid.UUID]*loan.Loan
	byNumber map[string]uuid.UUID
}

var _ loan.Repository = (*LoanRepository)(nil)

func NewLoanRepository() *LoanRepository {
	return &LoanRepository{
		loans:    make(map[uuid.UUID]*loan.Loan),
		byNumber: make(map[string]uuid.UUID),
	}
}

func (r *LoanRepository) Create(ctx context.Context, l *loan.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.loans[l.ID]; ok {
		return fmt.Errorf("%w: loan %s", apperrors.ErrAlreadyExists, l.ID)
	}
	if _, ok := r.byNumber[l.LoanNumber]; ok {
		return fmt.Errorf("%w: loan number %s", apperrors.ErrAlreadyExists, l.LoanNumber)
	}
	l.Version = 1
	r.loans[l.ID] = l.Clone()
	r.byNumber[l.LoanNumber] = l.ID
	return nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.loans[id]
	if !ok {
		return nil, fmt.Errorf("%w: loan %s", apperrors.ErrNotFound, id)
	}
	return l.Clone(), nil
}

func (r *LoanRepository) List(ctx context.Context, filter loan.ListFilter) ([]*loan.Loan, error) {
	r.mu.RLock()
	matched := make([]*loan.Loan, 0, len(r.loans))
	for _, l := range r.loans {
		if matches(l, filter) {
			matched = append(matched, l.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].LoanNumber > matched[j].LoanNumber
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*loan.Loan{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *LoanRepository) Update(ctx context.Context, l *loan.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.loans[l.ID]
	if !ok {
		return fmt.Errorf("%w: loan %s", apperrors.ErrNotFound, l.ID)
	}
	if stored.Version != l.Version {
		return fmt.Errorf("%w: loan %s is at version %d, update was based on %d",
			apperrors.ErrConflict, l.LoanNumber, stored.Version, l.Version)
	}
	l.Version++
	r.loans[l.ID] = l.Clone()
	return nil
}

func (r *LoanRepository) ListOpenLoanIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.loans))
	for id, l := range r.loans {
		if !l.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func matches(l *loan.Loan, f loan.ListFilter) bool {
	if f.Status != nil && l.Status != *f.Status {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, l.Status) {
		return false
	}
	if f.CustomerID != nil && l.Customer.ID != *f.CustomerID {
		return false
	}
	if f.StartFrom != nil && l.StartDate.Before(*f.StartFrom) {
		return false
	}
	if f.StartTo != nil && l.StartDate.After(*f.StartTo) {
		return false
	}
	return true
}
