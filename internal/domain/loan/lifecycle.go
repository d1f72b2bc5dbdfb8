package loan

import (
	"fmt"
	"strings"
	"time"

	"loan-engine/internal/pkg/apperrors"
)

// Disburse records who released the funds, when and how. It can happen once.
func (l *Loan) Disburse(by Operator, method string, now time.Time) error {
	if l.Disbursement != nil {
		return fmt.Errorf("%w: loan %s was disbursed on %s", apperrors.ErrDuplicateDisbursement,
			l.LoanNumber, l.Disbursement.DisbursedAt.Format(time.DateOnly))
	}
	if err := l.ensureMutable(); err != nil {
		return err
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return apperrors.NewValidationError("method", "disbursement method is required")
	}

	l.Disbursement = &Disbursement{
		DisbursedBy: by,
		DisbursedAt: now,
		Method:      method,
	}
	l.UpdatedAt = now
	l.record(Event{
		Type:       EventLoanDisbursed,
		Operator:   operatorRef(by),
		OccurredAt: now,
		Amount:     l.LoanAmount,
		Method:     method,
	})
	return nil
}

// Cancel moves an active or defaulted loan to cancelled. The loan and its
// schedule are kept as the financial record.
func (l *Loan) Cancel(reason string, by Operator, now time.Time) error {
	if err := l.ensureMutable(); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperrors.NewValidationError("reason", "cancellation reason is required")
	}

	l.CancellationReason = reason
	l.UpdatedAt = now
	l.transition(StatusCancelled, operatorRef(by), now, reason)
	return nil
}

func (l *Loan) ensureMutable() error {
	switch l.Status {
	case StatusCompleted:
		return fmt.Errorf("%w: loan %s", apperrors.ErrAlreadyCompleted, l.LoanNumber)
	case StatusCancelled:
		return fmt.Errorf("%w: loan %s", apperrors.ErrLoanCancelled, l.LoanNumber)
	}
	return nil
}

// transition is the single place the top-level status changes.
func (l *Loan) transition(to LoanStatus, by *Operator, now time.Time, reason string) {
	if l.Status == to {
		return
	}
	l.Status = to

	var typ EventType
	switch to {
	case StatusCompleted:
		typ = EventLoanCompleted
	case StatusDefaulted:
		typ = EventLoanDefaulted
	case StatusCancelled:
		typ = EventLoanCancelled
	default:
		return
	}
	l.record(Event{
		Type:       typ,
		Operator:   by,
		OccurredAt: now,
		Reason:     reason,
	})
}
