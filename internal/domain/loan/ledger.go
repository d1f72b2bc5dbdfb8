package loan

import (
	"fmt"
	"strings"
	"time"

	"loan-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

type PaymentDetails struct {
	Method     string
	Reference  string
	ReceivedBy Operator
	Notes      string
}

// RecordPayment applies amount to one installment and recomputes the loan
// aggregates. Paying off the last open installment completes the loan, even
// from defaulted. Amounts above the installment's remaining balance are rejected.
func (l *Loan) RecordPayment(number int, amount decimal.Decimal, details PaymentDetails, now time.Time) (Installment, error) {
	if err := l.ensureMutable(); err != nil {
		return Installment{}, err
	}

	idx := l.installmentIndex(number)
	if idx < 0 {
		return Installment{}, fmt.Errorf("%w: installment %d does not exist on loan %s",
			apperrors.ErrInstallmentNotFound, number, l.LoanNumber)
	}
	inst := &l.Schedule[idx]
	if inst.Status == InstallmentPaid {
		return Installment{}, fmt.Errorf("%w: installment %d", apperrors.ErrAlreadyPaid, number)
	}

	amount = amount.Round(moneyPlaces)
	if !amount.IsPositive() {
		return Installment{}, fmt.Errorf("%w: amount must be positive", apperrors.ErrInvalidPaymentAmount)
	}
	if amount.GreaterThan(inst.RemainingAmount) {
		return Installment{}, fmt.Errorf("%w: amount %s exceeds remaining balance %s of installment %d",
			apperrors.ErrInvalidPaymentAmount, amount.StringFixed(2), inst.RemainingAmount.StringFixed(2), number)
	}

	inst.PaidAmount = inst.PaidAmount.Add(amount)
	inst.RemainingAmount = decimal.Max(decimal.Zero, inst.TotalAmount.Sub(inst.PaidAmount))
	inst.PaymentMethod = strings.TrimSpace(details.Method)
	inst.PaymentReference = strings.TrimSpace(details.Reference)
	inst.ReceivedBy = operatorRef(details.ReceivedBy)
	if details.Notes != "" {
		inst.Notes = details.Notes
	}
	if inst.RemainingAmount.IsZero() {
		inst.Status = InstallmentPaid
		paidAt := now
		inst.PaidDate = &paidAt
	} else {
		inst.Status = InstallmentPartial
	}

	l.recomputeBalances()
	l.UpdatedAt = now

	l.record(Event{
		Type:              EventPaymentRecorded,
		Operator:          operatorRef(details.ReceivedBy),
		OccurredAt:        now,
		InstallmentNumber: number,
		Amount:            amount,
		InstallmentStatus: inst.Status,
		Method:            inst.PaymentMethod,
		Reference:         inst.PaymentReference,
	})

	applied := *inst
	if l.allPaid() {
		l.transition(StatusCompleted, operatorRef(details.ReceivedBy), now, "")
	}
	return applied, nil
}

func (l *Loan) recomputeBalances() {
	paid := decimal.Zero
	for _, inst := range l.Schedule {
		paid = paid.Add(inst.PaidAmount)
	}
	l.PaidAmount = paid.Round(moneyPlaces)
	l.RemainingAmount = decimal.Max(decimal.Zero, l.TotalAmount.Sub(l.PaidAmount))
}

func (l *Loan) allPaid() bool {
	if len(l.Schedule) == 0 {
		return false
	}
	for _, inst := range l.Schedule {
		if inst.Status != InstallmentPaid {
			return false
		}
	}
	return true
}
