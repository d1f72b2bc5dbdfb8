package loan

import (
	"fmt"

	"loan-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

// GenerateSchedule splits the loan into TermMonths level installments due one
// month apart from StartDate. The last installment absorbs rounding leftovers
// so the schedule sums exactly to the loan totals. When the loan is too small
// to give every month a cent, trailing installments come out as zero and are
// created already settled.
func (l *Loan) GenerateSchedule() ([]Installment, error) {
	if l.TermMonths < 1 {
		return nil, fmt.Errorf("%w: invalid loan term for schedule generation", apperrors.ErrInvalidTerm)
	}
	if l.MonthlyPayment.IsNegative() {
		return nil, fmt.Errorf("%w: invalid loan terms for schedule generation", apperrors.ErrInvalidArgument)
	}

	term := decimal.NewFromInt(int64(l.TermMonths))
	principalPart := l.LoanAmount.Div(term).Round(moneyPlaces)
	interestPart := l.MonthlyPayment.Sub(principalPart)

	schedule := make([]Installment, 0, l.TermMonths)
	accPrincipal, accInterest := decimal.Zero, decimal.Zero

	for n := 1; n <= l.TermMonths; n++ {
		principal := l.LoanAmount.Sub(accPrincipal)
		interest := l.TotalInterest.Sub(accInterest)
		if n < l.TermMonths {
			// Rounded-up parts must not overrun the totals on tiny loans.
			principal = decimal.Max(decimal.Zero, decimal.Min(principalPart, principal))
			interest = decimal.Max(decimal.Zero, decimal.Min(interestPart, interest))
		}
		total := principal.Add(interest)

		status := InstallmentPending
		if total.IsZero() {
			status = InstallmentPaid
		}
		schedule = append(schedule, Installment{
			PaymentNumber:   n,
			DueDate:         l.StartDate.AddDate(0, n, 0),
			PrincipalAmount: principal,
			InterestAmount:  interest,
			TotalAmount:     total,
			PaidAmount:      decimal.Zero,
			RemainingAmount: total,
			Status:          status,
		})
		accPrincipal = accPrincipal.Add(principal)
		accInterest = accInterest.Add(interest)
	}

	scheduled := decimal.Zero
	for _, inst := range schedule {
		if inst.TotalAmount.IsNegative() {
			return nil, fmt.Errorf("%w: schedule generation produced a negative installment %d",
				apperrors.ErrInternalServer, inst.PaymentNumber)
		}
		scheduled = scheduled.Add(inst.TotalAmount)
	}
	if !scheduled.Equal(l.TotalAmount) {
		return nil, fmt.Errorf("%w: schedule generation failed sanity check - total payment %s != expected total %s",
			apperrors.ErrInternalServer, scheduled.StringFixed(2), l.TotalAmount.StringFixed(2))
	}

	return schedule, nil
}
