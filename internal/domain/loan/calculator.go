package loan

import (
	"fmt"

	"loan-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

type Terms struct {
	TotalInterest  decimal.Decimal
	TotalAmount    decimal.Decimal
	MonthlyPayment decimal.Decimal
}

// Calculate applies simple interest: principal × rate/100 × term, charged once
// on the original principal. Results are rounded to cents.
func Calculate(principal, periodicRatePercent decimal.Decimal, termMonths int) (Terms, error) {
	if termMonths < 1 {
		return Terms{}, fmt.Errorf("%w: term must be at least one month, got %d", apperrors.ErrInvalidTerm, termMonths)
	}
	if principal.LessThanOrEqual(decimal.Zero) {
		return Terms{}, fmt.Errorf("%w: principal must be positive", apperrors.ErrInvalidArgument)
	}
	if periodicRatePercent.IsNegative() {
		return Terms{}, fmt.Errorf("%w: interest rate cannot be negative", apperrors.ErrInvalidArgument)
	}

	term := decimal.NewFromInt(int64(termMonths))
	totalInterest := principal.Mul(periodicRatePercent).Div(hundred).Mul(term).Round(moneyPlaces)
	totalAmount := principal.Add(totalInterest).Round(moneyPlaces)

	return Terms{
		TotalInterest:  totalInterest,
		TotalAmount:    totalAmount,
		MonthlyPayment: totalAmount.Div(term).Round(moneyPlaces),
	}, nil
}
