package loan

import (
	"testing"
	"time"

	"loan-engine/internal/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	t.Run("should apply simple interest on the full principal", func(t *testing.T) {
		terms, err := Calculate(dec("12000"), dec("2"), 12)
		require.NoError(t, err)
		assertMoney(t, "2880", terms.TotalInterest)
		assertMoney(t, "14880", terms.TotalAmount)
		assertMoney(t, "1240", terms.MonthlyPayment)
	})

	t.Run("should round monthly payment to cents", func(t *testing.T) {
		terms, err := Calculate(dec("1000"), dec("1.5"), 7)
		require.NoError(t, err)
		assertMoney(t, "105", terms.TotalInterest)
		assertMoney(t, "1105", terms.TotalAmount)
		assertMoney(t, "157.86", terms.MonthlyPayment)
	})

	t.Run("should allow a zero rate", func(t *testing.T) {
		terms, err := Calculate(dec("900"), dec("0"), 3)
		require.NoError(t, err)
		assert.True(t, terms.TotalInterest.IsZero())
		assertMoney(t, "300", terms.MonthlyPayment)
	})

	t.Run("should reject a term below one month", func(t *testing.T) {
		_, err := Calculate(dec("1000"), dec("2"), 0)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTerm)
	})

	t.Run("should reject non-positive principal and negative rate", func(t *testing.T) {
		_, err := Calculate(dec("0"), dec("2"), 12)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

		_, err = Calculate(dec("1000"), dec("-1"), 12)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})
}

func TestNewLoan(t *testing.T) {
	t.Run("should originate an active loan with its schedule", func(t *testing.T) {
		l, err := NewLoan(NewLoanParams{
			LoanNumber:        "PREST-202401-0001",
			Customer:          CustomerSnapshot{ID: 42, Name: "Ana Ruiz"},
			LoanAmount:        dec("12000"),
			InterestRate:      dec("2"),
			TermMonths:        12,
			StartDate:         testStart,
			LateFeePercentage: dec("5"),
			CreatedBy:         teller,
		}, testStart)
		require.NoError(t, err)

		assert.Equal(t, StatusActive, l.Status)
		assert.Len(t, l.Schedule, 12)
		assertMoney(t, "14880", l.RemainingAmount)
		assert.True(t, l.PaidAmount.IsZero())
		assert.Equal(t, testStart.AddDate(0, 12, 0), l.EndDate)
		assert.Equal(t, []EventType{EventLoanCreated}, eventTypes(l.PullEvents()))
		assert.Empty(t, l.PullEvents())
	})

	t.Run("should default the start date to the creation day", func(t *testing.T) {
		now := testStart.Add(15 * time.Hour)
		l, err := NewLoan(NewLoanParams{LoanAmount: dec("100"), InterestRate: dec("1"), TermMonths: 1}, now)
		require.NoError(t, err)
		assert.Equal(t, testStart, l.StartDate)
	})

	t.Run("should reject invalid inputs", func(t *testing.T) {
		_, err := NewLoan(NewLoanParams{LoanAmount: dec("-1"), InterestRate: dec("1"), TermMonths: 1}, testStart)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

		_, err = NewLoan(NewLoanParams{LoanAmount: dec("100"), InterestRate: dec("1"), TermMonths: 0}, testStart)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTerm)

		_, err = NewLoan(NewLoanParams{LoanAmount: dec("100"), InterestRate: dec("1"), TermMonths: 2, LateFeePercentage: dec("-5")}, testStart)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})
}
