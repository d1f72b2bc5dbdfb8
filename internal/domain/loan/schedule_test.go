package loan

import (
	"testing"

	"loan-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchedule(t *testing.T) {
	t.Run("should split the loan into level monthly installments", func(t *testing.T) {
		l := newScenarioLoan(t)

		for i, inst := range l.Schedule {
			assert.Equal(t, i+1, inst.PaymentNumber)
			assert.Equal(t, testStart.AddDate(0, i+1, 0), inst.DueDate)
			assert.Equal(t, InstallmentPending, inst.Status)
			assertMoney(t, "1000", inst.PrincipalAmount, i)
			assertMoney(t, "240", inst.InterestAmount, i)
			assertMoney(t, "1240", inst.TotalAmount, i)
			assertMoney(t, "1240", inst.RemainingAmount, i)
		}
	})

	t.Run("should let the last installment absorb rounding", func(t *testing.T) {
		l, err := NewLoan(NewLoanParams{
			LoanAmount:   dec("1000"),
			InterestRate: dec("1.5"),
			TermMonths:   7,
			StartDate:    testStart,
		}, testStart)
		require.NoError(t, err)

		total, principal, interest := decimal.Zero, decimal.Zero, decimal.Zero
		for _, inst := range l.Schedule[:6] {
			assertMoney(t, "157.86", inst.TotalAmount)
			assertMoney(t, "142.86", inst.PrincipalAmount)
		}
		last := l.Schedule[6]
		assertMoney(t, "142.84", last.PrincipalAmount)
		assertMoney(t, "15", last.InterestAmount)
		assertMoney(t, "157.84", last.TotalAmount)

		for _, inst := range l.Schedule {
			total = total.Add(inst.TotalAmount)
			principal = principal.Add(inst.PrincipalAmount)
			interest = interest.Add(inst.InterestAmount)
		}
		assert.True(t, total.Equal(l.TotalAmount))
		assert.True(t, principal.Equal(l.LoanAmount))
		assert.True(t, interest.Equal(l.TotalInterest))
	})

	t.Run("should keep every installment non-negative on tiny loans", func(t *testing.T) {
		l, err := NewLoan(NewLoanParams{
			LoanAmount:   dec("0.06"),
			InterestRate: decimal.Zero,
			TermMonths:   12,
			StartDate:    testStart,
		}, testStart)
		require.NoError(t, err)
		require.Len(t, l.Schedule, 12)

		total := decimal.Zero
		for i, inst := range l.Schedule {
			assert.False(t, inst.TotalAmount.IsNegative(), "installment %d", i+1)
			total = total.Add(inst.TotalAmount)
		}
		assert.True(t, total.Equal(l.TotalAmount))
		for _, inst := range l.Schedule[:6] {
			assertMoney(t, "0.01", inst.TotalAmount)
			assert.Equal(t, InstallmentPending, inst.Status)
		}
		for _, inst := range l.Schedule[6:] {
			assert.True(t, inst.TotalAmount.IsZero())
			assert.Equal(t, InstallmentPaid, inst.Status)
		}

		for n := 1; n <= 6; n++ {
			_, err := l.RecordPayment(n, dec("0.01"), PaymentDetails{ReceivedBy: teller}, testStart)
			require.NoError(t, err)
		}
		assert.Equal(t, StatusCompleted, l.Status)
	})

	t.Run("should return error for invalid loan terms", func(t *testing.T) {
		_, err := (&Loan{TermMonths: 0}).GenerateSchedule()
		assert.ErrorIs(t, err, apperrors.ErrInvalidTerm)

		_, err = (&Loan{TermMonths: 3, MonthlyPayment: dec("-1")}).GenerateSchedule()
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})

	t.Run("should fail the sanity check when totals disagree", func(t *testing.T) {
		l := &Loan{
			LoanAmount:     dec("300"),
			TotalInterest:  dec("30"),
			TotalAmount:    dec("999"),
			MonthlyPayment: dec("110"),
			TermMonths:     3,
			StartDate:      testStart,
		}
		_, err := l.GenerateSchedule()
		assert.ErrorIs(t, err, apperrors.ErrInternalServer)
	})
}

func TestInstallmentsReturnsCopy(t *testing.T) {
	l := newScenarioLoan(t)

	insts := l.Installments()
	insts[0].Status = InstallmentPaid

	assert.Equal(t, InstallmentPending, l.Schedule[0].Status)
	next, ok := l.NextPending()
	require.True(t, ok)
	assert.Equal(t, 1, next.PaymentNumber)
}
