package loan

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	testStart = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	teller    = Operator{ID: "op-7", Name: "Rosa Teller"}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "expected %s, got %s %v", want, got.StringFixed(2), msgAndArgs)
}

// newScenarioLoan builds the 12000 / 2% / 12 month loan used across tests.
func newScenarioLoan(t *testing.T) *Loan {
	t.Helper()
	l, err := NewLoan(NewLoanParams{
		LoanNumber:        "PREST-202401-0001",
		Customer:          CustomerSnapshot{ID: 42, Name: "Ana Ruiz"},
		LoanAmount:        dec("12000"),
		InterestRate:      dec("2"),
		TermMonths:        12,
		StartDate:         testStart,
		Purpose:           "working capital",
		Collateral:        Collateral{Description: "motorcycle", Value: dec("5000")},
		LateFeePercentage: dec("5"),
		CreatedBy:         teller,
	}, testStart)
	require.NoError(t, err)
	l.PullEvents()
	return l
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}
