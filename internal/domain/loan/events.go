package loan

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventLoanCreated     EventType = "loan.created"
	EventLoanDisbursed   EventType = "loan.disbursed"
	EventPaymentRecorded EventType = "payment.recorded"
	EventLoanDefaulted   EventType = "loan.defaulted"
	EventLoanCompleted   EventType = "loan.completed"
	EventLoanCancelled   EventType = "loan.cancelled"
)

// Event is an audit-worthy fact about a loan. Events are collected on the
// aggregate and handed to the publisher only after the write succeeded.
type Event struct {
	Type              EventType
	LoanID            uuid.UUID
	LoanNumber        string
	CustomerID        int64
	LoanStatus        LoanStatus
	Operator          *Operator
	OccurredAt        time.Time
	InstallmentNumber int
	InstallmentStatus InstallmentStatus
	Amount            decimal.Decimal
	Method            string
	Reference         string
	Reason            string
}

func (l *Loan) record(e Event) {
	e.LoanID = l.ID
	e.LoanNumber = l.LoanNumber
	e.CustomerID = l.Customer.ID
	e.LoanStatus = l.Status
	l.events = append(l.events, e)
}

// PullEvents returns the pending events and clears them.
func (l *Loan) PullEvents() []Event {
	events := l.events
	l.events = nil
	return events
}
