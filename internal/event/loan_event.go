package event

import (
	"context"
	"time"
)

const publisherAppID = "loan-engine"

type EventPublisher interface {
	PublishLoanEvent(ctx context.Context, event LoanEvent) error
}

// LoanEvent is the wire payload for every loan audit event. The event type
// doubles as the routing key on the topic exchange.
type LoanEvent struct {
	Type              string        `json:"type"`
	LoanID            string        `json:"loanId"`
	LoanNumber        string        `json:"loanNumber"`
	CustomerID        int64         `json:"customerId"`
	LoanStatus        string        `json:"loanStatus"`
	Operator          *OperatorInfo `json:"operator,omitempty"`
	InstallmentNumber int           `json:"installmentNumber,omitempty"`
	InstallmentStatus string        `json:"installmentStatus,omitempty"`
	Amount            string        `json:"amount,omitempty"`
	Method            string        `json:"method,omitempty"`
	Reference         string        `json:"reference,omitempty"`
	Reason            string        `json:"reason,omitempty"`
	OccurredAt        time.Time     `json:"occurredAt"`
}

type OperatorInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (e LoanEvent) RoutingKey() string {
	return e.Type
}
