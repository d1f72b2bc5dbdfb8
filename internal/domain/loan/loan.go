package loan

import (
	"fmt"
	"strings"
	"time"

	"loan-engine/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

type LoanStatus string

const (
	StatusActive    LoanStatus = "active"
	StatusCompleted LoanStatus = "completed"
	StatusDefaulted LoanStatus = "defaulted"
	StatusCancelled LoanStatus = "cancelled"
)

// IsTerminal reports whether the loan accepts no further mutation.
func (s LoanStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func ParseLoanStatus(s string) (LoanStatus, error) {
	switch st := LoanStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusCompleted, StatusDefaulted, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown loan status %q", apperrors.ErrInvalidArgument, s)
	}
}

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// Operator identifies the staff member acting on a loan.
type Operator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CustomerSnapshot is the denormalized customer data captured at origination.
type CustomerSnapshot struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type Collateral struct {
	Description string          `json:"description,omitempty"`
	Value       decimal.Decimal `json:"value"`
}

type Disbursement struct {
	DisbursedBy Operator  `json:"disbursedBy"`
	DisbursedAt time.Time `json:"disbursedAt"`
	Method      string    `json:"method"`
}

type Installment struct {
	PaymentNumber    int               `json:"paymentNumber"`
	DueDate          time.Time         `json:"dueDate"`
	PrincipalAmount  decimal.Decimal   `json:"principalAmount"`
	InterestAmount   decimal.Decimal   `json:"interestAmount"`
	TotalAmount      decimal.Decimal   `json:"totalAmount"`
	PaidAmount       decimal.Decimal   `json:"paidAmount"`
	RemainingAmount  decimal.Decimal   `json:"remainingAmount"`
	Status           InstallmentStatus `json:"status"`
	PaidDate         *time.Time        `json:"paidDate,omitempty"`
	PaymentMethod    string            `json:"paymentMethod,omitempty"`
	PaymentReference string            `json:"paymentReference,omitempty"`
	ReceivedBy       *Operator         `json:"receivedBy,omitempty"`
	Notes            string            `json:"notes,omitempty"`
}

// IsOverdueAt reports whether the installment is unpaid past its due date.
func (i Installment) IsOverdueAt(now time.Time) bool {
	return i.Status != InstallmentPaid && now.After(i.DueDate)
}

// Loan is the aggregate root. The schedule is owned by the loan and only
// changed through its methods; Schedule is exported for the repositories.
type Loan struct {
	ID                 uuid.UUID
	LoanNumber         string
	Customer           CustomerSnapshot
	LoanAmount         decimal.Decimal
	InterestRate       decimal.Decimal
	TermMonths         int
	TotalInterest      decimal.Decimal
	TotalAmount        decimal.Decimal
	MonthlyPayment     decimal.Decimal
	PaidAmount         decimal.Decimal
	RemainingAmount    decimal.Decimal
	StartDate          time.Time
	EndDate            time.Time
	Status             LoanStatus
	Purpose            string
	Collateral         Collateral
	LateFeePercentage  decimal.Decimal
	TotalLateFees      decimal.Decimal
	Disbursement       *Disbursement
	CancellationReason string
	CreatedBy          Operator
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int64
	Schedule           []Installment

	events []Event
}

type NewLoanParams struct {
	LoanNumber        string
	Customer          CustomerSnapshot
	LoanAmount        decimal.Decimal
	InterestRate      decimal.Decimal
	TermMonths        int
	StartDate         time.Time
	Purpose           string
	Collateral        Collateral
	LateFeePercentage decimal.Decimal
	CreatedBy         Operator
}

// NewLoan originates a loan together with its full schedule.
func NewLoan(p NewLoanParams, now time.Time) (*Loan, error) {
	if p.LoanAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: loan amount must be positive", apperrors.ErrInvalidArgument)
	}
	if p.LateFeePercentage.IsNegative() {
		return nil, fmt.Errorf("%w: late fee percentage cannot be negative", apperrors.ErrInvalidArgument)
	}
	if p.Collateral.Value.IsNegative() {
		return nil, fmt.Errorf("%w: collateral value cannot be negative", apperrors.ErrInvalidArgument)
	}

	terms, err := Calculate(p.LoanAmount, p.InterestRate, p.TermMonths)
	if err != nil {
		return nil, err
	}

	startDate := p.StartDate
	if startDate.IsZero() {
		startDate = now.UTC().Truncate(24 * time.Hour)
	}

	l := &Loan{
		ID:                uuid.New(),
		LoanNumber:        p.LoanNumber,
		Customer:          p.Customer,
		LoanAmount:        p.LoanAmount.Round(moneyPlaces),
		InterestRate:      p.InterestRate,
		TermMonths:        p.TermMonths,
		TotalInterest:     terms.TotalInterest,
		TotalAmount:       terms.TotalAmount,
		MonthlyPayment:    terms.MonthlyPayment,
		PaidAmount:        decimal.Zero,
		RemainingAmount:   terms.TotalAmount,
		StartDate:         startDate,
		Status:            StatusActive,
		Purpose:           strings.TrimSpace(p.Purpose),
		Collateral:        Collateral{Description: p.Collateral.Description, Value: p.Collateral.Value.Round(moneyPlaces)},
		LateFeePercentage: p.LateFeePercentage,
		TotalLateFees:     decimal.Zero,
		CreatedBy:         p.CreatedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	schedule, err := l.GenerateSchedule()
	if err != nil {
		return nil, err
	}
	l.Schedule = schedule
	l.EndDate = schedule[len(schedule)-1].DueDate

	l.record(Event{
		Type:       EventLoanCreated,
		Operator:   operatorRef(p.CreatedBy),
		OccurredAt: now,
		Amount:     l.TotalAmount,
	})
	return l, nil
}

// Installment returns a copy of the installment with the given number.
func (l *Loan) Installment(number int) (Installment, bool) {
	idx := l.installmentIndex(number)
	if idx < 0 {
		return Installment{}, false
	}
	return l.Schedule[idx], true
}

// Installments returns a copy of the schedule.
func (l *Loan) Installments() []Installment {
	return l.Clone().Schedule
}

// NextPending returns the earliest installment that is not fully paid.
func (l *Loan) NextPending() (Installment, bool) {
	for _, inst := range l.Schedule {
		if inst.Status != InstallmentPaid {
			return inst, true
		}
	}
	return Installment{}, false
}

// Clone returns a deep copy, so callers never share the schedule backing array.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	c := *l
	c.Schedule = make([]Installment, len(l.Schedule))
	for i, inst := range l.Schedule {
		if inst.PaidDate != nil {
			d := *inst.PaidDate
			inst.PaidDate = &d
		}
		if inst.ReceivedBy != nil {
			op := *inst.ReceivedBy
			inst.ReceivedBy = &op
		}
		c.Schedule[i] = inst
	}
	if l.Disbursement != nil {
		d := *l.Disbursement
		c.Disbursement = &d
	}
	c.events = nil
	return &c
}

func (l *Loan) installmentIndex(number int) int {
	// Schedule is ordered 1..TermMonths, so the index is usually number-1.
	if number >= 1 && number <= len(l.Schedule) && l.Schedule[number-1].PaymentNumber == number {
		return number - 1
	}
	for i, inst := range l.Schedule {
		if inst.PaymentNumber == number {
			return i
		}
	}
	return -1
}

func operatorRef(op Operator) *Operator {
	if op.ID == "" && op.Name == "" {
		return nil
	}
	return &op
}
