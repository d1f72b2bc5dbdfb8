package dto

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"loan-engine/internal/domain/loan"
	"loan-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

const (
	dateLayout      = time.DateOnly
	defaultPageSize = 50
	maxPageSize     = 200
)

type CreateLoanRequest struct {
	CustomerID            int64   `json:"customerId"`
	LoanAmount            string  `json:"loanAmount"`
	InterestRate          string  `json:"interestRate"`
	TermMonths            int     `json:"termMonths"`
	StartDate             string  `json:"startDate,omitempty"`
	Purpose               string  `json:"purpose,omitempty"`
	CollateralDescription string  `json:"collateralDescription,omitempty"`
	CollateralValue       string  `json:"collateralValue,omitempty"`
	LateFeePercentage     *string `json:"lateFeePercentage,omitempty"`
}

// ToInput parses the monetary fields; range checks are left to the loan package.
func (r *CreateLoanRequest) ToInput(op loan.Operator) (loan.CreateLoanInput, error) {
	in := loan.CreateLoanInput{
		CustomerID:            r.CustomerID,
		TermMonths:            r.TermMonths,
		Purpose:               strings.TrimSpace(r.Purpose),
		CollateralDescription: r.CollateralDescription,
		Operator:              op,
	}
	if r.CustomerID <= 0 {
		return in, apperrors.NewValidationError("customerId", "must be a positive number")
	}

	var err error
	if in.LoanAmount, err = parseDecimal("loanAmount", r.LoanAmount, true); err != nil {
		return in, err
	}
	if in.InterestRate, err = parseDecimal("interestRate", r.InterestRate, true); err != nil {
		return in, err
	}
	if in.CollateralValue, err = parseDecimal("collateralValue", r.CollateralValue, false); err != nil {
		return in, err
	}
	if r.LateFeePercentage != nil {
		fee, err := parseDecimal("lateFeePercentage", *r.LateFeePercentage, true)
		if err != nil {
			return in, err
		}
		in.LateFeePercentage = &fee
	}
	if r.StartDate != "" {
		if in.StartDate, err = time.Parse(dateLayout, r.StartDate); err != nil {
			return in, apperrors.NewValidationError("startDate", "use YYYY-MM-DD")
		}
	}
	return in, nil
}

type DisburseLoanRequest struct {
	Method string `json:"method"`
}

type RecordPaymentRequest struct {
	InstallmentNumber int    `json:"installmentNumber"`
	Amount            string `json:"amount"`
	Method            string `json:"method"`
	Reference         string `json:"reference,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

func (r *RecordPaymentRequest) ToInput(op loan.Operator) (loan.PaymentInput, error) {
	in := loan.PaymentInput{
		InstallmentNumber: r.InstallmentNumber,
		Method:            r.Method,
		Reference:         r.Reference,
		Notes:             r.Notes,
		Operator:          op,
	}
	if r.InstallmentNumber <= 0 {
		return in, apperrors.NewValidationError("installmentNumber", "must be a positive number")
	}
	amount, err := parseDecimal("amount", r.Amount, true)
	if err != nil {
		return in, err
	}
	in.Amount = amount
	return in, nil
}

type CancelLoanRequest struct {
	Reason string `json:"reason"`
}

type TokenRequest struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CustomerResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type CollateralResponse struct {
	Description string `json:"description,omitempty"`
	Value       string `json:"value"`
}

type DisbursementResponse struct {
	DisbursedBy loan.Operator `json:"disbursedBy"`
	DisbursedAt time.Time     `json:"disbursedAt"`
	Method      string        `json:"method"`
}

type LoanResponse struct {
	ID                 string                `json:"id"`
	LoanNumber         string                `json:"loanNumber"`
	Customer           CustomerResponse      `json:"customer"`
	LoanAmount         string                `json:"loanAmount"`
	InterestRate       string                `json:"interestRate"`
	TermMonths         int                   `json:"termMonths"`
	TotalInterest      string                `json:"totalInterest"`
	TotalAmount        string                `json:"totalAmount"`
	MonthlyPayment     string                `json:"monthlyPayment"`
	PaidAmount         string                `json:"paidAmount"`
	RemainingAmount    string                `json:"remainingAmount"`
	StartDate          string                `json:"startDate"`
	EndDate            string                `json:"endDate"`
	Status             string                `json:"status"`
	Purpose            string                `json:"purpose,omitempty"`
	Collateral         *CollateralResponse   `json:"collateral,omitempty"`
	LateFeePercentage  string                `json:"lateFeePercentage"`
	TotalLateFees      string                `json:"totalLateFees"`
	Disbursement       *DisbursementResponse `json:"disbursement,omitempty"`
	CancellationReason string                `json:"cancellationReason,omitempty"`
	CreatedBy          loan.Operator         `json:"createdBy"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
	Schedule           []InstallmentResponse `json:"schedule,omitempty"`
}

type InstallmentResponse struct {
	PaymentNumber    int            `json:"paymentNumber"`
	DueDate          string         `json:"dueDate"`
	PrincipalAmount  string         `json:"principalAmount"`
	InterestAmount   string         `json:"interestAmount"`
	TotalAmount      string         `json:"totalAmount"`
	PaidAmount       string         `json:"paidAmount"`
	RemainingAmount  string         `json:"remainingAmount"`
	Status           string         `json:"status"`
	PaidDate         *time.Time     `json:"paidDate,omitempty"`
	PaymentMethod    string         `json:"paymentMethod,omitempty"`
	PaymentReference string         `json:"paymentReference,omitempty"`
	ReceivedBy       *loan.Operator `json:"receivedBy,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	IsOverdue        *bool          `json:"isOverdue,omitempty"`
}

type PaymentResponse struct {
	Loan        LoanResponse        `json:"loan"`
	Installment InstallmentResponse `json:"installment"`
}

type ScheduleResponse struct {
	LoanID       string                `json:"loanId"`
	Installments []InstallmentResponse `json:"installments"`
}

type LoanListResponse struct {
	Loans  []LoanResponse `json:"loans"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func NewLoanResponse(l *loan.Loan, includeSchedule bool) LoanResponse {
	resp := LoanResponse{
		ID:         l.ID.String(),
		LoanNumber: l.LoanNumber,
		Customer: CustomerResponse{
			ID:      l.Customer.ID,
			Name:    l.Customer.Name,
			Phone:   l.Customer.Phone,
			Address: l.Customer.Address,
		},
		LoanAmount:         money(l.LoanAmount),
		InterestRate:       l.InterestRate.String(),
		TermMonths:         l.TermMonths,
		TotalInterest:      money(l.TotalInterest),
		TotalAmount:        money(l.TotalAmount),
		MonthlyPayment:     money(l.MonthlyPayment),
		PaidAmount:         money(l.PaidAmount),
		RemainingAmount:    money(l.RemainingAmount),
		StartDate:          l.StartDate.Format(dateLayout),
		EndDate:            l.EndDate.Format(dateLayout),
		Status:             string(l.Status),
		Purpose:            l.Purpose,
		LateFeePercentage:  l.LateFeePercentage.String(),
		TotalLateFees:      money(l.TotalLateFees),
		CancellationReason: l.CancellationReason,
		CreatedBy:          l.CreatedBy,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
	if l.Collateral.Description != "" || l.Collateral.Value.IsPositive() {
		resp.Collateral = &CollateralResponse{
			Description: l.Collateral.Description,
			Value:       money(l.Collateral.Value),
		}
	}
	if d := l.Disbursement; d != nil {
		resp.Disbursement = &DisbursementResponse{DisbursedBy: d.DisbursedBy, DisbursedAt: d.DisbursedAt, Method: d.Method}
	}
	if includeSchedule {
		resp.Schedule = make([]InstallmentResponse, len(l.Schedule))
		for i, inst := range l.Schedule {
			resp.Schedule[i] = NewInstallmentResponse(inst)
		}
	}
	return resp
}

func NewInstallmentResponse(inst loan.Installment) InstallmentResponse {
	return InstallmentResponse{
		PaymentNumber:    inst.PaymentNumber,
		DueDate:          inst.DueDate.Format(dateLayout),
		PrincipalAmount:  money(inst.PrincipalAmount),
		InterestAmount:   money(inst.InterestAmount),
		TotalAmount:      money(inst.TotalAmount),
		PaidAmount:       money(inst.PaidAmount),
		RemainingAmount:  money(inst.RemainingAmount),
		Status:           string(inst.Status),
		PaidDate:         inst.PaidDate,
		PaymentMethod:    inst.PaymentMethod,
		PaymentReference: inst.PaymentReference,
		ReceivedBy:       inst.ReceivedBy,
		Notes:            inst.Notes,
	}
}

func NewScheduleResponse(loanID string, rows []loan.ScheduleRow) ScheduleResponse {
	resp := ScheduleResponse{LoanID: loanID, Installments: make([]InstallmentResponse, len(rows))}
	for i, row := range rows {
		ir := NewInstallmentResponse(row.Installment)
		overdue := row.IsOverdue
		ir.IsOverdue = &overdue
		resp.Installments[i] = ir
	}
	return resp
}

func NewPaymentResponse(res *loan.PaymentResult) PaymentResponse {
	return PaymentResponse{
		Loan:        NewLoanResponse(res.Loan, false),
		Installment: NewInstallmentResponse(res.Installment),
	}
}

func NewLoanListResponse(loans []*loan.Loan, filter loan.ListFilter) LoanListResponse {
	resp := LoanListResponse{
		Loans:  make([]LoanResponse, len(loans)),
		Count:  len(loans),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for i, l := range loans {
		resp.Loans[i] = NewLoanResponse(l, false)
	}
	return resp
}

// ParseListFilter reads status, customerId, from, to, limit and offset from
// the query string. from and to bound the loan start date.
func ParseListFilter(q url.Values) (loan.ListFilter, error) {
	filter := loan.ListFilter{Limit: defaultPageSize}

	if s := q.Get("status"); s != "" {
		status, err := loan.ParseLoanStatus(s)
		if err != nil {
			return filter, apperrors.NewValidationError("status", "must be one of active, completed, defaulted, cancelled")
		}
		filter.Status = &status
	}
	if s := q.Get("customerId"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return filter, apperrors.NewValidationError("customerId", "must be a positive number")
		}
		filter.CustomerID = &id
	}
	for _, f := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.StartFrom}, {"to", &filter.StartTo}} {
		s := q.Get(f.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return filter, apperrors.NewValidationError(f.name, "use YYYY-MM-DD")
		}
		*f.dst = &t
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return filter, apperrors.NewValidationError("limit", "must be a positive number")
		}
		filter.Limit = min(n, maxPageSize)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, apperrors.NewValidationError("offset", "cannot be negative")
		}
		filter.Offset = n
	}
	return filter, nil
}

func parseDecimal(field, raw string, required bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return decimal.Zero, apperrors.NewValidationError(field, "is required")
		}
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError(field, "invalid numeric format")
	}
	return d, nil
}
