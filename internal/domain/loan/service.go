package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"loan-engine/internal/domain/customer"
	"loan-engine/internal/event"
	"loan-engine/internal/infrastructure/monitoring"
	"loan-engine/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanService interface {
	CreateLoan(ctx context.Context, in CreateLoanInput) (*Loan, error)

	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)

	ListLoans(ctx context.Context, filter ListFilter) ([]*Loan, error)

	DisburseLoan(ctx context.Context, id uuid.UUID, in DisbursementInput) (*Loan, error)

	RecordPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error)

	CancelLoan(ctx context.Context, id uuid.UUID, reason string, by Operator) (*Loan, error)

	NextPendingInstallment(ctx context.Context, id uuid.UUID) (*Installment, error)

	GetSchedule(ctx context.Context, id uuid.UUID) ([]ScheduleRow, error)

	RefreshLoan(ctx context.Context, id uuid.UUID) (RefreshResult, error)
}

type CreateLoanInput struct {
	CustomerID            int64
	LoanAmount            decimal.Decimal
	InterestRate          decimal.Decimal
	TermMonths            int
	StartDate             time.Time
	Purpose               string
	CollateralDescription string
	CollateralValue       decimal.Decimal
	// LateFeePercentage falls back to ServiceConfig.DefaultLateFeePercentage when nil.
	LateFeePercentage *decimal.Decimal
	Operator          Operator
}

type DisbursementInput struct {
	Method   string
	Operator Operator
}

type PaymentInput struct {
	LoanID            uuid.UUID
	InstallmentNumber int
	Amount            decimal.Decimal
	Method            string
	Reference         string
	Notes             string
	Operator          Operator
}

type PaymentResult struct {
	Loan        *Loan
	Installment Installment
}

// ScheduleRow is one installment annotated with its overdue flag at read time.
type ScheduleRow struct {
	Installment
	IsOverdue bool
}

type ServiceConfig struct {
	NumberPrefix             string
	MinCreditScore           int
	DefaultLateFeePercentage decimal.Decimal
	MaxWriteRetries          int
}

type Option func(*loanServiceImpl)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *loanServiceImpl) {
		s.now = now
	}
}

type loanServiceImpl struct {
	repo            Repository
	sequence        NumberSequence
	customerService customer.CustomerService
	publisher       event.EventPublisher
	cfg             ServiceConfig
	now             func() time.Time
	logger          *slog.Logger
}

var _ LoanService = (*loanServiceImpl)(nil)

func NewLoanService(r Repository, seq NumberSequence, cs customer.CustomerService, pub event.EventPublisher,
	cfg ServiceConfig, logger *slog.Logger, opts ...Option) LoanService {
	if r == nil || seq == nil || cs == nil || pub == nil {
		panic("loan service dependencies cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = "PREST"
	}
	if cfg.MaxWriteRetries < 1 {
		cfg.MaxWriteRetries = 1
	}
	s := &loanServiceImpl{
		repo:            r,
		sequence:        seq,
		customerService: cs,
		publisher:       pub,
		cfg:             cfg,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger.With(slog.String("component", "loanService")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *loanServiceImpl) CreateLoan(ctx context.Context, in CreateLoanInput) (*Loan, error) {
	logger := s.logger.With(slog.Int64("customerID", in.CustomerID))
	logger.InfoContext(ctx, "Creating new loan")

	cust, err := s.customerService.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			logger.WarnContext(ctx, "Customer not found")
			return nil, fmt.Errorf("%w: customer %d", customer.ErrNotFound, in.CustomerID)
		}
		logger.ErrorContext(ctx, "Failed to get customer details from customer service", slog.Any("error", err))
		return nil, fmt.Errorf("failed to verify customer: %w", err)
	}
	if !cust.Active {
		logger.WarnContext(ctx, "Attempted to create loan for inactive customer")
		return nil, fmt.Errorf("%w: customer %d is not active", apperrors.ErrValidation, in.CustomerID)
	}
	if !cust.MeetsCreditScore(s.cfg.MinCreditScore) {
		logger.WarnContext(ctx, "Customer credit score below minimum",
			slog.Int("creditScore", cust.CreditScore), slog.Int("minimum", s.cfg.MinCreditScore))
		return nil, fmt.Errorf("%w: customer %d has score %d, minimum is %d",
			apperrors.ErrInsufficientCreditScore, in.CustomerID, cust.CreditScore, s.cfg.MinCreditScore)
	}

	// Reject bad terms before a loan number is consumed.
	if _, err := Calculate(in.LoanAmount, in.InterestRate, in.TermMonths); err != nil {
		logger.WarnContext(ctx, "Invalid loan terms", slog.Any("error", err))
		return nil, err
	}

	lateFee := s.cfg.DefaultLateFeePercentage
	if in.LateFeePercentage != nil {
		lateFee = *in.LateFeePercentage
	}

	params := NewLoanParams{
		Customer: CustomerSnapshot{
			ID:      cust.CustomerID,
			Name:    cust.Name,
			Phone:   cust.Phone,
			Address: cust.Address,
		},
		LoanAmount:        in.LoanAmount,
		InterestRate:      in.InterestRate,
		TermMonths:        in.TermMonths,
		StartDate:         in.StartDate,
		Purpose:           in.Purpose,
		Collateral:        Collateral{Description: strings.TrimSpace(in.CollateralDescription), Value: in.CollateralValue},
		LateFeePercentage: lateFee,
		CreatedBy:         in.Operator,
	}

	for attempt := 1; ; attempt++ {
		now := s.now()
		params.LoanNumber, err = s.nextLoanNumber(ctx, now)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to reserve loan number", slog.Any("error", err))
			return nil, err
		}

		l, err := NewLoan(params, now)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to create new loan object", slog.Any("error", err))
			return nil, err
		}
		events := l.PullEvents()

		if err := s.repo.Create(ctx, l); err != nil {
			if errors.Is(err, apperrors.ErrAlreadyExists) && attempt < s.cfg.MaxWriteRetries {
				logger.WarnContext(ctx, "Loan number already taken, retrying", slog.String("loanNumber", l.LoanNumber))
				continue
			}
			logger.ErrorContext(ctx, "Failed to save loan", slog.Any("error", err))
			return nil, fmt.Errorf("failed to save loan: %w", err)
		}

		monitoring.RecordLoanCreated()
		s.publish(ctx, events)
		logger.InfoContext(ctx, "Loan created successfully",
			slog.String("loanID", l.ID.String()), slog.String("loanNumber", l.LoanNumber))
		return l, nil
	}
}

func (s *loanServiceImpl) nextLoanNumber(ctx context.Context, now time.Time) (string, error) {
	key := s.cfg.NumberPrefix + "-" + NumberPeriod(now)
	seq, err := s.sequence.Next(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get next loan number for %s: %w", key, err)
	}
	return FormatLoanNumber(s.cfg.NumberPrefix, now, seq), nil
}

func (s *loanServiceImpl) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	return s.mutate(ctx, id, "refresh", func(l *Loan, now time.Time) (bool, error) {
		return l.Refresh(now).Changed, nil
	})
}

// ListLoans refreshes every loan it returns. A refresh can move an active
// loan to defaulted, so when filter.Status names an open status both open
// statuses are fetched and the status filter and paging run on the refreshed
// loans.
func (s *loanServiceImpl) ListLoans(ctx context.Context, filter ListFilter) ([]*Loan, error) {
	query := filter
	refilter := filter.Status != nil && !filter.Status.IsTerminal()
	if refilter {
		query.Status = nil
		query.Statuses = []LoanStatus{StatusActive, StatusDefaulted}
		query.Limit, query.Offset = 0, 0
	}

	loans, err := s.repo.List(ctx, query)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list loans", slog.Any("error", err))
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}

	result := make([]*Loan, 0, len(loans))
	for _, l := range loans {
		now := s.now()
		if l.Refresh(now).Changed {
			events := l.PullEvents()
			if err := s.repo.Update(ctx, l); err != nil {
				if !errors.Is(err, apperrors.ErrConflict) {
					return nil, fmt.Errorf("failed to persist refreshed loan %s: %w", l.LoanNumber, err)
				}
				// Another writer got there first; take its state through the retrying path.
				if l, err = s.GetLoan(ctx, l.ID); err != nil {
					return nil, err
				}
			} else {
				s.publish(ctx, events)
			}
		}
		if refilter && l.Status != *filter.Status {
			continue
		}
		result = append(result, l)
	}

	if refilter {
		result = page(result, filter.Offset, filter.Limit)
	}
	return result, nil
}

func page(loans []*Loan, offset, limit int) []*Loan {
	if offset >= len(loans) {
		return []*Loan{}
	}
	loans = loans[offset:]
	if limit > 0 && limit < len(loans) {
		loans = loans[:limit]
	}
	return loans
}

func (s *loanServiceImpl) DisburseLoan(ctx context.Context, id uuid.UUID, in DisbursementInput) (*Loan, error) {
	return s.mutate(ctx, id, "disburse", func(l *Loan, now time.Time) (bool, error) {
		if err := l.Disburse(in.Operator, in.Method, now); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *loanServiceImpl) RecordPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	var applied Installment
	l, err := s.mutate(ctx, in.LoanID, "payment", func(l *Loan, now time.Time) (bool, error) {
		details := PaymentDetails{
			Method:     in.Method,
			Reference:  in.Reference,
			ReceivedBy: in.Operator,
			Notes:      in.Notes,
		}
		// Settle arrears as of now first, so a late payment still records the default.
		l.Refresh(now)
		if _, err := l.RecordPayment(in.InstallmentNumber, in.Amount, details, now); err != nil {
			return false, err
		}
		l.Refresh(now)
		applied, _ = l.Installment(in.InstallmentNumber)
		return true, nil
	})
	if err != nil {
		monitoring.RecordPayment("failed")
		return nil, err
	}

	monitoring.RecordPayment("success")
	return &PaymentResult{Loan: l, Installment: applied}, nil
}

func (s *loanServiceImpl) CancelLoan(ctx context.Context, id uuid.UUID, reason string, by Operator) (*Loan, error) {
	return s.mutate(ctx, id, "cancel", func(l *Loan, now time.Time) (bool, error) {
		if err := l.Cancel(reason, by, now); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *loanServiceImpl) NextPendingInstallment(ctx context.Context, id uuid.UUID) (*Installment, error) {
	l, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	inst, ok := l.NextPending()
	if !ok {
		return nil, fmt.Errorf("%w: loan %s has no pending installment", apperrors.ErrInstallmentNotFound, l.LoanNumber)
	}
	return &inst, nil
}

// GetSchedule flags overdue rows as of the same instant the loan was
// refreshed at, so row statuses and flags agree.
func (s *loanServiceImpl) GetSchedule(ctx context.Context, id uuid.UUID) ([]ScheduleRow, error) {
	var asOf time.Time
	l, err := s.mutate(ctx, id, "refresh", func(l *Loan, now time.Time) (bool, error) {
		asOf = now
		return l.Refresh(now).Changed, nil
	})
	if err != nil {
		return nil, err
	}
	rows := make([]ScheduleRow, 0, len(l.Schedule))
	for _, inst := range l.Installments() {
		rows = append(rows, ScheduleRow{Installment: inst, IsOverdue: inst.IsOverdueAt(asOf)})
	}
	return rows, nil
}

func (s *loanServiceImpl) RefreshLoan(ctx context.Context, id uuid.UUID) (RefreshResult, error) {
	var res RefreshResult
	_, err := s.mutate(ctx, id, "refresh", func(l *Loan, now time.Time) (bool, error) {
		res = l.Refresh(now)
		return res.Changed, nil
	})
	return res, err
}

// mutate runs one read-modify-write cycle against the latest stored loan,
// starting over when Update reports a version conflict. fn reports whether
// the loan changed; unchanged loans are not written.
func (s *loanServiceImpl) mutate(ctx context.Context, id uuid.UUID, op string, fn func(l *Loan, now time.Time) (bool, error)) (*Loan, error) {
	logger := s.logger.With(slog.String("loanID", id.String()), slog.String("op", op))

	for attempt := 1; ; attempt++ {
		l, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				logger.WarnContext(ctx, "Loan not found")
				return nil, err
			}
			logger.ErrorContext(ctx, "Failed to load loan", slog.Any("error", err))
			return nil, fmt.Errorf("failed to load loan %s: %w", id, err)
		}

		changed, err := fn(l, s.now())
		if err != nil {
			logger.WarnContext(ctx, "Loan operation rejected", slog.Any("error", err))
			return nil, err
		}
		if !changed {
			return l, nil
		}

		events := l.PullEvents()
		if err := s.repo.Update(ctx, l); err != nil {
			if errors.Is(err, apperrors.ErrConflict) && attempt < s.cfg.MaxWriteRetries {
				monitoring.RecordWriteConflict()
				logger.WarnContext(ctx, "Concurrent update detected, retrying", slog.Int("attempt", attempt))
				continue
			}
			logger.ErrorContext(ctx, "Failed to save loan", slog.Any("error", err))
			return nil, fmt.Errorf("failed to save loan %s: %w", l.LoanNumber, err)
		}

		s.publish(ctx, events)
		logger.InfoContext(ctx, "Loan updated", slog.String("status", string(l.Status)), slog.Int64("version", l.Version))
		return l, nil
	}
}

// publish hands committed events to the publisher. Failures are logged only;
// the write they describe has already succeeded.
func (s *loanServiceImpl) publish(ctx context.Context, events []Event) {
	for _, e := range events {
		switch e.Type {
		case EventLoanCompleted, EventLoanDefaulted, EventLoanCancelled:
			monitoring.RecordLoanTransition(string(e.LoanStatus))
		}

		if err := s.publisher.PublishLoanEvent(ctx, toLoanEvent(e)); err != nil {
			monitoring.RecordEventPublished(string(e.Type), "failed")
			s.logger.ErrorContext(ctx, "Failed to publish loan event",
				slog.String("type", string(e.Type)),
				slog.String("loanNumber", e.LoanNumber),
				slog.Any("error", err))
			continue
		}
		monitoring.RecordEventPublished(string(e.Type), "success")
	}
}

func toLoanEvent(e Event) event.LoanEvent {
	out := event.LoanEvent{
		Type:              string(e.Type),
		LoanID:            e.LoanID.String(),
		LoanNumber:        e.LoanNumber,
		CustomerID:        e.CustomerID,
		LoanStatus:        string(e.LoanStatus),
		InstallmentNumber: e.InstallmentNumber,
		InstallmentStatus: string(e.InstallmentStatus),
		Method:            e.Method,
		Reference:         e.Reference,
		Reason:            e.Reason,
		OccurredAt:        e.OccurredAt,
	}
	if !e.Amount.IsZero() {
		out.Amount = e.Amount.StringFixed(moneyPlaces)
	}
	if e.Operator != nil {
		out.Operator = &event.OperatorInfo{ID: e.Operator.ID, Name: e.Operator.Name}
	}
	return out
}
