package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"loan-engine/internal/domain/loan"
	"loan-engine/internal/infrastructure/monitoring"
	"loan-engine/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

const uniqueViolation = "23505"

var errMsgFormat = "%w: %w"

const loanColumns = `id, loan_number, customer_id, customer_name, customer_phone, customer_address,
        loan_amount, interest_rate, term_months, total_interest, total_amount, monthly_payment,
        paid_amount, remaining_amount, start_date, end_date, status, purpose,
        collateral_description, collateral_value, late_fee_percentage, total_late_fees,
        disbursement, cancellation_reason, created_by, created_at, updated_at, version, schedule`

type LoanRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ loan.Repository = (*LoanRepository)(nil)

func NewLoanRepository(db DBPool, logger *slog.Logger) *LoanRepository {
	if db == nil {
		panic("DBPool cannot be nil for LoanRepository")
	}
	return &LoanRepository{db: db, logger: logger.With("component", "LoanRepository")}
}

func (r *LoanRepository) Create(ctx context.Context, l *loan.Loan) error {
	docs, err := encodeDocuments(l)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO loans (` + loanColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
                $19, $20, $21, $22, $23, $24, $25, $26, $27, 1, $28)`

	startTime := time.Now()
	_, err = r.db.Exec(ctx, query,
		l.ID, l.LoanNumber, l.Customer.ID, l.Customer.Name, l.Customer.Phone, l.Customer.Address,
		l.LoanAmount, l.InterestRate, l.TermMonths, l.TotalInterest, l.TotalAmount, l.MonthlyPayment,
		l.PaidAmount, l.RemainingAmount, l.StartDate, l.EndDate, string(l.Status), l.Purpose,
		l.Collateral.Description, l.Collateral.Value, l.LateFeePercentage, l.TotalLateFees,
		docs.disbursement, l.CancellationReason, docs.createdBy, l.CreatedAt, l.UpdatedAt, docs.schedule,
	)
	recordQuery("CreateLoan", err, startTime)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert loan", "loan_number", l.LoanNumber, "error", err)
		return translateDBError(err, "loan "+l.LoanNumber)
	}

	l.Version = 1
	r.logger.InfoContext(ctx, "Loan created in DB", "loan_id", l.ID, "loan_number", l.LoanNumber)
	return nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	startTime := time.Now()
	l, err := scanLoan(r.db.QueryRow(ctx, query, id))
	recordQuery("GetLoanByID", err, startTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Loan not found", "loan_id", id)
			return nil, fmt.Errorf("%w: loan %s", apperrors.ErrNotFound, id)
		}
		r.logger.ErrorContext(ctx, "Failed to get loan by ID", "loan_id", id, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return l, nil
}

func (r *LoanRepository) List(ctx context.Context, filter loan.ListFilter) ([]*loan.Loan, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		add("status = ANY($%d)", statuses)
	}
	if filter.CustomerID != nil {
		add("customer_id = $%d", *filter.CustomerID)
	}
	if filter.StartFrom != nil {
		add("start_date >= $%d", *filter.StartFrom)
	}
	if filter.StartTo != nil {
		add("start_date <= $%d", *filter.StartTo)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + loanColumns + ` FROM loans`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, loan_number DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	startTime := time.Now()
	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		recordQuery("ListLoans", err, startTime)
		r.logger.ErrorContext(ctx, "Failed to query loans", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	loans := make([]*loan.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			recordQuery("ListLoans", err, startTime)
			r.logger.ErrorContext(ctx, "Failed to scan loan row", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		loans = append(loans, l)
	}
	err = rows.Err()
	recordQuery("ListLoans", err, startTime)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error iterating loan rows", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return loans, nil
}

func (r *LoanRepository) Update(ctx context.Context, l *loan.Loan) error {
	docs, err := encodeDocuments(l)
	if err != nil {
		return err
	}

	query := `
        UPDATE loans
        SET paid_amount = $3, remaining_amount = $4, status = $5, total_late_fees = $6,
            disbursement = $7, cancellation_reason = $8, updated_at = $9, schedule = $10,
            version = version + 1
        WHERE id = $1 AND version = $2`

	startTime := time.Now()
	tag, err := r.db.Exec(ctx, query,
		l.ID, l.Version, l.PaidAmount, l.RemainingAmount, string(l.Status), l.TotalLateFees,
		docs.disbursement, l.CancellationReason, l.UpdatedAt, docs.schedule,
	)
	recordQuery("UpdateLoan", err, startTime)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan", "loan_id", l.ID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Loan update matched no row", "loan_id", l.ID, "version", l.Version)
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loans WHERE id = $1)`, l.ID).Scan(&exists); err != nil {
			return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		if !exists {
			return fmt.Errorf("%w: loan %s", apperrors.ErrNotFound, l.ID)
		}
		return fmt.Errorf("%w: loan %s changed since version %d", apperrors.ErrConflict, l.LoanNumber, l.Version)
	}

	l.Version++
	return nil
}

func (r *LoanRepository) ListOpenLoanIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
        SELECT id FROM loans
        WHERE status IN ('active', 'defaulted')
        ORDER BY id`

	startTime := time.Now()
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		recordQuery("ListOpenLoanIDs", err, startTime)
		r.logger.ErrorContext(ctx, "Failed to query open loan IDs", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			recordQuery("ListOpenLoanIDs", err, startTime)
			r.logger.ErrorContext(ctx, "Failed to scan loan ID", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	recordQuery("ListOpenLoanIDs", err, startTime)
	if err != nil {
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return ids, nil
}

type documents struct {
	schedule     []byte
	disbursement []byte
	createdBy    []byte
}

func encodeDocuments(l *loan.Loan) (documents, error) {
	var (
		d   documents
		err error
	)
	if d.schedule, err = json.Marshal(l.Schedule); err != nil {
		return d, fmt.Errorf("%w: encode schedule: %w", apperrors.ErrInternalServer, err)
	}
	if d.disbursement, err = json.Marshal(l.Disbursement); err != nil {
		return d, fmt.Errorf("%w: encode disbursement: %w", apperrors.ErrInternalServer, err)
	}
	if d.createdBy, err = json.Marshal(l.CreatedBy); err != nil {
		return d, fmt.Errorf("%w: encode operator: %w", apperrors.ErrInternalServer, err)
	}
	return d, nil
}

func scanLoan(row pgx.Row) (*loan.Loan, error) {
	var l loan.Loan
	var status string
	var schedule, disbursement, createdBy []byte
	err := row.Scan(
		&l.ID, &l.LoanNumber, &l.Customer.ID, &l.Customer.Name, &l.Customer.Phone, &l.Customer.Address,
		&l.LoanAmount, &l.InterestRate, &l.TermMonths, &l.TotalInterest, &l.TotalAmount, &l.MonthlyPayment,
		&l.PaidAmount, &l.RemainingAmount, &l.StartDate, &l.EndDate, &status, &l.Purpose,
		&l.Collateral.Description, &l.Collateral.Value, &l.LateFeePercentage, &l.TotalLateFees,
		&disbursement, &l.CancellationReason, &createdBy, &l.CreatedAt, &l.UpdatedAt, &l.Version, &schedule,
	)
	if err != nil {
		return nil, err
	}
	l.Status = loan.LoanStatus(status)

	if err := json.Unmarshal(schedule, &l.Schedule); err != nil {
		return nil, fmt.Errorf("decode schedule of loan %s: %w", l.LoanNumber, err)
	}
	if len(disbursement) > 0 {
		if err := json.Unmarshal(disbursement, &l.Disbursement); err != nil {
			return nil, fmt.Errorf("decode disbursement of loan %s: %w", l.LoanNumber, err)
		}
	}
	if len(createdBy) > 0 {
		if err := json.Unmarshal(createdBy, &l.CreatedBy); err != nil {
			return nil, fmt.Errorf("decode operator of loan %s: %w", l.LoanNumber, err)
		}
	}
	return &l, nil
}

func translateDBError(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", apperrors.ErrAlreadyExists, what)
	}
	return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
}

func recordQuery(name string, err error, start time.Time) {
	status := "success"
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		status = "error"
	}
	monitoring.RecordDBQuery(name, status, time.Since(start))
}
