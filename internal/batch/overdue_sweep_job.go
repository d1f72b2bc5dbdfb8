package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"loan-engine/internal/domain/loan"
	"loan-engine/internal/infrastructure/monitoring"
	"loan-engine/internal/pkg/apperrors"

	"github.com/google/uuid"
)

const defaultSweepWorkers = 8

type OpenLoanLister interface {
	ListOpenLoanIDs(ctx context.Context) ([]uuid.UUID, error)
}

type LoanRefresher interface {
	RefreshLoan(ctx context.Context, id uuid.UUID) (loan.RefreshResult, error)
}

// OverdueSweepJob refreshes every active or defaulted loan so that overdue
// installments, late fees and defaults are recorded even for loans nobody reads.
type OverdueSweepJob struct {
	loans     OpenLoanLister
	refresher LoanRefresher
	workers   int
	logger    *slog.Logger
}

func NewOverdueSweepJob(loans OpenLoanLister, refresher LoanRefresher, workers int, logger *slog.Logger) *OverdueSweepJob {
	if loans == nil || refresher == nil || logger == nil {
		panic("OverdueSweepJob dependencies cannot be nil")
	}
	if workers < 1 {
		workers = defaultSweepWorkers
	}
	return &OverdueSweepJob{
		loans:     loans,
		refresher: refresher,
		workers:   workers,
		logger:    logger.With("job", "OverdueSweep"),
	}
}

type SweepSummary struct {
	Total     int
	Processed int
	Changed   int
	Defaulted int
	Errors    int
}

func (j *OverdueSweepJob) Run(ctx context.Context) (SweepSummary, error) {
	startTime := time.Now()
	j.logger.InfoContext(ctx, "Starting overdue sweep job.")

	ids, err := j.loans.ListOpenLoanIDs(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to get open loan IDs, aborting job.", slog.Any("error", err))
		return SweepSummary{}, fmt.Errorf("cannot run job, failed to get open loans: %w", err)
	}
	j.logger.InfoContext(ctx, "Fetched open loan IDs.", slog.Int("count", len(ids)))

	var processed, changed, defaulted, errorCount atomic.Int32
	var wg sync.WaitGroup
	sem := make(chan struct{}, j.workers)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(loanID uuid.UUID) {
			defer wg.Done()
			defer func() { <-sem }()

			logCtx := j.logger.With(slog.String("loanID", loanID.String()))
			res, err := j.refresher.RefreshLoan(ctx, loanID)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					logCtx.WarnContext(ctx, "Loan disappeared before it could be refreshed", slog.Any("error", err))
					monitoring.RecordSweepLoan("missing")
					return
				}
				logCtx.ErrorContext(ctx, "Failed to refresh loan", slog.Any("error", err))
				monitoring.RecordSweepLoan("error")
				errorCount.Add(1)
				return
			}

			processed.Add(1)
			switch {
			case res.Defaulted:
				defaulted.Add(1)
				changed.Add(1)
				monitoring.RecordSweepLoan("defaulted")
				logCtx.InfoContext(ctx, "Loan moved to defaulted.", slog.Int("overdue_installments", res.OverdueCount))
			case res.Changed:
				changed.Add(1)
				monitoring.RecordSweepLoan("changed")
			default:
				monitoring.RecordSweepLoan("unchanged")
			}
		}(id)
	}
	wg.Wait()

	summary := SweepSummary{
		Total:     len(ids),
		Processed: int(processed.Load()),
		Changed:   int(changed.Load()),
		Defaulted: int(defaulted.Load()),
		Errors:    int(errorCount.Load()),
	}
	summaryLog := j.logger.With(
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("total_open_loans", summary.Total),
		slog.Int("loans_processed", summary.Processed),
		slog.Int("loans_changed", summary.Changed),
		slog.Int("loans_defaulted", summary.Defaulted),
		slog.Int("errors_encountered", summary.Errors),
	)

	if err := ctx.Err(); err != nil {
		summaryLog.WarnContext(ctx, "Overdue sweep job interrupted.")
		return summary, fmt.Errorf("overdue sweep interrupted: %w", err)
	}
	if summary.Errors > 0 {
		summaryLog.WarnContext(ctx, "Overdue sweep job finished with errors.")
		return summary, fmt.Errorf("job completed with %d errors", summary.Errors)
	}
	summaryLog.InfoContext(ctx, "Overdue sweep job finished successfully.")
	return summary, nil
}
