package event

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the structured log. It is used when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

var _ EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "LogPublisher")}
}

func (p *LogPublisher) PublishLoanEvent(ctx context.Context, event LoanEvent) error {
	p.logger.InfoContext(ctx, "Loan event",
		slog.String("type", event.Type),
		slog.String("loanId", event.LoanID),
		slog.String("loanNumber", event.LoanNumber),
		slog.Int64("customerId", event.CustomerID),
		slog.String("loanStatus", event.LoanStatus),
		slog.Int("installmentNumber", event.InstallmentNumber),
		slog.String("amount", event.Amount),
		slog.String("reason", event.Reason),
		slog.Time("occurredAt", event.OccurredAt),
	)
	return nil
}
