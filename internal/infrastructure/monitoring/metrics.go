package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	LoansCreatedTotal   prometheus.Counter
	PaymentsTotal       *prometheus.CounterVec
	LoanTransitions     *prometheus.CounterVec
	EventsPublished     *prometheus.CounterVec
	WriteConflictsTotal prometheus.Counter
	SweepLoansTotal     *prometheus.CounterVec
}

var (
	HTTP = HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_engine_http_requests_total",
				Help: "Total number of HTTP requests received.",
			},
			[]string{"method", "path", "code"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loan_engine_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "code"},
		),
	}

	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loan_engine_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Business = BusinessMetrics{
		LoansCreatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loan_engine_loans_created_total",
				Help: "Total number of loans originated.",
			},
		),
		PaymentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_engine_payments_total",
				Help: "Total number of payment attempts by outcome.",
			},
			[]string{"status"},
		),
		LoanTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_engine_loan_transitions_total",
				Help: "Total number of loan status transitions by target status.",
			},
			[]string{"status"},
		),
		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_engine_events_published_total",
				Help: "Total number of loan events handed to the publisher.",
			},
			[]string{"type", "status"},
		),
		WriteConflictsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loan_engine_write_conflicts_total",
				Help: "Total number of optimistic write conflicts that were retried.",
			},
		),
		SweepLoansTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loan_engine_overdue_sweep_loans_total",
				Help: "Loans visited by the overdue sweep by outcome.",
			},
			[]string{"outcome"},
		),
	}
)

func RecordHTTPRequest(method, path, code string, duration time.Duration) {
	HTTP.RequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTP.RequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordLoanCreated() {
	Business.LoansCreatedTotal.Inc()
}

func RecordPayment(status string) {
	Business.PaymentsTotal.WithLabelValues(status).Inc()
}

func RecordLoanTransition(status string) {
	Business.LoanTransitions.WithLabelValues(status).Inc()
}

func RecordEventPublished(eventType, status string) {
	Business.EventsPublished.WithLabelValues(eventType, status).Inc()
}

func RecordWriteConflict() {
	Business.WriteConflictsTotal.Inc()
}

func RecordSweepLoan(outcome string) {
	Business.SweepLoansTotal.WithLabelValues(outcome).Inc()
}
