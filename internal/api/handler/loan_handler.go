package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"loan-engine/internal/api/handler/dto"
	mw "loan-engine/internal/api/middleware"
	"loan-engine/internal/domain/loan"
	"loan-engine/internal/pkg/apperrors"
	"loan-engine/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type LoanHandler struct {
	service loan.LoanService
	logger  *slog.Logger
}

func NewLoanHandler(s loan.LoanService, l *slog.Logger) *LoanHandler {
	return &LoanHandler{
		service: s,
		logger:  l.With("component", "LoanHandler"),
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: no request body", apperrors.ErrInvalidArgument)
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", apperrors.ErrInvalidArgument, err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":{"message":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, err error) {
	status, code, message, field := http.StatusInternalServerError, "INTERNAL", "An unexpected error occurred.", ""
	var validationError *apperrors.ValidationError

	switch {
	case errors.As(err, &validationError):
		status, code, message, field = http.StatusBadRequest, "VALIDATION", validationError.Message, validationError.Field
	case errors.Is(err, apperrors.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, apperrors.ErrInvalidArgument), errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrInvalidTerm), errors.Is(err, apperrors.ErrInvalidPaymentAmount):
		status, code, message = http.StatusBadRequest, "INVALID_ARGUMENT", err.Error()
	case errors.Is(err, apperrors.ErrInsufficientCreditScore):
		status, code, message = http.StatusUnprocessableEntity, "INSUFFICIENT_CREDIT_SCORE", err.Error()
	case errors.Is(err, apperrors.ErrAlreadyPaid), errors.Is(err, apperrors.ErrAlreadyCompleted),
		errors.Is(err, apperrors.ErrLoanCancelled), errors.Is(err, apperrors.ErrDuplicateDisbursement):
		status, code, message = http.StatusConflict, "INVALID_STATE", err.Error()
	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrAlreadyExists):
		status, code, message = http.StatusConflict, "CONFLICT", "The loan was modified concurrently, retry the request."
	case errors.Is(err, apperrors.ErrUnauthorized):
		status, code, message = http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized"
	default:
		slog.Default().Error("Unhandled internal error", "error", err)
	}

	respondJSON(w, status, dto.ErrorResponse{
		Error: dto.ErrorDetail{Code: code, Message: message, Field: field},
	})
}

func getLoanIDFromURL(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError("loanID", "must be a UUID")
	}
	return id, nil
}

func operator(r *http.Request) loan.Operator {
	if op, ok := mw.OperatorFromContext(r.Context()); ok {
		return op
	}
	return mw.AnonymousOperator
}

// CreateLoan originates a loan for an existing customer.
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	in, err := req.ToInput(operator(r))
	if err != nil {
		respondError(w, err)
		return
	}

	created, err := h.service.CreateLoan(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Location", "/loans/"+created.ID.String())
	respondJSON(w, http.StatusCreated, dto.NewLoanResponse(created, true))
}

func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	filter, err := dto.ParseListFilter(r.URL.Query())
	if err != nil {
		respondError(w, err)
		return
	}
	loans, err := h.service.ListLoans(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewLoanListResponse(loans, filter))
}

// GetLoan returns the loan; include=schedule adds the installments.
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, err)
		return
	}
	l, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewLoanResponse(l, r.URL.Query().Get("include") == "schedule"))
}

func (h *LoanHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, err)
		return
	}
	rows, err := h.service.GetSchedule(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewScheduleResponse(loanID.String(), rows))
}

// DownloadSchedule renders the amortization table as an Excel workbook.
func (h *LoanHandler) DownloadSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, err)
		return
	}
	l, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}
	rows, err := h.service.GetSchedule(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	content, err := report.ScheduleWorkbook(l, rows)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to render schedule workbook", "loanID", loanID, "error", err)
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-schedule.xlsx"`, l.LoanNumber))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (h *LoanHandler) NextInstallment(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, err)
		return
	}
	inst, err := h.service.NextPendingInstallment(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewInstallmentResponse(*inst))
}

func (h *LoanHandler) DisburseLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req dto.DisburseLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	l, err := h.service.DisburseLoan(r.Context(), loanID, loan.DisbursementInput{Method: req.Method, Operator: operator(r)})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewLoanResponse(l, false))
}

// RecordPayment applies a payment to one installment of the loan.
func (h *LoanHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req dto.RecordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	in, err := req.ToInput(operator(r))
	if err != nil {
		respondError(w, err)
		return
	}
	in.LoanID = loanID

	res, err := h.service.RecordPayment(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewPaymentResponse(res))
}

func (h *LoanHandler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := getLoanIDFromURL(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var req dto.CancelLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	l, err := h.service.CancelLoan(r.Context(), loanID, req.Reason, operator(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewLoanResponse(l, false))
}
