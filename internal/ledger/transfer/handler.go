package transfer

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/koboledger/koboledger/internal/ledger/shared"
	"github.com/koboledger/koboledger/internal/platform/httpx"
	internalshared "github.com/koboledger/koboledger/internal/shared"
)

// Handler exposes the fast-transfer endpoint.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

type executeRequest struct {
	IdempotencyKey string `json:"idempotency_key" validate:"required,max=128"`
	SourceAccount  string `json:"source_account" validate:"required,uuid4"`
	DestAccount    string `json:"dest_account" validate:"required,uuid4"`
	MinorAmount    int64  `json:"minor_amount" validate:"required,gt=0"`
	Currency       string `json:"currency" validate:"required,len=3"`
	Narrative      string `json:"narrative" validate:"max=512"`
}

type executeResponse struct {
	JournalID string `json:"journal_id"`
	Status    string `json:"status"`
}

// Execute handles POST /transfers.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	tenant := internalshared.TenantFromContext(r.Context())
	if tenant == "" {
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", shared.ErrTenantRequired.Error())
		return
	}

	var req executeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	src, err := uuid.Parse(req.SourceAccount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "source_account is not a valid id")
		return
	}
	dst, err := uuid.Parse(req.DestAccount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "dest_account is not a valid id")
		return
	}

	result, err := h.service.Execute(r.Context(), ExecuteInput{
		IdempotencyKey: req.IdempotencyKey,
		TenantID:       tenant,
		SourceAccount:  src,
		DestAccount:    dst,
		MinorAmount:    req.MinorAmount,
		Currency:       req.Currency,
		Narrative:      req.Narrative,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	status := "Accepted"
	if result.Duplicate {
		status = "Duplicate"
	}
	httpx.JSON(w, http.StatusOK, executeResponse{JournalID: result.EntryID.String(), Status: status})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInsufficientFunds):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Funds", err.Error())
	case errors.Is(err, shared.ErrInactiveAccount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Account Inactive", err.Error())
	case errors.Is(err, shared.ErrAccountsIdentical),
		errors.Is(err, shared.ErrCurrencyMismatch),
		errors.Is(err, shared.ErrNonPositiveAmount),
		errors.Is(err, shared.ErrIdempotencyKeyRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Account Not Found", err.Error())
	case errors.Is(err, shared.ErrPersistence):
		// The idempotency key was not consumed; the caller may retry safely.
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "transfer aborted, retry with the same idempotency key")
	default:
		h.logger.Error("execute transfer", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
