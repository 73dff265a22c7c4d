package accounts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/koboledger/koboledger/internal/balance"
	"github.com/koboledger/koboledger/internal/ledger"
	"github.com/koboledger/koboledger/internal/ledger/shared"
	"github.com/koboledger/koboledger/internal/platform/httpx"
	internalshared "github.com/koboledger/koboledger/internal/shared"
)

// Handler exposes account admin and balance-read endpoints.
type Handler struct {
	service  *Service
	reader   *balance.Reader
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, reader *balance.Reader) *Handler {
	return &Handler{service: service, reader: reader, logger: logger, validate: validator.New()}
}

type openRequest struct {
	Currency string `json:"currency" validate:"required,len=3"`
	Class    string `json:"class" validate:"required"`
}

type accountResponse struct {
	ID           string `json:"id"`
	Currency     string `json:"currency"`
	Class        string `json:"class"`
	BalanceMinor int64  `json:"balance_minor"`
	Active       bool   `json:"active"`
}

type balanceResponse struct {
	MinorBalance int64  `json:"minor_balance"`
	Source       string `json:"source"`
}

// Open handles POST /accounts.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	tenant := internalshared.TenantFromContext(r.Context())
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	acct, err := h.service.Open(r.Context(), OpenInput{
		TenantID: tenant,
		Currency: req.Currency,
		Class:    ledger.AccountClass(req.Class),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(acct))
}

// Get handles GET /accounts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := internalshared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	acct, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(acct))
}

// Deactivate handles POST /accounts/{id}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	tenant := internalshared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	if err := h.service.Deactivate(r.Context(), tenant, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Balance handles GET /accounts/{id}/balance?currency=NGN through the hedged
// reader: cache projection raced against the durable store.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	tenant := internalshared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid account id")
		return
	}
	currency := r.URL.Query().Get("currency")
	if len(currency) != 3 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "currency query parameter required")
		return
	}
	result, err := h.reader.GetBalance(r.Context(), tenant, id, currency)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{MinorBalance: result.MinorBalance, Source: string(result.Source)})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Account Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidClass),
		errors.Is(err, shared.ErrCurrencyMismatch),
		errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrPersistence):
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "operation aborted, safe to retry")
	default:
		h.logger.Error("account request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toResponse(acct ledger.Account) accountResponse {
	return accountResponse{
		ID:           acct.ID.String(),
		Currency:     acct.Currency,
		Class:        string(acct.Class),
		BalanceMinor: acct.BalanceMinor,
		Active:       acct.Active,
	}
}
