package journals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/koboledger/koboledger/internal/ledger"
	"github.com/koboledger/koboledger/internal/ledger/shared"
	"github.com/koboledger/koboledger/internal/platform/httpx"
	internalshared "github.com/koboledger/koboledger/internal/shared"
)

// Handler exposes journal entry endpoints.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

type lineRequest struct {
	AccountID   string `json:"account_id" validate:"required,uuid4"`
	MinorAmount int64  `json:"minor_amount" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

type createRequest struct {
	Narrative   string        `json:"narrative" validate:"max=512"`
	DebitLines  []lineRequest `json:"debit_lines" validate:"required,min=1,dive"`
	CreditLines []lineRequest `json:"credit_lines" validate:"required,min=1,dive"`
}

type entryResponse struct {
	JournalID string `json:"journal_id"`
	Status    string `json:"status"`
}

// Create handles POST /journal-entries.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := internalshared.TenantFromContext(r.Context())
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	debits, err := toLines(req.DebitLines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	credits, err := toLines(req.CreditLines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entry, err := h.service.Create(r.Context(), CreateInput{
		TenantID:  tenant,
		Narrative: req.Narrative,
		Debits:    debits,
		Credits:   credits,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entryResponse{JournalID: entry.ID.String(), Status: string(entry.Status)})
}

// Post handles POST /journal-entries/{id}/post.
func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	tenant := internalshared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.Post(r.Context(), PostInput{TenantID: tenant, EntryID: id})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entryResponse{JournalID: entry.ID.String(), Status: string(entry.Status)})
}

// Cancel handles POST /journal-entries/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenant := internalshared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.Cancel(r.Context(), CancelInput{TenantID: tenant, EntryID: id})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entryResponse{JournalID: entry.ID.String(), Status: string(entry.Status)})
}

// Get handles GET /journal-entries/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := internalshared.TenantFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

// List handles GET /journal-entries.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenant := internalshared.TenantFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.List(r.Context(), tenant, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrEmptySide),
		errors.Is(err, shared.ErrNonPositiveAmount),
		errors.Is(err, shared.ErrCurrencyMismatch),
		errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInsufficientFunds),
		errors.Is(err, shared.ErrInactiveAccount),
		errors.Is(err, shared.ErrInvalidStatus):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Posting Rejected", err.Error())
	case errors.Is(err, shared.ErrEntryNotFound), errors.Is(err, shared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConcurrencyConflict):
		httpx.Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	case errors.Is(err, shared.ErrPersistence):
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "operation aborted, safe to retry")
	default:
		h.logger.Error("journal entry request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func toLines(reqs []lineRequest) ([]ledger.LineInput, error) {
	out := make([]ledger.LineInput, 0, len(reqs))
	for _, l := range reqs {
		id, err := uuid.Parse(l.AccountID)
		if err != nil {
			return nil, errors.New("journal line account_id is not a valid id")
		}
		out = append(out, ledger.LineInput{AccountID: id, AmountMinor: l.MinorAmount, Currency: l.Currency})
	}
	return out, nil
}
