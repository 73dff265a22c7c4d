package transfer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	internalshared "github.com/koboledger/koboledger/internal/shared"
)

func postTransfer(t *testing.T, h *Handler, tenant string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req = req.WithContext(internalshared.ContextWithTenant(req.Context(), tenant))
	}
	rec := httptest.NewRecorder()
	h.Execute(rec, req)
	return rec
}

func transferBody(src, dst uuid.UUID, key string, amount int64) map[string]any {
	return map[string]any{
		"idempotency_key": key,
		"source_account":  src.String(),
		"dest_account":    dst.String(),
		"minor_amount":    amount,
		"currency":        "NGN",
		"narrative":       "wallet top-up",
	}
}

func TestExecuteHandlerAccepted(t *testing.T) {
	svc, _, _, _, srcID, dstID := transferFixture(t)
	h := NewHandler(testLogger(), svc)

	rec := postTransfer(t, h, "tenant-1", transferBody(srcID, dstID, "K1", 5_000))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp executeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Accepted", resp.Status)
	require.NotEmpty(t, resp.JournalID)

	// The same key replayed answers Duplicate with the original journal id.
	rec = postTransfer(t, h, "tenant-1", transferBody(srcID, dstID, "K1", 5_000))
	require.Equal(t, http.StatusOK, rec.Code)

	var dup executeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dup))
	require.Equal(t, "Duplicate", dup.Status)
	require.Equal(t, resp.JournalID, dup.JournalID)
}

func TestExecuteHandlerMissingTenant(t *testing.T) {
	svc, _, _, _, srcID, dstID := transferFixture(t)
	h := NewHandler(testLogger(), svc)

	rec := postTransfer(t, h, "", transferBody(srcID, dstID, "K1", 100))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteHandlerValidation(t *testing.T) {
	svc, _, _, _, srcID, dstID := transferFixture(t)
	h := NewHandler(testLogger(), svc)

	body := transferBody(srcID, dstID, "K1", 100)
	body["minor_amount"] = 0
	rec := postTransfer(t, h, "tenant-1", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body = transferBody(srcID, dstID, "K1", 100)
	body["currency"] = "NAIRA"
	rec = postTransfer(t, h, "tenant-1", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body = transferBody(srcID, dstID, "", 100)
	rec = postTransfer(t, h, "tenant-1", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body = transferBody(srcID, dstID, "K1", 100)
	body["source_account"] = "not-a-uuid"
	rec = postTransfer(t, h, "tenant-1", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteHandlerDomainErrors(t *testing.T) {
	svc, _, _, _, srcID, dstID := transferFixture(t)
	h := NewHandler(testLogger(), svc)

	rec := postTransfer(t, h, "tenant-1", transferBody(srcID, dstID, "K1", 5_001))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = postTransfer(t, h, "tenant-1", transferBody(srcID, uuid.New(), "K2", 100))
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Unknown tenant cannot see the accounts.
	rec = postTransfer(t, h, "tenant-2", transferBody(srcID, dstID, "K3", 100))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteHandlerMalformedBody(t *testing.T) {
	svc, _, _, _, _, _ := transferFixture(t)
	h := NewHandler(testLogger(), svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", bytes.NewReader([]byte("{not json")))
	req = req.WithContext(internalshared.ContextWithTenant(req.Context(), "tenant-1"))
	rec := httptest.NewRecorder()
	h.Execute(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
