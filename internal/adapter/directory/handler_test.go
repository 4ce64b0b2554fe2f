package directory

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fieldnote/internal/domain"
)

func newTestHandler(t *testing.T) (*Handler, *SQLiteDirectory) {
	t.Helper()
	store := newTestDirectory(t)
	return NewHandler(store, slog.New(slog.DiscardHandler)), store
}

func TestHandleLookup(t *testing.T) {
	h, store := newTestHandler(t)
	identity := domain.TenantIdentity{CustomerID: "cust_1", CompanyID: "comp_1", CompanyName: "Acme"}
	if err := store.Upsert(t.Context(), "+14155552671", identity); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lookup",
		strings.NewReader(`{"phone_number":"whatsapp:+14155552671"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var got domain.TenantIdentity
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != identity {
		t.Errorf("identity = %+v", got)
	}
}

func TestHandleLookup_NotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lookup",
		strings.NewReader(`{"phone_number":"+10000000000"}`)))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] == "" {
		t.Error("error body missing")
	}
}

func TestHandleLookup_MissingPhone(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lookup", strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHandleUpsertAndRemove(t *testing.T) {
	h, store := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/customers",
		strings.NewReader(`{"phone_number":"+14155552671","customer_id":"cust_9","company_id":"comp_9","company_name":"Nine"}`)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("upsert status = %d, body = %s", rec.Code, rec.Body)
	}

	got, err := store.FindByPhone(t.Context(), "+14155552671")
	if err != nil || got.CustomerID != "cust_9" {
		t.Fatalf("FindByPhone = %+v, %v", got, err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/customers/+14155552671", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d", rec.Code)
	}
	if _, err := store.FindByPhone(t.Context(), "+14155552671"); err == nil {
		t.Error("customer should be removed")
	}
}

func TestHandleUpsert_Invalid(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/customers",
		strings.NewReader(`{"phone_number":"+1","customer_id":""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}
