package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/handler"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/order"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/store"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/variant"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/workflow"
)

// --- Mock sender ---

type mockSender struct {
	mu       sync.Mutex
	payloads []order.Payload
	err      error
}

func (m *mockSender) Send(_ context.Context, _, _ string, p order.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, p)
	return m.err
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

const testProfiles = `
default: classic
variants:
  - name: classic
    endpoint: https://sink.example/exec
    id_prefix: TILE
    deep_link: https://line.me/ti/p/@tileparktw
  - name: confirm
    endpoint: https://sink.example/exec
    id_prefix: TILE
    deep_link: https://line.me/ti/p/@tileparktw
    options:
      enable_confirmation_step: true
      enable_clipboard_summary: true
`

// --- Helpers ---

func newTestService(t *testing.T, sender *mockSender) *workflow.Service {
	t.Helper()
	reg, err := variant.Parse([]byte(testProfiles))
	if err != nil {
		t.Fatalf("parse profiles: %v", err)
	}
	svc := workflow.NewService(store.NewMemoryStore(), sender, reg, time.UTC)
	svc.SetClock(
		func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) },
		func(int) int { return 234 },
	)
	return svc
}

func setupSessionRouter(svc handler.SessionService, limit func(http.Handler) http.Handler) *chi.Mux {
	h := handler.NewSessionHandler(svc, limit)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// startSession opens a session and returns its id and first item id.
func startSession(t *testing.T, router http.Handler, variantName string) (string, string) {
	t.Helper()
	rr := doRequest(t, router, "POST", "/variants/"+variantName+"/sessions", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("start session: got %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	draft := resp["draft"].(map[string]interface{})
	items := draft["items"].([]interface{})
	return resp["id"].(string), items[0].(map[string]interface{})["id"].(string)
}

// fillSession completes every required field.
func fillSession(t *testing.T, router http.Handler, id, itemID string) {
	t.Helper()
	rr := doRequest(t, router, "PATCH", "/sessions/"+id+"/items/"+itemID, map[string]string{
		"name": "GX-100", "qty": "50", "note": "Lot A",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update item: got %d: %s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, router, "PATCH", "/sessions/"+id+"/draft", map[string]string{
		"deliveryContact": "Mr. Chen",
		"deliveryPhone":   "0922000111",
		"deliveryAddress": "123 Main Rd",
		"orderCompany":    "ABC Co",
		"orderContact":    "Mr. Lee",
		"orderPhone":      "0912345678",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("edit draft: got %d: %s", rr.Code, rr.Body.String())
	}
}

// --- Tests ---

func TestStartSession(t *testing.T) {
	router := setupSessionRouter(newTestService(t, &mockSender{}), nil)

	rr := doRequest(t, router, "POST", "/variants/classic/sessions", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusCreated)
	}
	resp := decodeJSON(t, rr)
	if resp["phase"] != "EDITING" {
		t.Errorf("phase: got %v, want EDITING", resp["phase"])
	}
	draft := resp["draft"].(map[string]interface{})
	if draft["orderType"] != "新案場" {
		t.Errorf("orderType: got %v, want 新案場", draft["orderType"])
	}
	if got := len(draft["items"].([]interface{})); got != 1 {
		t.Errorf("items: got %d, want 1", got)
	}
}

func TestStartSessionUnknownVariant(t *testing.T) {
	router := setupSessionRouter(newTestService(t, &mockSender{}), nil)

	rr := doRequest(t, router, "POST", "/variants/nope/sessions", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestGetSessionInvalidID(t *testing.T) {
	router := setupSessionRouter(newTestService(t, &mockSender{}), nil)

	rr := doRequest(t, router, "GET", "/sessions/not-a-uuid", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	router := setupSessionRouter(newTestService(t, &mockSender{}), nil)

	rr := doRequest(t, router, "GET", "/sessions/6f1d3c2a-8b4e-4f7a-9c51-2d0e7a9b3f10", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestEditDraftRejectsFreeTextEnum(t *testing.T) {
	router := setupSessionRouter(newTestService(t, &mockSender{}), nil)
	id, _ := startSession(t, router, "classic")

	rr := doRequest(t, router, "PATCH", "/sessions/"+id+"/draft", map[string]string{"orderType": "whatever"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRemoveLastItemConflict(t *testing.T) {
	router := setupSessionRouter(newTestService(t, &mockSender{}), nil)
	id, itemID := startSession(t, router, "classic")

	rr := doRequest(t, router, "DELETE", "/sessions/"+id+"/items/"+itemID, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}

	rr = doRequest(t, router, "POST", "/sessions/"+id+"/items", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add item: got %d, want %d", rr.Code, http.StatusCreated)
	}
	added := decodeJSON(t, rr)["item"].(map[string]interface{})["id"].(string)

	rr = doRequest(t, router, "DELETE", "/sessions/"+id+"/items/"+itemID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("remove item: got %d, want %d", rr.Code, http.StatusOK)
	}
	items := decodeJSON(t, rr)["draft"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 || items[0].(map[string]interface{})["id"] != added {
		t.Errorf("remaining items: got %v, want only %s", items, added)
	}
}

func TestRemoveUnknownItem(t *testing.T) {
	router := setupSessionRouter(newTestService(t, &mockSender{}), nil)
	id, _ := startSession(t, router, "classic")

	rr := doRequest(t, router, "DELETE", "/sessions/"+id+"/items/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSubmitMissingFields(t *testing.T) {
	sender := &mockSender{}
	router := setupSessionRouter(newTestService(t, sender), nil)
	id, _ := startSession(t, router, "classic")

	rr := doRequest(t, router, "POST", "/sessions/"+id+"/submit", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	resp := decodeJSON(t, rr)
	missing, ok := resp["missing"].([]interface{})
	if !ok || len(missing) == 0 {
		t.Fatalf("expected missing field list, got %v", resp)
	}
	if sender.count() != 0 {
		t.Errorf("sender called %d times, want 0", sender.count())
	}
}

func TestSubmitDirect(t *testing.T) {
	sender := &mockSender{}
	router := setupSessionRouter(newTestService(t, sender), nil)
	id, itemID := startSession(t, router, "classic")
	fillSession(t, router, id, itemID)

	rr := doRequest(t, router, "POST", "/sessions/"+id+"/submit", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	if resp["phase"] != "SUBMITTED" {
		t.Errorf("phase: got %v, want SUBMITTED", resp["phase"])
	}
	result := resp["result"].(map[string]interface{})
	if result["orderId"] != "TILE-06011234" {
		t.Errorf("orderId: got %v, want TILE-06011234", result["orderId"])
	}
	if result["deepLink"] != "https://line.me/ti/p/@tileparktw" {
		t.Errorf("deepLink: got %v", result["deepLink"])
	}
	if _, ok := result["summary"]; ok {
		t.Error("classic variant should not include a summary")
	}

	rr = doRequest(t, router, "POST", "/sessions/"+id+"/submit", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("second submit: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if sender.count() != 1 {
		t.Errorf("sender called %d times, want 1", sender.count())
	}

	rr = doRequest(t, router, "GET", "/sessions/"+id+"/summary", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("summary on classic: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSubmitFailureGenericMessage(t *testing.T) {
	sender := &mockSender{err: errors.New("dial tcp: connection refused")}
	router := setupSessionRouter(newTestService(t, sender), nil)
	id, itemID := startSession(t, router, "classic")
	fillSession(t, router, id, itemID)

	rr := doRequest(t, router, "POST", "/sessions/"+id+"/submit", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadGateway)
	}
	resp := decodeJSON(t, rr)
	if resp["error"] != "系統忙碌中，請稍後再試或聯繫客服。" {
		t.Errorf("error: got %v", resp["error"])
	}

	rr = doRequest(t, router, "GET", "/sessions/"+id, nil)
	resp = decodeJSON(t, rr)
	if resp["phase"] != "EDITING" {
		t.Errorf("phase after failure: got %v, want EDITING", resp["phase"])
	}
	customer := resp["draft"].(map[string]interface{})["customer"].(map[string]interface{})
	if customer["company"] != "ABC Co" {
		t.Errorf("draft lost after failure: %v", customer)
	}
}

func TestConfirmFlowWithSummary(t *testing.T) {
	sender := &mockSender{}
	router := setupSessionRouter(newTestService(t, sender), nil)
	id, itemID := startSession(t, router, "confirm")
	fillSession(t, router, id, itemID)

	rr := doRequest(t, router, "POST", "/sessions/"+id+"/submit", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("submit: got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	if resp["phase"] != "CONFIRMING" {
		t.Fatalf("phase: got %v, want CONFIRMING", resp["phase"])
	}
	if resp["notice"] == "" || resp["notice"] == nil {
		t.Error("expected confirmation notice")
	}

	rr = doRequest(t, router, "PATCH", "/sessions/"+id+"/draft", map[string]string{"orderCompany": "Other"})
	if rr.Code != http.StatusConflict {
		t.Errorf("edit while confirming: got %d, want %d", rr.Code, http.StatusConflict)
	}

	rr = doRequest(t, router, "POST", "/sessions/"+id+"/cancel", nil)
	if rr.Code != http.StatusOK || decodeJSON(t, rr)["phase"] != "EDITING" {
		t.Fatalf("cancel: got %d", rr.Code)
	}

	rr = doRequest(t, router, "POST", "/sessions/"+id+"/submit", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("resubmit: got %d", rr.Code)
	}
	rr = doRequest(t, router, "POST", "/sessions/"+id+"/confirm", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm: got %d: %s", rr.Code, rr.Body.String())
	}
	result := decodeJSON(t, rr)["result"].(map[string]interface{})
	if !strings.Contains(result["summary"].(string), "GX-100") {
		t.Errorf("summary missing item: %v", result["summary"])
	}

	rr = doRequest(t, router, "GET", "/sessions/"+id+"/summary", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("summary: got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type: got %q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{"ABC Co", "GX-100", "50", "2025-06-01", "TILE-06011234"} {
		if !strings.Contains(body, want) {
			t.Errorf("summary missing %q:\n%s", want, body)
		}
	}
	if sender.count() != 1 {
		t.Errorf("sender called %d times, want 1", sender.count())
	}
}

func TestConfirmWithoutPendingConfirmation(t *testing.T) {
	router := setupSessionRouter(newTestService(t, &mockSender{}), nil)
	id, _ := startSession(t, router, "confirm")

	rr := doRequest(t, router, "POST", "/sessions/"+id+"/confirm", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestSubmitRoutesUseLimiter(t *testing.T) {
	blocked := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	router := setupSessionRouter(newTestService(t, &mockSender{}), blocked)
	id, _ := startSession(t, router, "classic")

	for _, path := range []string{"/submit", "/confirm"} {
		rr := doRequest(t, router, "POST", "/sessions/"+id+path, nil)
		if rr.Code != http.StatusTooManyRequests {
			t.Errorf("%s: got %d, want %d", path, rr.Code, http.StatusTooManyRequests)
		}
	}
	rr := doRequest(t, router, "GET", "/sessions/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("get should not be limited: got %d", rr.Code)
	}
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
