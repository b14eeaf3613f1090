package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/finhooks/ledgerlink/internal/deliveries"
	"github.com/finhooks/ledgerlink/internal/storage"
	"github.com/finhooks/ledgerlink/internal/token"
)

// mockDispatcher is a hand-rolled EventDispatcher for testing.
type mockDispatcher struct {
	dispatchFn func(ctx context.Context, ev Event) error
	calls      int
	lastEvent  Event
}

func (m *mockDispatcher) Dispatch(ctx context.Context, ev Event) error {
	m.calls++
	m.lastEvent = ev
	if m.dispatchFn != nil {
		return m.dispatchFn(ctx, ev)
	}
	return nil
}

func testServer(t *testing.T, tokens TokenStore, dispatcher EventDispatcher, deliveryLog DeliveryLog) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(Config{
		Listen:          "127.0.0.1:0",
		Path:            "/webhook/notion",
		SignatureHeader: "X-Notion-Signature",
		MaxBodySize:     1 << 20,
		ServiceName:     "ledgerlink",
		Version:         "test",
		Checks: Checks{
			NotionTokenSet:        true,
			DayDatabaseConfigured: true,
		},
	}, tokens, dispatcher, deliveryLog, logger)
}

func postWebhook(t *testing.T, s *Server, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook/notion", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Notion-Signature", signature)
	}
	rec := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func TestHandshakeStoresTokenAndAcknowledges(t *testing.T) {
	tokens := token.NewStore(nil, "")
	md := &mockDispatcher{}
	s := testServer(t, tokens, md, nil)

	rec := postWebhook(t, s, []byte(`{"verification_token":"secret-t1"}`), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp AckResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("Success = false")
	}
	if got := tokens.Get(context.Background()); got != "secret-t1" {
		t.Errorf("stored token = %q, want secret-t1", got)
	}
	if md.calls != 0 {
		t.Errorf("dispatcher calls = %d, want 0", md.calls)
	}
}

func TestEventValidatedAgainstHandshakeToken(t *testing.T) {
	tokens := token.NewStore(nil, "")
	md := &mockDispatcher{}
	s := testServer(t, tokens, md, nil)

	postWebhook(t, s, []byte(`{"verification_token":"secret-t1"}`), "")

	body := []byte(`{"entity":{"id":"p-1","type":"page"},"type":"page.updated"}`)
	rec := postWebhook(t, s, body, computeSignature(body, "secret-t1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if md.calls != 1 {
		t.Fatalf("dispatcher calls = %d, want 1", md.calls)
	}
	if md.lastEvent.EntityID != "p-1" || md.lastEvent.EntityType != "page" {
		t.Errorf("event = %+v", md.lastEvent)
	}
}

func TestLaterHandshakeReplacesEarlierToken(t *testing.T) {
	tokens := token.NewStore(nil, "")
	md := &mockDispatcher{}
	s := testServer(t, tokens, md, nil)

	postWebhook(t, s, []byte(`{"verification_token":"t1"}`), "")
	postWebhook(t, s, []byte(`{"verification_token":"t2"}`), "")

	body := []byte(`{"entity":{"id":"p-1","type":"page"},"type":"page.updated"}`)

	// A signature under the replaced secret no longer validates.
	rec := postWebhook(t, s, body, computeSignature(body, "t1"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old-secret status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = postWebhook(t, s, body, computeSignature(body, "t2"))
	if rec.Code != http.StatusOK {
		t.Fatalf("new-secret status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestMissingSignatureRejected(t *testing.T) {
	tokens := token.NewStore(nil, "configured-secret")
	md := &mockDispatcher{}
	s := testServer(t, tokens, md, nil)

	body := []byte(`{"entity":{"id":"p-1","type":"page"},"type":"page.updated"}`)
	rec := postWebhook(t, s, body, "")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if md.calls != 0 {
		t.Errorf("dispatcher calls = %d, want 0", md.calls)
	}
}

func TestWrongSecretSignatureRejectedWithoutProcessing(t *testing.T) {
	tokens := token.NewStore(nil, "right-secret")
	md := &mockDispatcher{}
	s := testServer(t, tokens, md, nil)

	body := []byte(`{"entity":{"id":"p-1","type":"page"},"type":"page.updated"}`)
	rec := postWebhook(t, s, body, computeSignature(body, "wrong-secret"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if md.calls != 0 {
		t.Errorf("dispatcher calls = %d, want 0 (no processing on auth failure)", md.calls)
	}
}

func TestNoSecretAvailableFailsClosed(t *testing.T) {
	tokens := token.NewStore(nil, "")
	md := &mockDispatcher{}
	s := testServer(t, tokens, md, nil)

	body := []byte(`{"entity":{"id":"p-1","type":"page"},"type":"page.updated"}`)
	rec := postWebhook(t, s, body, computeSignature(body, "anything"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if md.calls != 0 {
		t.Errorf("dispatcher calls = %d, want 0", md.calls)
	}
}

func TestUnparseableBodyIsBadRequest(t *testing.T) {
	tokens := token.NewStore(nil, "secret")
	s := testServer(t, tokens, &mockDispatcher{}, nil)

	rec := postWebhook(t, s, []byte(`{not json`), "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestShapeInvalidEventAcknowledgedWithoutDispatch(t *testing.T) {
	tokens := token.NewStore(nil, "secret")
	md := &mockDispatcher{}
	s := testServer(t, tokens, md, nil)

	// Authenticated, but missing entity.id.
	body := []byte(`{"entity":{"type":"page"},"type":"page.updated"}`)
	rec := postWebhook(t, s, body, computeSignature(body, "secret"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if md.calls != 0 {
		t.Errorf("dispatcher calls = %d, want 0 (shape-invalid events never reach dispatch)", md.calls)
	}
}

func TestDispatchFailureIsProcessingError(t *testing.T) {
	tokens := token.NewStore(nil, "secret")
	md := &mockDispatcher{
		dispatchFn: func(ctx context.Context, ev Event) error {
			return context.DeadlineExceeded
		},
	}
	s := testServer(t, tokens, md, nil)

	body := []byte(`{"entity":{"id":"p-1","type":"page"},"type":"page.updated"}`)
	rec := postWebhook(t, s, body, computeSignature(body, "secret"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Error("Success = true on processing error")
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	tokens := token.NewStore(nil, "secret")
	s := testServer(t, tokens, &mockDispatcher{}, nil)
	s.config.MaxBodySize = 64

	body := bytes.Repeat([]byte("a"), 200)
	rec := postWebhook(t, s, body, "")

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestStatusReportsEstablishmentWithoutSecret(t *testing.T) {
	tokens := token.NewStore(nil, "")
	s := testServer(t, tokens, &mockDispatcher{}, nil)
	router := s.setupRoutes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhook/status", nil))

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Verified {
		t.Error("Verified = true before any handshake")
	}

	tokens.Set(context.Background(), "t1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/webhook/status", nil))
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Verified {
		t.Error("Verified = false after handshake")
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("t1")) {
		t.Error("status response must not reveal the secret")
	}
}

func TestTestWebhookEchoesBody(t *testing.T) {
	tokens := token.NewStore(nil, "")
	s := testServer(t, tokens, &mockDispatcher{}, nil)

	req := httptest.NewRequest("POST", "/webhook/test", bytes.NewReader([]byte(`{"ping":true}`)))
	rec := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	echoed, ok := resp["body"].(map[string]any)
	if !ok || echoed["ping"] != true {
		t.Errorf("body = %#v", resp["body"])
	}
}

func TestHealthzAndDeliveryLog(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	tokens := token.NewStore(db, "")
	deliveryLog := deliveries.New(db)
	s := testServer(t, tokens, &mockDispatcher{}, deliveryLog)
	router := s.setupRoutes()

	// Handshake and one processed event both land in the log.
	postWebhook(t, s, []byte(`{"verification_token":"secret"}`), "")
	body := []byte(`{"entity":{"id":"p-1","type":"page"},"type":"page.updated"}`)
	postWebhook(t, s, body, computeSignature(body, "secret"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp HealthzResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q", resp.Status)
	}
	if resp.DeliveryCount != 2 {
		t.Errorf("DeliveryCount = %d, want 2", resp.DeliveryCount)
	}
	if !resp.Checks["verification_token"] {
		t.Error("verification_token check = false after handshake")
	}
}

func TestRootBanner(t *testing.T) {
	s := testServer(t, token.NewStore(nil, ""), &mockDispatcher{}, nil)

	rec := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	var resp RootResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "running" {
		t.Errorf("Status = %q", resp.Status)
	}
	if resp.Message != "ledgerlink" {
		t.Errorf("Message = %q", resp.Message)
	}
}
