package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kassa/internal/backend"
	"kassa/internal/cart"
	"kassa/internal/connectivity"
	"kassa/internal/service"
	"kassa/internal/storage"
	"kassa/internal/sync"
)

func setupServer(t *testing.T, initial connectivity.Status) (*Server, *connectivity.Signal) {
	t.Helper()
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"id":1,"name":"Aspirin"}]`))
	}))
	t.Cleanup(stub.Close)

	store := storage.NewMemoryStore()
	client := backend.New(stub.URL, time.Second)
	signal := connectivity.NewSignal(initial)
	outbox, err := sync.NewOutbox(context.Background(), store, client)
	if err != nil {
		t.Fatalf("outbox: %v", err)
	}
	fetcher := sync.NewFetcher(store, client, signal)
	pos := service.NewPOSService(cart.New(), fetcher, outbox, client, signal, "b1")
	return NewServer(pos), signal
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestCartFlow(t *testing.T) {
	s, _ := setupServer(t, connectivity.Online)

	// add
	w := doJSON(t, s, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"server_id": 1, "name": "Aspirin", "unit_price": 100, "tax_rate": 0.15,
		"kind": "product", "stock": 5, "quantity": 2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add code %v: %s", w.Code, w.Body.String())
	}

	// get cart
	w = doJSON(t, s, http.MethodGet, "/api/v1/cart", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cart code %v", w.Code)
	}
	var cartResp struct {
		Total float64 `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &cartResp); err != nil {
		t.Fatalf("cart body: %v", err)
	}
	if cartResp.Total != 230 {
		t.Fatalf("total expected 230, got %v", cartResp.Total)
	}

	// remove
	w = doJSON(t, s, http.MethodDelete, "/api/v1/cart/items/srv-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove code %v", w.Code)
	}
}

func TestOutOfStockDecisionOverHTTP(t *testing.T) {
	s, _ := setupServer(t, connectivity.Online)

	item := map[string]any{
		"server_id": 2, "name": "Rare", "unit_price": 10, "tax_rate": 0,
		"kind": "product", "stock": 0, "quantity": 1,
	}
	w := doJSON(t, s, http.MethodPost, "/api/v1/cart/items", item)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 decision point, got %v", w.Code)
	}
	var resp struct {
		DecisionRequired bool `json:"decision_required"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp.DecisionRequired {
		t.Fatalf("expected decision_required flag: %s", w.Body.String())
	}

	// повтор с force — предзаказ принят
	item["force"] = true
	w = doJSON(t, s, http.MethodPost, "/api/v1/cart/items", item)
	if w.Code != http.StatusOK {
		t.Fatalf("force add code %v: %s", w.Code, w.Body.String())
	}
}

func TestCheckoutQueuedOffline(t *testing.T) {
	s, _ := setupServer(t, connectivity.Offline)

	w := doJSON(t, s, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"server_id": 1, "name": "A", "unit_price": 10, "tax_rate": 0,
		"kind": "product", "stock": 5, "quantity": 1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add code %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/checkout", map[string]any{
		"payment": "cash", "tendered": 10,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("offline checkout expected 202, got %v: %s", w.Code, w.Body.String())
	}

	// статус синхронизации отражает отложенную запись
	w = doJSON(t, s, http.MethodGet, "/api/v1/sync/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status code %v", w.Code)
	}
	var st service.SyncStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if st.Online || st.Pending != 1 {
		t.Fatalf("unexpected sync status: %+v", st)
	}
}

func TestManualFlushDrainsQueue(t *testing.T) {
	s, signal := setupServer(t, connectivity.Offline)

	doJSON(t, s, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"server_id": 1, "name": "A", "unit_price": 10, "tax_rate": 0,
		"kind": "product", "stock": 5, "quantity": 1,
	})
	w := doJSON(t, s, http.MethodPost, "/api/v1/checkout", map[string]any{
		"payment": "cash", "tendered": 10,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("checkout code %v", w.Code)
	}

	signal.Set(connectivity.Online)
	// ручной дренаж; возможный фоновой проход от перехода отражается как
	// skipped и запись всё равно уходит
	deadline := time.Now().Add(2 * time.Second)
	for {
		w = doJSON(t, s, http.MethodPost, "/api/v1/sync/flush", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("flush code %v", w.Code)
		}
		var report struct {
			Remaining int  `json:"remaining"`
			Skipped   bool `json:"skipped"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
			t.Fatalf("flush body: %v", err)
		}
		if !report.Skipped && report.Remaining == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained: %s", w.Body.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCatalogCacheThrough(t *testing.T) {
	s, signal := setupServer(t, connectivity.Online)

	w := doJSON(t, s, http.MethodGet, "/api/v1/catalog", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("catalog code %v", w.Code)
	}
	var resp struct {
		FromCache bool `json:"from_cache"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("catalog body: %v", err)
	}
	if resp.FromCache {
		t.Fatalf("online read must be live")
	}

	signal.Set(connectivity.Offline)
	w = doJSON(t, s, http.MethodGet, "/api/v1/catalog", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("offline catalog code %v", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("catalog body: %v", err)
	}
	if !resp.FromCache {
		t.Fatalf("offline read must come from cache")
	}
}

func TestCatalogMissingOffline(t *testing.T) {
	s, _ := setupServer(t, connectivity.Offline)
	w := doJSON(t, s, http.MethodGet, "/api/v1/catalog", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with empty cache offline, got %v", w.Code)
	}
}

func TestBadRequests(t *testing.T) {
	s, _ := setupServer(t, connectivity.Online)

	w := doJSON(t, s, http.MethodPost, "/api/v1/cart/items", "not an object")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodDelete, "/api/v1/cart/items/bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad ident key, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/products/abc/restock", map[string]any{"quantity": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %v", w.Code)
	}

	// пустая корзина
	w = doJSON(t, s, http.MethodPost, "/api/v1/checkout", map[string]any{"payment": "cash", "tendered": 10})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %v", w.Code)
	}
}
