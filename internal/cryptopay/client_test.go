package cryptopay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(ts *httptest.Server) *Client {
	c := NewClient("test-token", 85.0)
	c.baseURL = ts.URL
	return c
}

func TestCreateInvoice_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/createInvoice" {
			t.Fatalf("path = %s, want /createInvoice", r.URL.Path)
		}
		if got := r.Header.Get("Crypto-Pay-API-Token"); got != "test-token" {
			t.Fatalf("token header = %q", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["asset"] != "USDT" {
			t.Fatalf("asset = %v, want USDT", req["asset"])
		}
		// 150 RUB / 85 = 1.7647 -> 1.76
		if req["amount"] != "1.76" {
			t.Fatalf("amount = %v, want 1.76", req["amount"])
		}
		if req["allow_anonymous"] != false {
			t.Fatalf("allow_anonymous = %v, want false", req["allow_anonymous"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"invoice_id":12345,"pay_url":"https://t.me/CryptoBot?start=IV12345","amount":"1.76","asset":"USDT"}}`))
	}))
	defer ts.Close()

	client := newTestClient(ts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	inv, err := client.CreateInvoice(ctx, 150.0, "Заказ #1 | stars")
	if err != nil {
		t.Fatalf("CreateInvoice error: %v", err)
	}
	if inv.ID != "12345" {
		t.Fatalf("invoice id = %q, want 12345", inv.ID)
	}
	if inv.PayURL == "" {
		t.Fatalf("pay url is empty")
	}
	if inv.Asset != "USDT" {
		t.Fatalf("asset = %q, want USDT", inv.Asset)
	}
}

func TestCreateInvoice_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"error":{"name":"AMOUNT_TOO_SMALL"}}`))
	}))
	defer ts.Close()

	client := newTestClient(ts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.CreateInvoice(ctx, 1.0, "x")
	if err == nil {
		t.Fatalf("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Name != "AMOUNT_TOO_SMALL" {
		t.Fatalf("error name = %q", apiErr.Name)
	}
}

func TestCreateInvoice_TruncatesDescription(t *testing.T) {
	var gotDescription string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotDescription, _ = req["description"].(string)

		w.Write([]byte(`{"ok":true,"result":{"invoice_id":1,"pay_url":"u","amount":"1.00","asset":"USDT"}}`))
	}))
	defer ts.Close()

	client := newTestClient(ts)

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := client.CreateInvoice(ctx, 100.0, string(long)); err != nil {
		t.Fatalf("CreateInvoice error: %v", err)
	}
	if len(gotDescription) != 1024 {
		t.Fatalf("description length = %d, want 1024", len(gotDescription))
	}
}

func TestGetInvoiceStatus_Paid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/getInvoices" {
			t.Fatalf("path = %s, want /getInvoices", r.URL.Path)
		}
		if got := r.URL.Query().Get("invoice_ids"); got != "12345" {
			t.Fatalf("invoice_ids = %q, want 12345", got)
		}

		w.Write([]byte(`{"ok":true,"result":{"items":[{"invoice_id":12345,"status":"paid","paid_at":"2026-08-30T10:00:00Z","amount":"1.76"}]}}`))
	}))
	defer ts.Close()

	client := newTestClient(ts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	st, err := client.GetInvoiceStatus(ctx, "12345")
	if err != nil {
		t.Fatalf("GetInvoiceStatus error: %v", err)
	}
	if st.Status != InvoiceStatusPaid {
		t.Fatalf("status = %q, want paid", st.Status)
	}
	if st.PaidAt == "" {
		t.Fatalf("paid_at is empty")
	}
}

func TestGetInvoiceStatus_Empty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"result":{"items":[]}}`))
	}))
	defer ts.Close()

	client := newTestClient(ts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := client.GetInvoiceStatus(ctx, "404"); err == nil {
		t.Fatalf("expected error for missing invoice")
	}
}
