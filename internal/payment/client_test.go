package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateCheckoutSession_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Fatalf("path = %s, want /v1/checkout/sessions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test_123" {
			t.Fatalf("authorization = %q, want bearer key", auth)
		}

		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("mode"); got != "payment" {
			t.Fatalf("mode = %q, want payment", got)
		}
		if got := r.PostForm.Get("customer_email"); got != "buyer@example.com" {
			t.Fatalf("customer_email = %q", got)
		}
		if got := r.PostForm.Get("metadata[userId]"); got != "7" {
			t.Fatalf("metadata[userId] = %q, want 7", got)
		}
		if got := r.PostForm.Get("line_items[0][price_data][unit_amount]"); got != "4500" {
			t.Fatalf("unit_amount = %q, want 4500", got)
		}
		if got := r.PostForm.Get("line_items[0][price_data][product_data][metadata][productId]"); got != "11" {
			t.Fatalf("product metadata = %q, want 11", got)
		}
		if got := r.PostForm.Get("line_items[0][quantity]"); got != "2" {
			t.Fatalf("quantity = %q, want 2", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://pay.example/cs_test_1","payment_status":"unpaid"}`))
	}))
	defer ts.Close()

	client := NewClient("sk_test_123", ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	session, err := client.CreateCheckoutSession(ctx, SessionParams{
		CustomerEmail: "buyer@example.com",
		SuccessURL:    "https://shop.example/success",
		CancelURL:     "https://shop.example/cancel",
		Metadata:      map[string]string{"userId": "7", "addressId": "3"},
		LineItems: []SessionLineItem{
			{Name: "Milk", ProductID: "11", UnitAmount: 4500, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession error: %v", err)
	}
	if session.ID != "cs_test_1" {
		t.Fatalf("session id = %q, want cs_test_1", session.ID)
	}
	if session.URL == "" {
		t.Fatalf("session url is empty")
	}
}

func TestCreateCheckoutSession_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","message":"Your card was declined."}}`))
	}))
	defer ts.Close()

	client := NewClient("sk_test_123", ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.CreateCheckoutSession(ctx, SessionParams{})
	if err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}

func TestListLineItems_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/v1/checkout/sessions/cs_test_1/line_items" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"li_1","quantity":2,"price":{"product":"prod_1","unit_amount":4500}}]}`))
	}))
	defer ts.Close()

	client := NewClient("sk_test_123", ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	items, err := client.ListLineItems(ctx, "cs_test_1")
	if err != nil {
		t.Fatalf("ListLineItems error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	if items[0].Price.Product != "prod_1" || items[0].Price.UnitAmount != 4500 {
		t.Fatalf("unexpected line item: %+v", items[0])
	}
	if items[0].Quantity != 2 {
		t.Fatalf("quantity = %d, want 2", items[0].Quantity)
	}
}

func TestRetrieveProduct_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/products/prod_1" {
			t.Fatalf("path = %s, want /v1/products/prod_1", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"prod_1","name":"Milk","images":["https://img.example/milk.png"],"metadata":{"productId":"11"}}`))
	}))
	defer ts.Close()

	client := NewClient("sk_test_123", ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	product, err := client.RetrieveProduct(ctx, "prod_1")
	if err != nil {
		t.Fatalf("RetrieveProduct error: %v", err)
	}
	if product.Name != "Milk" {
		t.Fatalf("name = %q, want Milk", product.Name)
	}
	if product.Metadata["productId"] != "11" {
		t.Fatalf("metadata productId = %q, want 11", product.Metadata["productId"])
	}
}

func TestClient_NotConfigured(t *testing.T) {
	var client *Client

	ctx := context.Background()

	if _, err := client.CreateCheckoutSession(ctx, SessionParams{}); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := client.ListLineItems(ctx, "cs_1"); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := client.RetrieveProduct(ctx, "prod_1"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
