package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_CreateCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/checkout" {
			t.Errorf("request = %s %s, want POST /api/checkout", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "click-1" {
			t.Errorf("Idempotency-Key = %q, want click-1", got)
		}
		if ck, err := r.Cookie(DefaultAccessCookie); err != nil || ck.Value != "access-1" {
			t.Errorf("access cookie = %v, %v, want access-1", ck, err)
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body) != 1 || body["priceId"] != "price_123" {
			t.Errorf("body = %v, want only priceId", body)
		}

		json.NewEncoder(w).Encode(map[string]string{"sessionId": "cs_1", "url": "https://pay.example/cs_1"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	c.SetSession("access-1", "refresh-1")

	session, err := c.CreateCheckout(context.Background(), CheckoutRequest{PriceID: "price_123", IdempotencyKey: "click-1"})
	if err != nil {
		t.Fatalf("CreateCheckout() error = %v", err)
	}
	if session.SessionID != "cs_1" || session.URL != "https://pay.example/cs_1" {
		t.Errorf("session = %+v", session)
	}
}

func TestClient_SubscriptionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("session_id"); got != "cs_1" {
			t.Errorf("session_id = %q, want cs_1", got)
		}
		http.SetCookie(w, &http.Cookie{Name: DefaultAccessCookie, Value: "access-2"})
		w.Write([]byte(`{"subscription":{"plan":"Monthly","status":"active","price":"$29","billingPeriod":"month",` +
			`"nextBillingDate":"2026-11-14","customerId":"cus_1","subscriptionId":"sub_1"},` +
			`"message":"Your subscription has been activated successfully!"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	c.SetSession("access-1", "refresh-1")

	status, err := c.SubscriptionStatus(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("SubscriptionStatus() error = %v", err)
	}
	if status.Subscription == nil {
		t.Fatal("Subscription = nil")
	}
	if status.Subscription.Plan != "Monthly" || status.Subscription.SubscriptionID == nil || *status.Subscription.SubscriptionID != "sub_1" {
		t.Errorf("Subscription = %+v", status.Subscription)
	}

	// a re-issued cookie replaces the stored token
	access, refresh := c.Session()
	if access != "access-2" || refresh != "refresh-1" {
		t.Errorf("Session() = %q, %q, want access-2, refresh-1", access, refresh)
	}
}

func TestClient_NoSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"subscription":null,"message":"No active subscription found."}`))
	}))
	defer srv.Close()

	status, err := NewClient(Config{BaseURL: srv.URL}).SubscriptionStatus(context.Background(), "")
	if err != nil {
		t.Fatalf("SubscriptionStatus() error = %v", err)
	}
	if status.Subscription != nil || status.Message != "No active subscription found." {
		t.Errorf("status = %+v", status)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		wantStatus   int
		wantCode     string
		wantMessage  string
		wantLocation string
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(ErrorCodeHeader, "UNAUTHORIZED")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Not authenticated"}`))
			},
			wantStatus:  http.StatusUnauthorized,
			wantCode:    "UNAUTHORIZED",
			wantMessage: "Not authenticated",
		},
		{
			name: "conflict",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error":"A checkout is already in progress"}`))
			},
			wantStatus:  http.StatusConflict,
			wantMessage: "A checkout is already in progress",
		},
		{
			name: "non-json body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte("upstream down"))
			},
			wantStatus:  http.StatusBadGateway,
			wantMessage: "Bad Gateway",
		},
		{
			name: "gate redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/signin", http.StatusTemporaryRedirect)
			},
			wantStatus:   http.StatusTemporaryRedirect,
			wantLocation: "/signin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(Config{BaseURL: srv.URL}).SubscriptionStatus(context.Background(), "")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.wantStatus)
			}
			if tt.wantCode != "" && apiErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if tt.wantMessage != "" && apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if apiErr.Location != tt.wantLocation {
				t.Errorf("Location = %q, want %q", apiErr.Location, tt.wantLocation)
			}
		})
	}
}

func TestAPIError_Predicates(t *testing.T) {
	tests := []struct {
		status int
		check  func(*APIError) bool
	}{
		{http.StatusUnauthorized, (*APIError).IsUnauthorized},
		{http.StatusConflict, (*APIError).IsConflict},
		{http.StatusNotFound, (*APIError).IsNotFound},
		{http.StatusBadGateway, (*APIError).IsServerError},
	}
	for _, tt := range tests {
		if !tt.check(&APIError{StatusCode: tt.status}) {
			t.Errorf("predicate for %d returned false", tt.status)
		}
	}
}
