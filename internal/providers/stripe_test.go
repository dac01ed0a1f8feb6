package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/bizdesk/bizdesk/internal/domain/billing"
)

const testWebhookSecret = "whsec_test"

func sign(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func testProvider(t *testing.T) *StripeProvider {
	t.Helper()
	p, err := NewStripeProvider("sk_test_123", testWebhookSecret)
	if err != nil {
		t.Fatalf("NewStripeProvider() error = %v", err)
	}
	return p
}

// capturedRequest is what the fake Stripe API saw
type capturedRequest struct {
	method         string
	path           string
	form           url.Values
	idempotencyKey string
}

// newStripeServer starts a fake Stripe API answering every call with status
// and body, and returns a provider pointed at it
func newStripeServer(t *testing.T, status int, body string) (*StripeProvider, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		got.method = r.Method
		got.path = r.URL.Path
		got.form = r.PostForm
		got.idempotencyKey = r.Header.Get("Idempotency-Key")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	p := NewStripeProviderWithBackends("sk_test_123", testWebhookSecret, &stripe.Backends{API: backend})
	return p, got
}

func TestCreateCheckoutSession(t *testing.T) {
	p, got := newStripeServer(t, http.StatusOK,
		`{"id":"cs_test_1","object":"checkout.session","mode":"subscription","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)

	successURL := "https://bizdesk.example/dashboard?session_id={CHECKOUT_SESSION_ID}"
	cancelURL := "https://bizdesk.example/pricing"

	session, err := p.CreateCheckoutSession(context.Background(), billing.CheckoutParams{
		PriceID:         "price_123",
		Mode:            billing.ModeSubscription,
		CustomerEmail:   "owner@shop.example",
		ClientReference: "user-1",
		SuccessURL:      successURL,
		CancelURL:       cancelURL,
		IdempotencyKey:  "click-42",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession() error = %v", err)
	}
	if session.ID != "cs_test_1" || session.URL != "https://checkout.stripe.com/c/pay/cs_test_1" {
		t.Errorf("session = %+v", session)
	}
	if session.PriceID != "price_123" || session.Mode != billing.ModeSubscription {
		t.Errorf("session price/mode = %q %q", session.PriceID, session.Mode)
	}

	if got.method != http.MethodPost || got.path != "/v1/checkout/sessions" {
		t.Errorf("request = %s %s, want POST /v1/checkout/sessions", got.method, got.path)
	}
	if got.idempotencyKey != "click-42" {
		t.Errorf("Idempotency-Key = %q, want click-42", got.idempotencyKey)
	}

	want := map[string]string{
		"mode":                    "subscription",
		"line_items[0][price]":    "price_123",
		"line_items[0][quantity]": "1",
		"success_url":             successURL,
		"cancel_url":              cancelURL,
		"customer_email":          "owner@shop.example",
		"client_reference_id":     "user-1",
		"metadata[user_id]":       "user-1",
		"metadata[price_id]":      "price_123",
	}
	for field, value := range want {
		if v := got.form.Get(field); v != value {
			t.Errorf("form %s = %q, want %q", field, v, value)
		}
	}
	if _, ok := got.form["line_items[1][price]"]; ok {
		t.Error("more than one line item sent")
	}
}

func TestCreateCheckoutSession_AnonymousBuyer(t *testing.T) {
	p, got := newStripeServer(t, http.StatusOK,
		`{"id":"cs_test_2","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_2"}`)

	_, err := p.CreateCheckoutSession(context.Background(), billing.CheckoutParams{
		PriceID:    "price_123",
		SuccessURL: "https://bizdesk.example/dashboard?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://bizdesk.example/pricing",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession() error = %v", err)
	}
	for _, field := range []string{"client_reference_id", "customer_email", "metadata[user_id]"} {
		if _, ok := got.form[field]; ok {
			t.Errorf("form %s sent for an anonymous buyer", field)
		}
	}
	if v := got.form.Get("line_items[0][quantity]"); v != "1" {
		t.Errorf("quantity = %q, want 1", v)
	}
}

func TestCreateCheckoutSession_ProviderError(t *testing.T) {
	p, _ := newStripeServer(t, http.StatusBadRequest,
		`{"error":{"type":"invalid_request_error","message":"No such price: 'price_gone'","param":"line_items[0][price]"}}`)

	_, err := p.CreateCheckoutSession(context.Background(), billing.CheckoutParams{
		PriceID:    "price_gone",
		SuccessURL: "https://bizdesk.example/dashboard?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://bizdesk.example/pricing",
	})
	if err == nil {
		t.Fatal("CreateCheckoutSession() expected error")
	}
	if err.Error() != "No such price: 'price_gone'" {
		t.Errorf("error = %q, want the provider message", err.Error())
	}
}

func TestGetSubscription(t *testing.T) {
	periodEnd := time.Date(2026, 11, 15, 0, 0, 0, 0, time.UTC)
	p, got := newStripeServer(t, http.StatusOK, fmt.Sprintf(`{
		"id": "sub_1",
		"object": "subscription",
		"customer": "cus_1",
		"status": "active",
		"current_period_end": %d,
		"items": {"object": "list", "data": [
			{"id": "si_1", "object": "subscription_item", "price": {"id": "price_annual", "object": "price"}}
		]}
	}`, periodEnd.Unix()))

	sub, err := p.GetSubscription(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("GetSubscription() error = %v", err)
	}
	if got.method != http.MethodGet || got.path != "/v1/subscriptions/sub_1" {
		t.Errorf("request = %s %s, want GET /v1/subscriptions/sub_1", got.method, got.path)
	}
	if sub.ID != "sub_1" || sub.CustomerRef != "cus_1" || sub.PriceID != "price_annual" || sub.Status != "active" {
		t.Errorf("subscription = %+v", sub)
	}
	if sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Equal(periodEnd) {
		t.Errorf("CurrentPeriodEnd = %v, want %v", sub.CurrentPeriodEnd, periodEnd)
	}
}

func TestNewStripeProvider_RequiresKey(t *testing.T) {
	if _, err := NewStripeProvider("", testWebhookSecret); err == nil {
		t.Error("NewStripeProvider() without a key expected error")
	}
}

func TestParseEvent_CheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_abc",
			"object": "checkout.session",
			"mode": "subscription",
			"payment_status": "paid",
			"client_reference_id": "user-1",
			"customer": "cus_1",
			"subscription": "sub_1",
			"metadata": {"user_id": "user-1", "price_id": "price_monthly"}
		}}
	}`)

	ev, err := testProvider(t).ParseEvent(payload, sign(t, payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}

	want := billing.Event{
		ID:              "evt_1",
		Type:            billing.EventCheckoutCompleted,
		ProviderType:    "checkout.session.completed",
		ClientReference: "user-1",
		CustomerRef:     "cus_1",
		SubscriptionRef: "sub_1",
		PriceID:         "price_monthly",
		Status:          "active",
	}
	if *ev != want {
		t.Errorf("ParseEvent() = %+v, want %+v", *ev, want)
	}
}

func TestParseEvent_UnpaidCheckoutIsIncomplete(t *testing.T) {
	payload := []byte(`{"id": "evt_7", "object": "event", "type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "object": "checkout.session", "mode": "subscription",
			"payment_status": "unpaid", "customer": "cus_1", "subscription": "sub_1"}}}`)

	ev, err := testProvider(t).ParseEvent(payload, sign(t, payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if ev.Status != "incomplete" {
		t.Errorf("Status = %q, want incomplete", ev.Status)
	}
}

func TestParseEvent_SubscriptionUpdated(t *testing.T) {
	periodEnd := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_2",
		"object": "event",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"object": "subscription",
			"customer": "cus_1",
			"status": "past_due",
			"current_period_end": %d,
			"metadata": {"user_id": "user-1"},
			"items": {"object": "list", "data": [
				{"id": "si_1", "object": "subscription_item", "price": {"id": "price_annual", "object": "price"}}
			]}
		}}
	}`, periodEnd.Unix()))

	ev, err := testProvider(t).ParseEvent(payload, sign(t, payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}

	if ev.Type != billing.EventSubscriptionUpdated {
		t.Errorf("Type = %q, want %q", ev.Type, billing.EventSubscriptionUpdated)
	}
	if ev.ClientReference != "user-1" || ev.SubscriptionRef != "sub_1" || ev.PriceID != "price_annual" || ev.Status != "past_due" {
		t.Errorf("ParseEvent() = %+v", ev)
	}
	if ev.CurrentPeriodEnd == nil || !periodEnd.Equal(*ev.CurrentPeriodEnd) {
		t.Errorf("CurrentPeriodEnd = %v, want %v", ev.CurrentPeriodEnd, periodEnd)
	}
}

func TestParseEvent_SubscriptionDeleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_3",
		"object": "event",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "object": "subscription", "customer": "cus_1", "status": "canceled"}}
	}`)

	ev, err := testProvider(t).ParseEvent(payload, sign(t, payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("ParseEvent() error = %v", err)
	}
	if ev.Type != billing.EventSubscriptionCancelled || ev.Status != "canceled" || ev.PriceID != "" {
		t.Errorf("ParseEvent() = %+v", ev)
	}
}

func TestParseEvent_Ignored(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "unhandled type",
			payload: `{"id": "evt_4", "object": "event", "type": "invoice.paid", "data": {"object": {"id": "in_1"}}}`,
		},
		{
			name: "payment mode checkout",
			payload: `{"id": "evt_5", "object": "event", "type": "checkout.session.completed",
				"data": {"object": {"id": "cs_1", "object": "checkout.session", "mode": "payment"}}}`,
		},
	}

	p := testProvider(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(tt.payload)
			ev, err := p.ParseEvent(payload, sign(t, payload, testWebhookSecret, time.Now()))
			if err != nil {
				t.Fatalf("ParseEvent() error = %v", err)
			}
			if ev.Type != billing.EventIgnored {
				t.Errorf("Type = %q, want ignored", ev.Type)
			}
		})
	}
}

func TestParseEvent_RejectsBadSignatures(t *testing.T) {
	payload := []byte(`{"id": "evt_6", "object": "event", "type": "invoice.paid", "data": {"object": {}}}`)

	tests := []struct {
		name      string
		signature string
	}{
		{"empty header", ""},
		{"wrong secret", sign(t, payload, "whsec_other", time.Now())},
		{"stale timestamp", sign(t, payload, testWebhookSecret, time.Now().Add(-time.Hour))},
		{"garbage", "not-a-signature"},
	}

	p := testProvider(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.ParseEvent(payload, tt.signature); !errors.Is(err, billing.ErrInvalidSignature) {
				t.Errorf("ParseEvent() error = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestParseEvent_NoSecretConfigured(t *testing.T) {
	p, err := NewStripeProvider("sk_test_123", "")
	if err != nil {
		t.Fatalf("NewStripeProvider() error = %v", err)
	}

	payload := []byte(`{}`)
	if _, err := p.ParseEvent(payload, sign(t, payload, "", time.Now())); !errors.Is(err, billing.ErrInvalidSignature) {
		t.Errorf("ParseEvent() error = %v, want ErrInvalidSignature", err)
	}
}

func TestProviderError_UsesStripeMessage(t *testing.T) {
	if err := providerError(&stripe.Error{Msg: "No such price: 'price_x'"}); err.Error() != "No such price: 'price_x'" {
		t.Errorf("providerError() = %q", err.Error())
	}

	plain := errors.New("dial tcp: timeout")
	if err := providerError(plain); err != plain {
		t.Errorf("providerError() = %v, want the original error", err)
	}
}
