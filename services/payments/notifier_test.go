package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookBackoffSchedule(t *testing.T) {
	expected := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		32 * time.Second, 64 * time.Second, 128 * time.Second, 256 * time.Second,
	}
	for attempt := 1; attempt <= maxWebhookAttempts; attempt++ {
		assert.Equal(t, expected[attempt-1], webhookBackoff(attempt), "attempt %d", attempt)
	}

	assert.Equal(t, webhookMaxBackoff, webhookBackoff(10))
	assert.Equal(t, webhookMaxBackoff, webhookBackoff(63), "huge attempt counts must not overflow")
}

func TestEnqueueFiltersStatusesAndMissingURL(t *testing.T) {
	store := NewInMemory()
	notifier := NewNotifier(store, NewCachedDirectory(store), SHA256Signer{}, RealClock{})

	payment := &Payment{
		PaymentID:   "0123456789abcdefghij",
		MerchantKey: "m-1",
		OrderID:     "o-1",
		Amount:      1000,
		Currency:    "RUB",
		Status:      StatusFormShowed,
		Intent:      PaymentIntent{NotificationURL: "https://merchant.example/hook"},
	}
	require.NoError(t, notifier.Enqueue(context.Background(), payment))
	assert.Empty(t, store.WebhookJobs(), "FORM_SHOWED is not notify-worthy")

	payment.Status = StatusConfirmed
	payment.Intent.NotificationURL = ""
	require.NoError(t, notifier.Enqueue(context.Background(), payment))
	assert.Empty(t, store.WebhookJobs(), "no callback URL, nothing to queue")

	payment.Intent.NotificationURL = "https://merchant.example/hook"
	require.NoError(t, notifier.Enqueue(context.Background(), payment))
	jobs := store.WebhookJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, payment.PaymentID, jobs[0].PaymentID)
	assert.Equal(t, "https://merchant.example/hook", jobs[0].URL)
	assert.Equal(t, "CONFIRMED", jobs[0].Payload["Status"])
	assert.Equal(t, true, jobs[0].Payload["Success"])
}

func TestEnqueueCarriesFailureDetails(t *testing.T) {
	store := NewInMemory()
	notifier := NewNotifier(store, NewCachedDirectory(store), SHA256Signer{}, RealClock{})

	code := string(ErrCodeBankRejected)
	payment := &Payment{
		PaymentID:     "0123456789abcdefghij",
		MerchantKey:   "m-1",
		OrderID:       "o-1",
		Amount:        1000,
		Currency:      "RUB",
		Status:        StatusRejected,
		LastErrorCode: &code,
		Intent:        PaymentIntent{NotificationURL: "https://merchant.example/hook"},
	}
	require.NoError(t, notifier.Enqueue(context.Background(), payment))

	jobs := store.WebhookJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, false, jobs[0].Payload["Success"])
	assert.Equal(t, code, jobs[0].Payload["ErrorCode"])
}

func TestDeliverWebhookSignsPayload(t *testing.T) {
	store := NewInMemory()
	require.NoError(t, store.UpsertMerchant(context.Background(), &Merchant{
		MerchantKey: "m-1",
		Secret:      "hook-secret",
		Active:      true,
	}))
	notifier := NewNotifier(store, NewCachedDirectory(store), SHA256Signer{}, RealClock{})

	var mu sync.Mutex
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		mu.Lock()
		require.NoError(t, decoder.Decode(&received))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	job := &WebhookJob{
		PaymentID:   "0123456789abcdefghij",
		MerchantKey: "m-1",
		URL:         server.URL,
		Payload: map[string]interface{}{
			"MerchantKey": "m-1",
			"PaymentId":   "0123456789abcdefghij",
			"OrderId":     "o-1",
			"Status":      "CONFIRMED",
			"Amount":      int64(1000),
			"Currency":    "RUB",
			"Success":     true,
		},
	}
	require.NoError(t, notifier.DeliverWebhook(context.Background(), job))

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, received)
	token, ok := received["Token"].(string)
	require.True(t, ok, "delivered payload carries a token")
	delete(received, "Token")
	assert.True(t, SHA256Signer{}.Verify(received, token, "hook-secret"),
		"the token verifies against the payload the endpoint received")
	assert.Equal(t, "CONFIRMED", received["Status"])
	assert.Equal(t, json.Number("1000"), received["Amount"])
}

func TestDeliverWebhookErrors(t *testing.T) {
	store := NewInMemory()
	require.NoError(t, store.UpsertMerchant(context.Background(), &Merchant{
		MerchantKey: "m-1",
		Secret:      "hook-secret",
		Active:      true,
	}))
	notifier := NewNotifier(store, NewCachedDirectory(store), SHA256Signer{}, RealClock{})

	refusing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer refusing.Close()

	job := &WebhookJob{
		PaymentID:   "0123456789abcdefghij",
		MerchantKey: "m-1",
		URL:         refusing.URL,
		Payload:     map[string]interface{}{"Status": "CONFIRMED"},
	}
	err := notifier.DeliverWebhook(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replied 502")

	// A closed endpoint is a transport error, also retried.
	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closed.Close()
	job.URL = closed.URL
	assert.Error(t, notifier.DeliverWebhook(context.Background(), job))

	// Unknown merchants cannot be signed for.
	job.URL = refusing.URL
	job.MerchantKey = "ghost"
	err = notifier.DeliverWebhook(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestWebhookDeliveredEndToEnd(t *testing.T) {
	service, store, _ := newTestService(t)

	done := make(chan map[string]interface{}, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		decoder := json.NewDecoder(r.Body)
		decoder.UseNumber()
		if err := decoder.Decode(&payload); err == nil {
			done <- payload
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := initPayment(t, service, "order-webhook", func(req *InitRequest) {
		req.Intent.NotificationURL = server.URL
	})
	_, err := service.AcceptCard(context.Background(), &AcceptCardRequest{
		PaymentID: result.PaymentID,
		Card:      testCard(SimCardOK),
	})
	require.NoError(t, err)

	// Drain the queue the way the job worker would.
	for {
		ran, err := service.RunNextWebhookJob(context.Background())
		require.NoError(t, err)
		if !ran {
			break
		}
	}

	statuses := map[string]bool{}
	for len(done) > 0 {
		payload := <-done
		status, _ := payload["Status"].(string)
		statuses[status] = true
		token, ok := payload["Token"].(string)
		require.True(t, ok)
		delete(payload, "Token")
		assert.True(t, SHA256Signer{}.Verify(payload, token, testMerchantSecret))
	}
	assert.True(t, statuses["AUTHORIZED"])
	assert.True(t, statuses["CONFIRMED"])

	for _, job := range store.WebhookJobs() {
		assert.NotNil(t, job.DeliveredAt)
	}
}
