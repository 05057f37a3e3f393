package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brave-intl/acquiring-go/libs/datastore"
	"github.com/brave-intl/acquiring-go/libs/logging"
)

const (
	// maxWebhookAttempts bounds delivery retries before a job is abandoned.
	maxWebhookAttempts = 8
	// webhookMaxBackoff caps the delay between delivery attempts.
	webhookMaxBackoff = 10 * time.Minute
	// webhookTimeout bounds a single delivery round trip.
	webhookTimeout = 10 * time.Second
)

// webhookBackoff returns the delay before the next delivery attempt,
// doubling per attempt up to the cap.
func webhookBackoff(attempt int) time.Duration {
	if attempt > 9 {
		return webhookMaxBackoff
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > webhookMaxBackoff {
		return webhookMaxBackoff
	}
	return d
}

// notifiedStatuses are the statuses a merchant endpoint hears about.
var notifiedStatuses = map[Status]bool{
	StatusAuthorized:      true,
	StatusAuthFail:        true,
	StatusConfirmed:       true,
	StatusRejected:        true,
	StatusCancelled:       true,
	StatusDeadlineExpired: true,
	StatusReversed:        true,
	StatusPartialReversed: true,
	StatusRefunded:        true,
	StatusPartialRefunded: true,
}

// webhookSuccess marks which notified statuses count as a successful outcome.
var webhookSuccess = map[Status]bool{
	StatusAuthorized:      true,
	StatusConfirmed:       true,
	StatusReversed:        true,
	StatusPartialReversed: true,
	StatusRefunded:        true,
	StatusPartialRefunded: true,
}

// Notifier queues and delivers signed status callbacks to merchant
// endpoints. Payloads are signed at delivery time so secret rotation
// applies to jobs already in the queue.
type Notifier struct {
	datastore Datastore
	merchants MerchantDirectory
	signer    Signer
	client    *http.Client
	clock     Clock
}

// NewNotifier builds a notifier over the given datastore and directory.
func NewNotifier(datastore Datastore, merchants MerchantDirectory, signer Signer, clock Clock) *Notifier {
	return &Notifier{
		datastore: datastore,
		merchants: merchants,
		signer:    signer,
		client:    &http.Client{Timeout: webhookTimeout},
		clock:     clock,
	}
}

// Enqueue records a delivery job for the payment's current status when the
// status is notify-worthy and the intent named a callback URL.
func (n *Notifier) Enqueue(ctx context.Context, payment *Payment) error {
	if !notifiedStatuses[payment.Status] {
		return nil
	}
	if payment.Intent.NotificationURL == "" {
		return nil
	}

	job := WebhookJob{
		PaymentID:   payment.PaymentID,
		MerchantKey: payment.MerchantKey,
		URL:         payment.Intent.NotificationURL,
		Payload:     webhookPayload(payment),
		NextRunAt:   n.clock.Now(),
	}
	return n.datastore.EnqueueWebhook(ctx, &job)
}

// DeliverWebhook implements WebhookWorker. It signs the payload with the
// merchant's current secret and posts it to the recorded URL. A 2xx reply
// acknowledges delivery, anything else schedules a retry.
func (n *Notifier) DeliverWebhook(ctx context.Context, job *WebhookJob) error {
	logger := logging.Logger(ctx, "payments").With().
		Str("payment_id", job.PaymentID).
		Str("merchant_key", job.MerchantKey).
		Int("attempt", job.Attempts+1).
		Logger()

	merchant, err := n.merchants.Lookup(ctx, job.MerchantKey)
	if err != nil {
		logger.Error().Err(err).Msg("webhook merchant lookup failed")
		return err
	}
	if merchant == nil {
		err := fmt.Errorf("merchant %s not found", job.MerchantKey)
		logger.Error().Err(err).Msg("webhook merchant missing")
		return err
	}

	payload := make(map[string]interface{}, len(job.Payload)+1)
	for k, v := range job.Payload {
		payload[k] = v
	}
	delete(payload, "Token")
	payload["Token"] = n.signer.Sign(payload, merchant.Secret)

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Msg("webhook payload marshal failed")
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.URL, bytes.NewReader(body))
	if err != nil {
		logger.Error().Err(err).Msg("webhook request build failed")
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		countWebhookDeliveries.With(prometheus.Labels{"result": "failed"}).Inc()
		logger.Warn().Err(err).Msg("webhook delivery failed")
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		countWebhookDeliveries.With(prometheus.Labels{"result": "failed"}).Inc()
		err := fmt.Errorf("webhook endpoint replied %d", resp.StatusCode)
		logger.Warn().Err(err).Msg("webhook delivery refused")
		return err
	}

	countWebhookDeliveries.With(prometheus.Labels{"result": "delivered"}).Inc()
	logger.Info().Str("status", fmt.Sprintf("%v", payload["Status"])).Msg("webhook delivered")
	return nil
}

// webhookPayload flattens the fields a merchant needs to reconcile the
// payment. Every value is a scalar so the payload signs the same way
// inbound requests do.
func webhookPayload(payment *Payment) datastore.Metadata {
	payload := datastore.Metadata{
		"MerchantKey": payment.MerchantKey,
		"PaymentId":   payment.PaymentID,
		"OrderId":     payment.OrderID,
		"Status":      string(payment.Status),
		"Amount":      payment.Amount,
		"Currency":    payment.Currency,
		"Success":     webhookSuccess[payment.Status],
	}
	if payment.LastErrorCode != nil {
		payload["ErrorCode"] = *payment.LastErrorCode
	}
	if payment.RefundedAmount > 0 {
		payload["RefundedAmount"] = payment.RefundedAmount
	}
	return payload
}
