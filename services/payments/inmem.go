package payments

import (
	"context"
	"sort"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
)

// InMemory is a Datastore kept entirely in process memory. It preserves the
// optimistic concurrency and uniqueness semantics of the postgres store and
// backs unit tests and single node development runs.
type InMemory struct {
	mu        sync.RWMutex
	payments  map[string]Payment
	history   map[string][]StatusChange
	merchants map[string]Merchant
	refunds   map[string][]Refund
	webhooks  []WebhookJob
	inflight  map[uuid.UUID]bool
}

// NewInMemory builds an empty in memory Datastore.
func NewInMemory() *InMemory {
	return &InMemory{
		payments:  map[string]Payment{},
		history:   map[string][]StatusChange{},
		merchants: map[string]Merchant{},
		refunds:   map[string][]Refund{},
		inflight:  map[uuid.UUID]bool{},
	}
}

// GetPayment returns the payment by id
func (m *InMemory) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payment, ok := m.payments[paymentID]
	if !ok {
		return nil, nil
	}
	return &payment, nil
}

// GetLivePaymentByOrder returns the payment holding the (merchant, order) slot
func (m *InMemory) GetLivePaymentByOrder(ctx context.Context, merchantKey string, orderID string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	live := m.livePaymentLocked(merchantKey, orderID)
	if live == nil {
		return nil, nil
	}
	payment := *live
	return &payment, nil
}

func (m *InMemory) livePaymentLocked(merchantKey string, orderID string) *Payment {
	for id := range m.payments {
		payment := m.payments[id]
		if payment.MerchantKey == merchantKey && payment.OrderID == orderID && payment.Live() {
			return &payment
		}
	}
	return nil
}

// ListPaymentsByOrder returns every payment for the pair, oldest first
func (m *InMemory) ListPaymentsByOrder(ctx context.Context, merchantKey string, orderID string) ([]Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payments := []Payment{}
	for id := range m.payments {
		payment := m.payments[id]
		if payment.MerchantKey == merchantKey && payment.OrderID == orderID {
			payments = append(payments, payment)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	return payments, nil
}

// CreatePaymentIfAbsent inserts the payment unless a live one holds the slot
func (m *InMemory) CreatePaymentIfAbsent(ctx context.Context, payment *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.livePaymentLocked(payment.MerchantKey, payment.OrderID) != nil {
		return ErrDuplicateOrder
	}
	m.payments[payment.PaymentID] = *payment
	return nil
}

// CommitTransition persists the payment conditional on its prior version and
// appends the history row in the same critical section
func (m *InMemory) CommitTransition(ctx context.Context, payment *Payment, expectedVersion int, entry *StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.payments[payment.PaymentID]
	if !ok || current.Version != expectedVersion {
		return ErrVersionConflict
	}
	m.payments[payment.PaymentID] = *payment
	m.history[payment.PaymentID] = append(m.history[payment.PaymentID], *entry)
	return nil
}

// GetPaymentHistory returns the append only status log, oldest first
func (m *InMemory) GetPaymentHistory(ctx context.Context, paymentID string) ([]StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([]StatusChange, len(m.history[paymentID]))
	copy(history, m.history[paymentID])
	return history, nil
}

// ListExpiredPayments returns non terminal payments whose deadline passed the cutoff
func (m *InMemory) ListExpiredPayments(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payments := []Payment{}
	for id := range m.payments {
		payment := m.payments[id]
		if !payment.Status.IsTerminal() && payment.ExpiresAt.Before(cutoff) {
			payments = append(payments, payment)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].ExpiresAt.Before(payments[j].ExpiresAt)
	})
	if len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}

// ListPaymentsInStatus returns payments parked in the status since before the cutoff
func (m *InMemory) ListPaymentsInStatus(ctx context.Context, status Status, updatedBefore time.Time, limit int) ([]Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payments := []Payment{}
	for id := range m.payments {
		payment := m.payments[id]
		if payment.Status == status && payment.UpdatedAt.Before(updatedBefore) {
			payments = append(payments, payment)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].UpdatedAt.Before(payments[j].UpdatedAt)
	})
	if len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}

// GetMerchant returns the merchant by key
func (m *InMemory) GetMerchant(ctx context.Context, merchantKey string) (*Merchant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	merchant, ok := m.merchants[merchantKey]
	if !ok {
		return nil, nil
	}
	return &merchant, nil
}

// UpsertMerchant creates or replaces the merchant credentials
func (m *InMemory) UpsertMerchant(ctx context.Context, merchant *Merchant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *merchant
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	m.merchants[merchant.MerchantKey] = stored
	return nil
}

// TouchMerchant records when the merchant last made an authenticated call
func (m *InMemory) TouchMerchant(ctx context.Context, merchantKey string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	merchant, ok := m.merchants[merchantKey]
	if !ok {
		return nil
	}
	merchant.LastSeen = &at
	m.merchants[merchantKey] = merchant
	return nil
}

// InsertRefund appends one returned funds ledger row
func (m *InMemory) InsertRefund(ctx context.Context, refund *Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refunds[refund.PaymentID] = append(m.refunds[refund.PaymentID], *refund)
	return nil
}

// ListRefunds returns the ledger rows for the payment, oldest first
func (m *InMemory) ListRefunds(ctx context.Context, paymentID string) ([]Refund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refunds := make([]Refund, len(m.refunds[paymentID]))
	copy(refunds, m.refunds[paymentID])
	return refunds, nil
}

// EnqueueWebhook queues one merchant notification for delivery
func (m *InMemory) EnqueueWebhook(ctx context.Context, job *WebhookJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *job
	if uuid.Equal(stored.ID, uuid.Nil) {
		stored.ID = uuid.NewV4()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	m.webhooks = append(m.webhooks, stored)
	return nil
}

// RunNextWebhookJob claims the next due notification, hands it to the worker
// and reschedules or settles it based on the outcome. Claimed jobs are
// skipped by concurrent workers the way row locks skip them in postgres.
func (m *InMemory) RunNextWebhookJob(ctx context.Context, worker WebhookWorker) (bool, error) {
	now := time.Now().UTC()

	m.mu.Lock()
	idx := -1
	for i := range m.webhooks {
		job := &m.webhooks[i]
		if job.DeliveredAt == nil && job.Attempts < maxWebhookAttempts &&
			!job.NextRunAt.After(now) && !m.inflight[job.ID] {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return false, nil
	}
	claimed := m.webhooks[idx]
	m.inflight[claimed.ID] = true
	m.mu.Unlock()

	deliverErr := worker.DeliverWebhook(ctx, &claimed)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, claimed.ID)
	job := &m.webhooks[idx]
	job.Attempts++
	if deliverErr != nil {
		msg := deliverErr.Error()
		job.LastError = &msg
		job.NextRunAt = time.Now().UTC().Add(webhookBackoff(job.Attempts))
		return true, nil
	}
	deliveredAt := time.Now().UTC()
	job.DeliveredAt = &deliveredAt
	job.LastError = nil
	return true, nil
}

// WebhookJobs returns a snapshot of the queue for inspection.
func (m *InMemory) WebhookJobs() []WebhookJob {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]WebhookJob, len(m.webhooks))
	copy(jobs, m.webhooks)
	return jobs
}
