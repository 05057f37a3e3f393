package payments

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"

	"github.com/brave-intl/acquiring-go/libs/datastore"
)

var (
	// ErrNotFound signals the requested row does not exist.
	ErrNotFound = errors.New("payments: not found")
	// ErrDuplicateOrder signals a live payment already holds the order id.
	ErrDuplicateOrder = errors.New("payments: duplicate order")
	// ErrVersionConflict signals an optimistic write lost its race.
	ErrVersionConflict = errors.New("payments: version conflict")
)

// orderReleasingStatuses no longer hold the (merchant, order) slot, so a
// fresh payment may be initialized for the same order id.
var orderReleasingStatuses = []string{
	string(StatusCancelled),
	string(StatusDeadlineExpired),
	string(StatusRejected),
}

// WebhookWorker delivers one queued merchant notification.
type WebhookWorker interface {
	DeliverWebhook(ctx context.Context, job *WebhookJob) error
}

// Datastore abstracts the gateway storage
type Datastore interface {
	// GetPayment returns the payment by id, nil when absent
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	// GetLivePaymentByOrder returns the payment holding the (merchant, order) slot, nil when absent
	GetLivePaymentByOrder(ctx context.Context, merchantKey string, orderID string) (*Payment, error)
	// ListPaymentsByOrder returns every payment for the pair, oldest first
	ListPaymentsByOrder(ctx context.Context, merchantKey string, orderID string) ([]Payment, error)
	// CreatePaymentIfAbsent inserts the payment, ErrDuplicateOrder when the slot is taken
	CreatePaymentIfAbsent(ctx context.Context, payment *Payment) error
	// CommitTransition persists the payment conditional on its prior version,
	// together with exactly one history row, in one atomic unit
	CommitTransition(ctx context.Context, payment *Payment, expectedVersion int, entry *StatusChange) error
	// GetPaymentHistory returns the append only status log, oldest first
	GetPaymentHistory(ctx context.Context, paymentID string) ([]StatusChange, error)
	// ListExpiredPayments returns non terminal payments whose deadline passed the cutoff
	ListExpiredPayments(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error)
	// ListPaymentsInStatus returns payments parked in the status since before the cutoff
	ListPaymentsInStatus(ctx context.Context, status Status, updatedBefore time.Time, limit int) ([]Payment, error)
	// GetMerchant returns the merchant by key, nil when absent
	GetMerchant(ctx context.Context, merchantKey string) (*Merchant, error)
	// UpsertMerchant creates or replaces the merchant credentials
	UpsertMerchant(ctx context.Context, merchant *Merchant) error
	// TouchMerchant records when the merchant last made an authenticated call
	TouchMerchant(ctx context.Context, merchantKey string, at time.Time) error
	// InsertRefund appends one returned funds ledger row
	InsertRefund(ctx context.Context, refund *Refund) error
	// ListRefunds returns the ledger rows for the payment, oldest first
	ListRefunds(ctx context.Context, paymentID string) ([]Refund, error)
	// EnqueueWebhook queues one merchant notification for delivery
	EnqueueWebhook(ctx context.Context, job *WebhookJob) error
	// RunNextWebhookJob attempts delivery of the next due notification
	RunNextWebhookJob(ctx context.Context, worker WebhookWorker) (bool, error)
}

// Postgres is a Datastore wrapper around a postgres database
type Postgres struct {
	datastore.Postgres
}

// NewDB creates a new Postgres Datastore
func NewDB(databaseURL string, performMigration bool, migrationTrack string, dbStatsPrefix ...string) (Datastore, error) {
	pg, err := datastore.NewPostgres(databaseURL, performMigration, migrationTrack, dbStatsPrefix...)
	if pg != nil {
		return &DatastoreWithPrometheus{
			base: &Postgres{*pg}, instanceName: "payments_datastore",
		}, err
	}
	return nil, err
}

// NewPostgres creates a new postgres connection from the environment
func NewPostgres() (Datastore, error) {
	pg, err := NewDB("", true, "payments", "payments_db")
	if err != nil {
		sentry.CaptureException(err)
		log.Panic().Err(err).Msg("Must be able to init postgres connection to start")
	}
	return pg, err
}

// GetPayment returns the payment by id
func (pg *Postgres) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	statement := "select * from payments where payment_id = $1"
	payments := []Payment{}
	err := pg.RawDB().SelectContext(ctx, &payments, statement, paymentID)
	if err != nil {
		return nil, err
	}

	if len(payments) > 0 {
		return &payments[0], nil
	}
	return nil, nil
}

// GetLivePaymentByOrder returns the payment holding the (merchant, order) slot
func (pg *Postgres) GetLivePaymentByOrder(ctx context.Context, merchantKey string, orderID string) (*Payment, error) {
	statement := `
select *
from payments
where
	merchant_key = $1 and
	order_id = $2 and
	not status = any($3)
order by created_at desc
limit 1`
	payments := []Payment{}
	err := pg.RawDB().SelectContext(ctx, &payments, statement, merchantKey, orderID, pq.Array(orderReleasingStatuses))
	if err != nil {
		return nil, err
	}

	if len(payments) > 0 {
		return &payments[0], nil
	}
	return nil, nil
}

// ListPaymentsByOrder returns every payment for the pair, oldest first
func (pg *Postgres) ListPaymentsByOrder(ctx context.Context, merchantKey string, orderID string) ([]Payment, error) {
	statement := `
select *
from payments
where merchant_key = $1 and order_id = $2
order by created_at asc`
	payments := []Payment{}
	err := pg.RawDB().SelectContext(ctx, &payments, statement, merchantKey, orderID)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// CreatePaymentIfAbsent inserts the payment, relying on the partial unique
// index over live (merchant_key, order_id) pairs for duplicate detection
func (pg *Postgres) CreatePaymentIfAbsent(ctx context.Context, payment *Payment) error {
	statement := `
insert into payments
	(payment_id, merchant_key, order_id, amount, currency, status, attempt_count,
	version, bank_ref, card_fingerprint, last_error_code, last_error_message,
	refunded_amount, intent_blob, created_at, updated_at, expires_at)
values
	($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := pg.RawDB().ExecContext(ctx, statement,
		payment.PaymentID,
		payment.MerchantKey,
		payment.OrderID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.AttemptCount,
		payment.Version,
		payment.BankRef,
		payment.CardFingerprint,
		payment.LastErrorCode,
		payment.LastErrorMessage,
		payment.RefundedAmount,
		payment.Intent,
		payment.CreatedAt,
		payment.UpdatedAt,
		payment.ExpiresAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) {
			if pgErr.Code == pq.ErrorCode("23505") {
				return ErrDuplicateOrder
			}
		}
		return err
	}
	return nil
}

// CommitTransition persists the payment conditional on its prior version and
// appends the history row inside the same transaction
func (pg *Postgres) CommitTransition(ctx context.Context, payment *Payment, expectedVersion int, entry *StatusChange) error {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return err
	}
	defer pg.RollbackTx(tx)

	statement := `
update payments
set
	status = $2,
	attempt_count = $3,
	version = $4,
	bank_ref = $5,
	card_fingerprint = $6,
	last_error_code = $7,
	last_error_message = $8,
	refunded_amount = $9,
	updated_at = $10,
	expires_at = $11
where payment_id = $1 and version = $12`
	result, err := tx.ExecContext(ctx, statement,
		payment.PaymentID,
		payment.Status,
		payment.AttemptCount,
		payment.Version,
		payment.BankRef,
		payment.CardFingerprint,
		payment.LastErrorCode,
		payment.LastErrorMessage,
		payment.RefundedAmount,
		payment.UpdatedAt,
		payment.ExpiresAt,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrVersionConflict
	}

	statement = `
insert into status_history
	(id, payment_id, from_status, to_status, at, actor, error_code, message, is_rollback, rollback_from)
values
	($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = tx.ExecContext(ctx, statement,
		entry.ID,
		entry.PaymentID,
		entry.FromStatus,
		entry.ToStatus,
		entry.At,
		entry.Actor,
		entry.ErrorCode,
		entry.Message,
		entry.IsRollback,
		entry.RollbackFrom,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetPaymentHistory returns the append only status log, oldest first
func (pg *Postgres) GetPaymentHistory(ctx context.Context, paymentID string) ([]StatusChange, error) {
	statement := `
select *
from status_history
where payment_id = $1
order by at asc, id asc`
	history := []StatusChange{}
	err := pg.RawDB().SelectContext(ctx, &history, statement, paymentID)
	if err != nil {
		return nil, err
	}
	return history, nil
}

// ListExpiredPayments returns non terminal payments whose deadline passed the cutoff
func (pg *Postgres) ListExpiredPayments(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error) {
	statement := `
select *
from payments
where
	expires_at < $1 and
	not status = any($2)
order by expires_at asc
limit $3`
	payments := []Payment{}
	err := pg.RawDB().SelectContext(ctx, &payments, statement, cutoff, pq.Array(terminalStatusStrings()), limit)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// ListPaymentsInStatus returns payments parked in the status since before the cutoff
func (pg *Postgres) ListPaymentsInStatus(ctx context.Context, status Status, updatedBefore time.Time, limit int) ([]Payment, error) {
	statement := `
select *
from payments
where status = $1 and updated_at < $2
order by updated_at asc
limit $3`
	payments := []Payment{}
	err := pg.RawDB().SelectContext(ctx, &payments, statement, status, updatedBefore, limit)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// GetMerchant returns the merchant by key
func (pg *Postgres) GetMerchant(ctx context.Context, merchantKey string) (*Merchant, error) {
	statement := "select * from merchants where merchant_key = $1"
	merchants := []Merchant{}
	err := pg.RawDB().SelectContext(ctx, &merchants, statement, merchantKey)
	if err != nil {
		return nil, err
	}

	if len(merchants) > 0 {
		return &merchants[0], nil
	}
	return nil, nil
}

// UpsertMerchant creates or replaces the merchant credentials
func (pg *Postgres) UpsertMerchant(ctx context.Context, merchant *Merchant) error {
	statement := `
insert into merchants (merchant_key, secret, active, supported_currencies, created_at)
values ($1, $2, $3, $4, current_timestamp)
on conflict (merchant_key) do update
set secret = $2, active = $3, supported_currencies = $4`
	_, err := pg.RawDB().ExecContext(ctx, statement,
		merchant.MerchantKey,
		merchant.Secret,
		merchant.Active,
		merchant.SupportedCurrencies,
	)
	return err
}

// TouchMerchant records when the merchant last made an authenticated call
func (pg *Postgres) TouchMerchant(ctx context.Context, merchantKey string, at time.Time) error {
	statement := "update merchants set last_seen = $2 where merchant_key = $1"
	_, err := pg.RawDB().ExecContext(ctx, statement, merchantKey, at)
	return err
}

// InsertRefund appends one returned funds ledger row
func (pg *Postgres) InsertRefund(ctx context.Context, refund *Refund) error {
	statement := `
insert into refunds (id, payment_id, kind, amount, amount_value, created_at)
values ($1, $2, $3, $4, $5, $6)`
	_, err := pg.RawDB().ExecContext(ctx, statement,
		refund.ID,
		refund.PaymentID,
		refund.Kind,
		refund.Amount,
		refund.AmountValue,
		refund.CreatedAt,
	)
	return err
}

// ListRefunds returns the ledger rows for the payment, oldest first
func (pg *Postgres) ListRefunds(ctx context.Context, paymentID string) ([]Refund, error) {
	statement := `
select *
from refunds
where payment_id = $1
order by created_at asc`
	refunds := []Refund{}
	err := pg.RawDB().SelectContext(ctx, &refunds, statement, paymentID)
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

// EnqueueWebhook queues one merchant notification for delivery
func (pg *Postgres) EnqueueWebhook(ctx context.Context, job *WebhookJob) error {
	if uuid.Equal(job.ID, uuid.Nil) {
		job.ID = uuid.NewV4()
	}
	statement := `
insert into webhook_jobs (id, payment_id, merchant_key, url, payload, attempts, next_run_at, created_at)
values ($1, $2, $3, $4, $5, $6, $7, current_timestamp)`
	_, err := pg.RawDB().ExecContext(ctx, statement,
		job.ID,
		job.PaymentID,
		job.MerchantKey,
		job.URL,
		job.Payload,
		job.Attempts,
		job.NextRunAt,
	)
	return err
}

// RunNextWebhookJob locks the next due notification, hands it to the worker
// and reschedules or settles it based on the outcome
func (pg *Postgres) RunNextWebhookJob(ctx context.Context, worker WebhookWorker) (bool, error) {
	tx, err := pg.RawDB().Beginx()
	attempted := false
	if err != nil {
		return attempted, err
	}
	defer pg.RollbackTx(tx)

	statement := `
select *
from webhook_jobs
where
	delivered_at is null and
	attempts < $1 and
	next_run_at <= current_timestamp
order by next_run_at asc
for update skip locked
limit 1`

	jobs := []WebhookJob{}
	err = tx.SelectContext(ctx, &jobs, statement, maxWebhookAttempts)
	if err != nil {
		return attempted, err
	}
	if len(jobs) != 1 {
		return attempted, nil
	}

	job := jobs[0]
	attempted = true

	deliverErr := worker.DeliverWebhook(ctx, &job)
	if deliverErr != nil {
		msg := deliverErr.Error()
		nextRun := time.Now().UTC().Add(webhookBackoff(job.Attempts + 1))
		_, err = tx.ExecContext(ctx,
			`update webhook_jobs set attempts = attempts + 1, next_run_at = $2, last_error = $3 where id = $1`,
			job.ID, nextRun, msg)
		if err != nil {
			return attempted, err
		}
		return attempted, tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		`update webhook_jobs set attempts = attempts + 1, delivered_at = current_timestamp, last_error = null where id = $1`,
		job.ID)
	if err != nil {
		return attempted, err
	}

	return attempted, tx.Commit()
}

// terminalStatusStrings lists the terminal statuses for SQL filters.
func terminalStatusStrings() []string {
	terminal := []string{}
	for status, next := range Transitions {
		if len(next) == 0 {
			terminal = append(terminal, string(status))
		}
	}
	sort.Strings(terminal)
	return terminal
}
