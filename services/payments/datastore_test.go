package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brave-intl/acquiring-go/libs/datastore"
)

var paymentColumns = []string{
	"payment_id", "merchant_key", "order_id", "amount", "currency", "status",
	"attempt_count", "version", "bank_ref", "card_fingerprint", "last_error_code",
	"last_error_message", "refunded_amount", "intent_blob", "created_at",
	"updated_at", "expires_at",
}

var webhookColumns = []string{
	"id", "payment_id", "merchant_key", "url", "payload", "attempts",
	"next_run_at", "last_error", "delivered_at", "created_at",
}

func mockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	return &Postgres{Postgres: datastore.Postgres{DB: sqlx.NewDb(mockDB, "sqlmock")}}, mock
}

func TestPostgresGetPayment(t *testing.T) {
	pg, mock := mockPostgres(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(paymentColumns).AddRow(
		"pay-1", "m-1", "order-1", int64(1000), "RUB", "NEW",
		0, 1, nil, nil, nil, nil, int64(0), []byte(`{}`),
		now, now, now.Add(24*time.Hour),
	)
	mock.ExpectQuery(`select \* from payments where payment_id = \$1`).
		WithArgs("pay-1").
		WillReturnRows(rows)

	payment, err := pg.GetPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, "pay-1", payment.PaymentID)
	assert.Equal(t, StatusNew, payment.Status)
	assert.Equal(t, int64(1000), payment.Amount)
	assert.Equal(t, 1, payment.Version)
	assert.Nil(t, payment.BankRef)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetPaymentAbsent(t *testing.T) {
	pg, mock := mockPostgres(t)

	mock.ExpectQuery(`select \* from payments where payment_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(paymentColumns))

	payment, err := pg.GetPayment(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, payment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreatePaymentMapsUniqueViolation(t *testing.T) {
	pg, mock := mockPostgres(t)
	now := time.Now().UTC()

	payment := &Payment{
		PaymentID:   "pay-dup",
		MerchantKey: "m-1",
		OrderID:     "order-1",
		Amount:      1000,
		Currency:    "RUB",
		Status:      StatusNew,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}

	mock.ExpectExec("insert into payments").
		WillReturnError(&pq.Error{Code: pq.ErrorCode("23505")})
	err := pg.CreatePaymentIfAbsent(context.Background(), payment)
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	// other database errors pass through untouched
	serialization := &pq.Error{Code: pq.ErrorCode("40001")}
	mock.ExpectExec("insert into payments").WillReturnError(serialization)
	err = pg.CreatePaymentIfAbsent(context.Background(), payment)
	assert.ErrorIs(t, err, serialization)

	mock.ExpectExec("insert into payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, pg.CreatePaymentIfAbsent(context.Background(), payment))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCommitTransitionVersionConflict(t *testing.T) {
	pg, mock := mockPostgres(t)
	now := time.Now().UTC()

	payment := &Payment{
		PaymentID: "pay-1",
		Status:    StatusFormShowed,
		Version:   2,
		UpdatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	entry := &StatusChange{
		ID:         uuid.NewV4(),
		PaymentID:  "pay-1",
		FromStatus: StatusNew,
		ToStatus:   StatusFormShowed,
		At:         now,
		Actor:      ActorCardholder,
	}

	mock.ExpectBegin()
	mock.ExpectExec("update payments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := pg.CommitTransition(context.Background(), payment, 1, entry)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCommitTransitionWritesHistoryInOneTx(t *testing.T) {
	pg, mock := mockPostgres(t)
	now := time.Now().UTC()

	payment := &Payment{
		PaymentID: "pay-1",
		Status:    StatusFormShowed,
		Version:   2,
		UpdatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	entry := &StatusChange{
		ID:         uuid.NewV4(),
		PaymentID:  "pay-1",
		FromStatus: StatusNew,
		ToStatus:   StatusFormShowed,
		At:         now,
		Actor:      ActorCardholder,
	}

	mock.ExpectBegin()
	mock.ExpectExec("update payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into status_history").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, pg.CommitTransition(context.Background(), payment, 1, entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRunNextWebhookJobSchedulesRetry(t *testing.T) {
	pg, mock := mockPostgres(t)
	now := time.Now().UTC()
	jobID := uuid.NewV4()

	mock.ExpectBegin()
	jobRows := sqlmock.NewRows(webhookColumns).AddRow(
		jobID.String(), "pay-1", "m-1", "https://shop.example/hook",
		[]byte(`{"Status":"CONFIRMED"}`), 0, now.Add(-time.Minute),
		nil, nil, now.Add(-time.Minute),
	)
	mock.ExpectQuery("from webhook_jobs").
		WithArgs(maxWebhookAttempts).
		WillReturnRows(jobRows)
	mock.ExpectExec(`update webhook_jobs set attempts = attempts \+ 1, next_run_at`).
		WithArgs(jobID.String(), sqlmock.AnyArg(), "endpoint down").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	worker := &scriptedWorker{errs: []error{errors.New("endpoint down")}}
	attempted, err := pg.RunNextWebhookJob(context.Background(), worker)
	require.NoError(t, err)
	assert.True(t, attempted)
	assert.Equal(t, 1, worker.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRunNextWebhookJobSettlesDelivery(t *testing.T) {
	pg, mock := mockPostgres(t)
	now := time.Now().UTC()
	jobID := uuid.NewV4()

	mock.ExpectBegin()
	jobRows := sqlmock.NewRows(webhookColumns).AddRow(
		jobID.String(), "pay-1", "m-1", "https://shop.example/hook",
		[]byte(`{"Status":"CONFIRMED"}`), 2, now.Add(-time.Minute),
		"endpoint down", nil, now.Add(-time.Hour),
	)
	mock.ExpectQuery("from webhook_jobs").
		WithArgs(maxWebhookAttempts).
		WillReturnRows(jobRows)
	mock.ExpectExec(`update webhook_jobs set attempts = attempts \+ 1, delivered_at = current_timestamp`).
		WithArgs(jobID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempted, err := pg.RunNextWebhookJob(context.Background(), &scriptedWorker{})
	require.NoError(t, err)
	assert.True(t, attempted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRunNextWebhookJobNoneDue(t *testing.T) {
	pg, mock := mockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from webhook_jobs").
		WithArgs(maxWebhookAttempts).
		WillReturnRows(sqlmock.NewRows(webhookColumns))
	mock.ExpectRollback()

	worker := &scriptedWorker{}
	attempted, err := pg.RunNextWebhookJob(context.Background(), worker)
	require.NoError(t, err)
	assert.False(t, attempted)
	assert.Equal(t, 0, worker.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
