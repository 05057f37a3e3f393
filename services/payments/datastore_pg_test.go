//go:build integration

package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	uuid "github.com/satori/go.uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/brave-intl/acquiring-go/libs/datastore"
)

type PostgresTestSuite struct {
	suite.Suite
	pg *Postgres
}

func TestPostgresTestSuite(t *testing.T) {
	suite.Run(t, new(PostgresTestSuite))
}

func (suite *PostgresTestSuite) SetupSuite() {
	pg, err := datastore.NewPostgres("", false, "payments")
	suite.Require().NoError(err, "Failed to get postgres conn")
	suite.pg = &Postgres{Postgres: *pg}

	m, err := suite.pg.NewMigrate()
	suite.Require().NoError(err, "Failed to create migrate instance")

	ver, dirty, _ := m.Version()
	if dirty {
		suite.Require().NoError(m.Force(int(ver)))
	}
	if ver > 0 {
		suite.Require().NoError(m.Down(), "Failed to migrate down cleanly")
	}

	suite.Require().NoError(suite.pg.Migrate(), "Failed to fully migrate")
}

func (suite *PostgresTestSuite) SetupTest() {
	suite.CleanDB()
}

func (suite *PostgresTestSuite) TearDownTest() {
	suite.CleanDB()
}

func (suite *PostgresTestSuite) CleanDB() {
	tables := []string{"status_history", "webhook_jobs", "refunds", "payments", "merchants"}

	for _, table := range tables {
		_, err := suite.pg.RawDB().Exec("delete from " + table)
		suite.Require().NoError(err, "Failed to get clean table")
	}
}

func (suite *PostgresTestSuite) makePayment(orderID string) *Payment {
	now := time.Now().UTC()
	return &Payment{
		PaymentID:   PaymentIDGen{}.NewPaymentID(now),
		MerchantKey: "merch-itest",
		OrderID:     orderID,
		Amount:      1000,
		Currency:    "RUB",
		Status:      StatusNew,
		Version:     1,
		Intent: PaymentIntent{
			MerchantKey: "merch-itest",
			OrderID:     orderID,
			Amount:      1000,
			Currency:    "RUB",
			PayType:     PayTypeSingleStage,
			Language:    "ru",
		},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

func (suite *PostgresTestSuite) commit(payment *Payment, to Status, actor Actor) {
	from := payment.Status
	payment.Status = to
	payment.Version++
	payment.UpdatedAt = time.Now().UTC()
	entry := &StatusChange{
		ID:         uuid.NewV4(),
		PaymentID:  payment.PaymentID,
		FromStatus: from,
		ToStatus:   to,
		At:         payment.UpdatedAt,
		Actor:      actor,
	}
	err := suite.pg.CommitTransition(context.Background(), payment, payment.Version-1, entry)
	suite.Require().NoError(err)
}

func (suite *PostgresTestSuite) TestPaymentRoundTrip() {
	ctx := context.Background()
	payment := suite.makePayment("order-rt")

	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, payment))

	got, err := suite.pg.GetPayment(ctx, payment.PaymentID)
	suite.Require().NoError(err)
	suite.Require().NotNil(got)
	suite.Assert().Equal(payment.PaymentID, got.PaymentID)
	suite.Assert().Equal(StatusNew, got.Status)
	suite.Assert().Equal(int64(1000), got.Amount)
	suite.Assert().Equal("order-rt", got.Intent.OrderID)
	suite.Assert().Equal(PayTypeSingleStage, got.Intent.PayType)

	missing, err := suite.pg.GetPayment(ctx, "00000000000000000000")
	suite.Require().NoError(err)
	suite.Assert().Nil(missing)
}

func (suite *PostgresTestSuite) TestLiveOrderSlot() {
	ctx := context.Background()
	payment := suite.makePayment("order-slot")
	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, payment))

	// the slot is taken while the payment is live
	second := suite.makePayment("order-slot")
	err := suite.pg.CreatePaymentIfAbsent(ctx, second)
	suite.Require().True(errors.Is(err, ErrDuplicateOrder))

	live, err := suite.pg.GetLivePaymentByOrder(ctx, "merch-itest", "order-slot")
	suite.Require().NoError(err)
	suite.Require().NotNil(live)
	suite.Assert().Equal(payment.PaymentID, live.PaymentID)

	// a cancelled payment releases the slot
	suite.commit(payment, StatusCancelled, ActorMerchant)

	live, err = suite.pg.GetLivePaymentByOrder(ctx, "merch-itest", "order-slot")
	suite.Require().NoError(err)
	suite.Assert().Nil(live)

	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, second))

	all, err := suite.pg.ListPaymentsByOrder(ctx, "merch-itest", "order-slot")
	suite.Require().NoError(err)
	suite.Require().Len(all, 2)
	suite.Assert().Equal(payment.PaymentID, all[0].PaymentID)
	suite.Assert().Equal(second.PaymentID, all[1].PaymentID)
}

func (suite *PostgresTestSuite) TestCommitTransitionOptimisticLock() {
	ctx := context.Background()
	payment := suite.makePayment("order-lock")
	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, payment))

	stale := *payment
	stale.Status = StatusFormShowed
	stale.Version = 2
	entry := &StatusChange{
		ID:         uuid.NewV4(),
		PaymentID:  payment.PaymentID,
		FromStatus: StatusNew,
		ToStatus:   StatusFormShowed,
		At:         time.Now().UTC(),
		Actor:      ActorCardholder,
	}
	err := suite.pg.CommitTransition(ctx, &stale, 99, entry)
	suite.Require().True(errors.Is(err, ErrVersionConflict))

	// the conflicted write left no trace
	history, err := suite.pg.GetPaymentHistory(ctx, payment.PaymentID)
	suite.Require().NoError(err)
	suite.Assert().Len(history, 0)

	suite.commit(payment, StatusFormShowed, ActorCardholder)

	got, err := suite.pg.GetPayment(ctx, payment.PaymentID)
	suite.Require().NoError(err)
	suite.Assert().Equal(StatusFormShowed, got.Status)
	suite.Assert().Equal(2, got.Version)

	history, err = suite.pg.GetPaymentHistory(ctx, payment.PaymentID)
	suite.Require().NoError(err)
	suite.Require().Len(history, 1)
	suite.Assert().Equal(StatusNew, history[0].FromStatus)
	suite.Assert().Equal(StatusFormShowed, history[0].ToStatus)
	suite.Assert().Equal(ActorCardholder, history[0].Actor)
}

func (suite *PostgresTestSuite) TestListExpiredPayments() {
	ctx := context.Background()
	now := time.Now().UTC()

	overdue := suite.makePayment("order-overdue")
	overdue.ExpiresAt = now.Add(-2 * time.Hour)
	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, overdue))

	barelyOverdue := suite.makePayment("order-barely")
	barelyOverdue.ExpiresAt = now.Add(-time.Minute)
	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, barelyOverdue))

	live := suite.makePayment("order-live")
	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, live))

	// terminal payments never expire
	settled := suite.makePayment("order-settled")
	settled.ExpiresAt = now.Add(-3 * time.Hour)
	settled.Status = StatusConfirmed
	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, settled))

	expired, err := suite.pg.ListExpiredPayments(ctx, now, 10)
	suite.Require().NoError(err)
	suite.Require().Len(expired, 2)
	suite.Assert().Equal(overdue.PaymentID, expired[0].PaymentID)
	suite.Assert().Equal(barelyOverdue.PaymentID, expired[1].PaymentID)

	limited, err := suite.pg.ListExpiredPayments(ctx, now, 1)
	suite.Require().NoError(err)
	suite.Require().Len(limited, 1)
	suite.Assert().Equal(overdue.PaymentID, limited[0].PaymentID)
}

func (suite *PostgresTestSuite) TestListPaymentsInStatus() {
	ctx := context.Background()
	now := time.Now().UTC()

	stuck := suite.makePayment("order-stuck")
	stuck.Status = StatusAuthorizing
	stuck.UpdatedAt = now.Add(-10 * time.Minute)
	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, stuck))

	fresh := suite.makePayment("order-fresh")
	fresh.Status = StatusAuthorizing
	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, fresh))

	parked, err := suite.pg.ListPaymentsInStatus(ctx, StatusAuthorizing, now.Add(-5*time.Minute), 10)
	suite.Require().NoError(err)
	suite.Require().Len(parked, 1)
	suite.Assert().Equal(stuck.PaymentID, parked[0].PaymentID)
}

func (suite *PostgresTestSuite) TestMerchantRoundTrip() {
	ctx := context.Background()

	merchant := &Merchant{
		MerchantKey:         "merch-itest",
		Secret:              "usjRhBXmCGJDYMnM",
		Active:              true,
		SupportedCurrencies: pq.StringArray{"RUB", "USD"},
	}
	suite.Require().NoError(suite.pg.UpsertMerchant(ctx, merchant))

	got, err := suite.pg.GetMerchant(ctx, "merch-itest")
	suite.Require().NoError(err)
	suite.Require().NotNil(got)
	suite.Assert().Equal("usjRhBXmCGJDYMnM", got.Secret)
	suite.Assert().True(got.Active)
	suite.Assert().Equal(pq.StringArray{"RUB", "USD"}, got.SupportedCurrencies)
	suite.Assert().Nil(got.LastSeen)

	// upsert replaces credentials in place
	merchant.Secret = "rotated"
	merchant.Active = false
	suite.Require().NoError(suite.pg.UpsertMerchant(ctx, merchant))

	got, err = suite.pg.GetMerchant(ctx, "merch-itest")
	suite.Require().NoError(err)
	suite.Assert().Equal("rotated", got.Secret)
	suite.Assert().False(got.Active)

	seen := time.Now().UTC().Truncate(time.Millisecond)
	suite.Require().NoError(suite.pg.TouchMerchant(ctx, "merch-itest", seen))

	got, err = suite.pg.GetMerchant(ctx, "merch-itest")
	suite.Require().NoError(err)
	suite.Require().NotNil(got.LastSeen)
	suite.Assert().WithinDuration(seen, *got.LastSeen, time.Second)

	missing, err := suite.pg.GetMerchant(ctx, "merch-unknown")
	suite.Require().NoError(err)
	suite.Assert().Nil(missing)
}

func (suite *PostgresTestSuite) TestRefundLedger() {
	ctx := context.Background()
	payment := suite.makePayment("order-refunds")
	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, payment))

	first := &Refund{
		ID:          uuid.NewV4(),
		PaymentID:   payment.PaymentID,
		Kind:        RefundKindRefund,
		Amount:      400,
		AmountValue: decimal.New(400, -2),
		CreatedAt:   time.Now().UTC().Add(-time.Minute),
	}
	second := &Refund{
		ID:          uuid.NewV4(),
		PaymentID:   payment.PaymentID,
		Kind:        RefundKindRefund,
		Amount:      600,
		AmountValue: decimal.New(600, -2),
		CreatedAt:   time.Now().UTC(),
	}
	suite.Require().NoError(suite.pg.InsertRefund(ctx, first))
	suite.Require().NoError(suite.pg.InsertRefund(ctx, second))

	refunds, err := suite.pg.ListRefunds(ctx, payment.PaymentID)
	suite.Require().NoError(err)
	suite.Require().Len(refunds, 2)
	suite.Assert().Equal(int64(400), refunds[0].Amount)
	suite.Assert().Equal(int64(600), refunds[1].Amount)
	suite.Assert().True(refunds[0].AmountValue.Equal(decimal.New(400, -2)))
}

func (suite *PostgresTestSuite) TestWebhookQueue() {
	ctx := context.Background()
	payment := suite.makePayment("order-hooks")
	suite.Require().NoError(suite.pg.CreatePaymentIfAbsent(ctx, payment))

	job := &WebhookJob{
		PaymentID:   payment.PaymentID,
		MerchantKey: "merch-itest",
		URL:         "https://shop.example/hook",
		Payload:     datastore.Metadata{"Status": "CONFIRMED", "Success": true},
		NextRunAt:   time.Now().UTC().Add(-time.Second),
	}
	suite.Require().NoError(suite.pg.EnqueueWebhook(ctx, job))
	suite.Require().False(uuid.Equal(job.ID, uuid.Nil))

	// a failed delivery is rescheduled with the error recorded
	attempted, err := suite.pg.RunNextWebhookJob(ctx, &scriptedWorker{errs: []error{errors.New("endpoint down")}})
	suite.Require().NoError(err)
	suite.Assert().True(attempted)

	var jobs []WebhookJob
	err = suite.pg.RawDB().Select(&jobs, "select * from webhook_jobs where id = $1", job.ID)
	suite.Require().NoError(err)
	suite.Require().Len(jobs, 1)
	suite.Assert().Equal(1, jobs[0].Attempts)
	suite.Require().NotNil(jobs[0].LastError)
	suite.Assert().Contains(*jobs[0].LastError, "endpoint down")
	suite.Assert().Nil(jobs[0].DeliveredAt)
	suite.Assert().True(jobs[0].NextRunAt.After(time.Now().UTC()))

	// nothing is due until the backoff elapses
	attempted, err = suite.pg.RunNextWebhookJob(ctx, &scriptedWorker{})
	suite.Require().NoError(err)
	suite.Assert().False(attempted)

	_, err = suite.pg.RawDB().Exec("update webhook_jobs set next_run_at = current_timestamp - interval '1 second' where id = $1", job.ID)
	suite.Require().NoError(err)

	attempted, err = suite.pg.RunNextWebhookJob(ctx, &scriptedWorker{})
	suite.Require().NoError(err)
	suite.Assert().True(attempted)

	jobs = nil
	err = suite.pg.RawDB().Select(&jobs, "select * from webhook_jobs where id = $1", job.ID)
	suite.Require().NoError(err)
	suite.Require().Len(jobs, 1)
	suite.Assert().NotNil(jobs[0].DeliveredAt)
	suite.Assert().Nil(jobs[0].LastError)

	// delivered jobs never run again
	attempted, err = suite.pg.RunNextWebhookJob(ctx, &scriptedWorker{})
	suite.Require().NoError(err)
	suite.Assert().False(attempted)
}
