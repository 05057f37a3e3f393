package payments

// DO NOT EDIT!
// This code is generated with http://github.com/hexdigest/gowrap tool
// using ../../.prom-gowrap.tmpl template

//go:generate gowrap gen -p github.com/brave-intl/acquiring-go/services/payments -i Datastore -t ../../.prom-gowrap.tmpl -o instrumented_datastore.go

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DatastoreWithPrometheus implements Datastore interface with all methods wrapped
// with Prometheus metrics
type DatastoreWithPrometheus struct {
	base         Datastore
	instanceName string
}

var datastoreDurationSummaryVec = promauto.NewSummaryVec(
	prometheus.SummaryOpts{
		Name:       "payments_datastore_duration_seconds",
		Help:       "datastore runtime duration and result",
		MaxAge:     time.Minute,
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	},
	[]string{"instance_name", "method", "result"})

// NewDatastoreWithPrometheus returns an instance of the Datastore decorated with prometheus summary metric
func NewDatastoreWithPrometheus(base Datastore, instanceName string) DatastoreWithPrometheus {
	return DatastoreWithPrometheus{
		base:         base,
		instanceName: instanceName,
	}
}

// CommitTransition implements Datastore
func (_d DatastoreWithPrometheus) CommitTransition(ctx context.Context, payment *Payment, expectedVersion int, entry *StatusChange) (err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "CommitTransition", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.CommitTransition(ctx, payment, expectedVersion, entry)
}

// CreatePaymentIfAbsent implements Datastore
func (_d DatastoreWithPrometheus) CreatePaymentIfAbsent(ctx context.Context, payment *Payment) (err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "CreatePaymentIfAbsent", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.CreatePaymentIfAbsent(ctx, payment)
}

// EnqueueWebhook implements Datastore
func (_d DatastoreWithPrometheus) EnqueueWebhook(ctx context.Context, job *WebhookJob) (err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "EnqueueWebhook", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.EnqueueWebhook(ctx, job)
}

// GetLivePaymentByOrder implements Datastore
func (_d DatastoreWithPrometheus) GetLivePaymentByOrder(ctx context.Context, merchantKey string, orderID string) (pp1 *Payment, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetLivePaymentByOrder", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetLivePaymentByOrder(ctx, merchantKey, orderID)
}

// GetMerchant implements Datastore
func (_d DatastoreWithPrometheus) GetMerchant(ctx context.Context, merchantKey string) (mp1 *Merchant, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetMerchant", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetMerchant(ctx, merchantKey)
}

// GetPayment implements Datastore
func (_d DatastoreWithPrometheus) GetPayment(ctx context.Context, paymentID string) (pp1 *Payment, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetPayment", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetPayment(ctx, paymentID)
}

// GetPaymentHistory implements Datastore
func (_d DatastoreWithPrometheus) GetPaymentHistory(ctx context.Context, paymentID string) (sa1 []StatusChange, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "GetPaymentHistory", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.GetPaymentHistory(ctx, paymentID)
}

// InsertRefund implements Datastore
func (_d DatastoreWithPrometheus) InsertRefund(ctx context.Context, refund *Refund) (err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "InsertRefund", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.InsertRefund(ctx, refund)
}

// ListExpiredPayments implements Datastore
func (_d DatastoreWithPrometheus) ListExpiredPayments(ctx context.Context, cutoff time.Time, limit int) (pa1 []Payment, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ListExpiredPayments", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ListExpiredPayments(ctx, cutoff, limit)
}

// ListPaymentsByOrder implements Datastore
func (_d DatastoreWithPrometheus) ListPaymentsByOrder(ctx context.Context, merchantKey string, orderID string) (pa1 []Payment, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ListPaymentsByOrder", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ListPaymentsByOrder(ctx, merchantKey, orderID)
}

// ListPaymentsInStatus implements Datastore
func (_d DatastoreWithPrometheus) ListPaymentsInStatus(ctx context.Context, status Status, updatedBefore time.Time, limit int) (pa1 []Payment, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ListPaymentsInStatus", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ListPaymentsInStatus(ctx, status, updatedBefore, limit)
}

// ListRefunds implements Datastore
func (_d DatastoreWithPrometheus) ListRefunds(ctx context.Context, paymentID string) (ra1 []Refund, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "ListRefunds", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.ListRefunds(ctx, paymentID)
}

// RunNextWebhookJob implements Datastore
func (_d DatastoreWithPrometheus) RunNextWebhookJob(ctx context.Context, worker WebhookWorker) (b1 bool, err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "RunNextWebhookJob", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.RunNextWebhookJob(ctx, worker)
}

// TouchMerchant implements Datastore
func (_d DatastoreWithPrometheus) TouchMerchant(ctx context.Context, merchantKey string, at time.Time) (err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "TouchMerchant", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.TouchMerchant(ctx, merchantKey, at)
}

// UpsertMerchant implements Datastore
func (_d DatastoreWithPrometheus) UpsertMerchant(ctx context.Context, merchant *Merchant) (err error) {
	_since := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}

		datastoreDurationSummaryVec.WithLabelValues(_d.instanceName, "UpsertMerchant", result).Observe(time.Since(_since).Seconds())
	}()
	return _d.base.UpsertMerchant(ctx, merchant)
}
