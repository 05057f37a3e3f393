package payments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/linkedin/goavro"
	"github.com/prometheus/client_golang/prometheus"
	uuid "github.com/satori/go.uuid"
	kafka "github.com/segmentio/kafka-go"

	appctx "github.com/brave-intl/acquiring-go/libs/context"
	kafkautils "github.com/brave-intl/acquiring-go/libs/kafka"
	"github.com/brave-intl/acquiring-go/libs/logging"
	"github.com/brave-intl/acquiring-go/libs/ptr"
	srv "github.com/brave-intl/acquiring-go/libs/service"
)

const (
	// sweepBatchSize bounds one expiry sweep pass.
	sweepBatchSize = 50
	// reconcileBatchSize bounds one stuck payment reconcile pass.
	reconcileBatchSize = 20
	// stuckPaymentAge is how long a payment may sit in AUTHORIZING before
	// the reconciler asks the bank what became of it.
	stuckPaymentAge = 5 * time.Minute
)

var (
	paymentStatusTopic = os.Getenv("ENV") + ".payments.status"

	// countPaymentsInitialized counts payments accepted by Init ( since last start )
	countPaymentsInitialized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_initialized_total",
			Help: "count of payments created by Init ( since last start )",
		},
	)

	// countPaymentsConfirmed counts captures broken down by pay type
	countPaymentsConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_confirmed_total",
			Help: "count of payments reaching CONFIRMED ( since last start ) broken down by pay type",
		},
		[]string{"pay_type"},
	)

	// countPaymentsRejected counts terminal rejections broken down by reason
	countPaymentsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_rejected_total",
			Help: "count of payments reaching REJECTED ( since last start ) broken down by reason",
		},
		[]string{"reason"},
	)

	// countWebhookDeliveries counts webhook delivery attempts broken down by result
	countWebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "count of webhook delivery attempts ( since last start ) broken down by result",
		},
		[]string{"result"},
	)
)

// SetPaymentStatusTopic allows for a new topic to be used
func SetPaymentStatusTopic(newTopic string) {
	paymentStatusTopic = newTopic
}

// Envelope is the authenticated request wrapper: every root level scalar of
// the body participates in the signature, Token carries it. Params holds
// the entries with Token already removed.
type Envelope struct {
	MerchantKey string
	Token       string
	Params      map[string]interface{}
}

// InitRequest carries the authenticated envelope of an Init call together
// with its decoded intent fields.
type InitRequest struct {
	Envelope  Envelope
	Intent    PaymentIntent
	ExpiresAt time.Time
}

// InitResult is the Init response body.
type InitResult struct {
	PaymentID  string    `json:"paymentId"`
	OrderID    string    `json:"orderId"`
	Status     Status    `json:"status"`
	PaymentURL string    `json:"paymentUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// AcceptCardRequest is card data submitted from the hosted form.
type AcceptCardRequest struct {
	PaymentID string
	Card      Card
}

// Submit3DSRequest is the challenge answer submitted from the hosted form.
type Submit3DSRequest struct {
	PaymentID string
	OTP       string
}

// AcceptResult tells the hosted form where to send the cardholder next.
type AcceptResult struct {
	PaymentID   string `json:"paymentId"`
	Status      Status `json:"status"`
	Challenge   bool   `json:"challenge,omitempty"`
	RedirectURL string `json:"redirectUrl"`
}

// ConfirmRequest is a merchant capture call.
type ConfirmRequest struct {
	Envelope  Envelope
	PaymentID string
}

// CancelRequest is a merchant cancel, reversal or refund call. A nil Amount
// returns everything still outstanding.
type CancelRequest struct {
	Envelope  Envelope
	PaymentID string
	Amount    *int64
}

// CheckOrderRequest asks for every payment bound to one order id.
type CheckOrderRequest struct {
	Envelope Envelope
	OrderID  string
}

// GetRequest is a point-in-time read of one payment.
type GetRequest struct {
	Envelope  Envelope
	PaymentID string
}

// StatusResult reports the lifecycle outcome of a merchant operation.
type StatusResult struct {
	PaymentID      string `json:"paymentId"`
	OrderID        string `json:"orderId"`
	Status         Status `json:"status"`
	RefundedAmount *int64 `json:"refundedAmount,omitempty"`
}

// acceptableStatuses are the statuses AcceptCard may start from. AUTH_FAIL
// admits cardholder retries while the attempt budget lasts.
var acceptableStatuses = map[Status]bool{
	StatusNew:             true,
	StatusFormShowed:      true,
	StatusOneChooseVision: true,
	StatusFinishAuthorize: true,
	StatusAuthFail:        true,
}

// challengeStatuses are the statuses Submit3DS may answer from.
var challengeStatuses = map[Status]bool{
	StatusThreeDSChecking:      true,
	StatusSubmitPassivization:  true,
	StatusSubmitPassivization2: true,
}

// Service orchestrates the payment lifecycle across the datastore, the
// merchant directory, the issuing bank and the notifier.
type Service struct {
	Datastore   Datastore
	merchants   MerchantDirectory
	bank        BankClient
	signer      Signer
	notifier    *Notifier
	state       *StateMachine
	clock       Clock
	idgen       IdGen
	formBaseURL string
	codecs      map[string]*goavro.Codec
	kafkaWriter *kafka.Writer
	kafkaDialer *kafka.Dialer
	jobs        []srv.Job
}

// Jobs - Implement srv.JobService interface
func (service *Service) Jobs() []srv.Job {
	return service.jobs
}

// InitKafka by creating a kafka writer and local copies of the codecs. The
// status stream is optional: without brokers configured the service runs
// with events disabled.
func (service *Service) InitKafka(ctx context.Context) error {
	brokers, _ := appctx.GetStringFromContext(ctx, appctx.KafkaBrokersCTXKey)
	if brokers == "" {
		brokers = os.Getenv("KAFKA_BROKERS")
	}
	if brokers == "" {
		return nil
	}
	ctx = context.WithValue(ctx, appctx.KafkaBrokersCTXKey, brokers)

	var err error
	service.kafkaWriter, service.kafkaDialer, err = kafkautils.InitKafkaWriter(ctx, paymentStatusTopic)
	if err != nil {
		return fmt.Errorf("failed to initialize kafka: %w", err)
	}

	service.codecs, err = kafkautils.GenerateCodecs(map[string]string{
		"paymentStatus": paymentStatusEventSchema,
	})
	if err != nil {
		return fmt.Errorf("failed to generate codecs kafka: %w", err)
	}
	return nil
}

// InitService creates a service using the passed datastore and collaborators.
// A nil directory or bank gets the default wiring: the cached directory over
// the same datastore and the simulated bank behind the resilient wrapper.
func InitService(ctx context.Context, datastore Datastore, merchants MerchantDirectory, bank BankClient) (*Service, error) {
	// register metrics with prometheus
	if err := prometheus.Register(countPaymentsInitialized); err != nil {
		if ae, ok := err.(prometheus.AlreadyRegisteredError); ok {
			countPaymentsInitialized = ae.ExistingCollector.(prometheus.Counter)
		}
	}
	if err := prometheus.Register(countPaymentsConfirmed); err != nil {
		if ae, ok := err.(prometheus.AlreadyRegisteredError); ok {
			countPaymentsConfirmed = ae.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	if err := prometheus.Register(countPaymentsRejected); err != nil {
		if ae, ok := err.(prometheus.AlreadyRegisteredError); ok {
			countPaymentsRejected = ae.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	if err := prometheus.Register(countWebhookDeliveries); err != nil {
		if ae, ok := err.(prometheus.AlreadyRegisteredError); ok {
			countWebhookDeliveries = ae.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	if merchants == nil {
		merchants = NewCachedDirectory(datastore)
	}
	if bank == nil {
		bank = NewResilientBankClient(NewSimulatedBank(), defaultBankConcurrency)
	}

	formBaseURL, _ := appctx.GetStringFromContext(ctx, appctx.PaymentFormBaseCTXKey)
	if formBaseURL == "" {
		formBaseURL = "http://localhost:3333"
	}

	clock := RealClock{}
	signer := SHA256Signer{}

	service := &Service{
		Datastore:   datastore,
		merchants:   merchants,
		bank:        bank,
		signer:      signer,
		notifier:    NewNotifier(datastore, merchants, signer, clock),
		state:       NewStateMachine(datastore, clock),
		clock:       clock,
		idgen:       PaymentIDGen{},
		formBaseURL: formBaseURL,
	}

	// setup runnable jobs
	service.jobs = []srv.Job{
		{
			Func:    service.RunNextExpiredPayment,
			Cadence: 30 * time.Second,
			Workers: 1,
		},
		{
			Func:    service.RunNextWebhookJob,
			Cadence: 5 * time.Second,
			Workers: 1,
		},
		{
			Func:    service.RunNextStuckPayment,
			Cadence: time.Minute,
			Workers: 1,
		},
	}

	if err := service.InitKafka(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

// Init authenticates the intent, binds it to a fresh payment and advances
// it to NEW.
func (service *Service) Init(ctx context.Context, req *InitRequest) (*InitResult, error) {
	merchant, err := service.authenticate(ctx, req.Envelope)
	if err != nil {
		return nil, err
	}

	intent := req.Intent
	intent.MerchantKey = merchant.MerchantKey
	if err := service.validateIntent(merchant, &intent); err != nil {
		return nil, err
	}

	now := service.clock.Now()
	payment := &Payment{
		PaymentID:   service.idgen.NewPaymentID(now),
		MerchantKey: merchant.MerchantKey,
		OrderID:     intent.OrderID,
		Amount:      intent.Amount,
		Currency:    intent.Currency,
		Status:      StatusInit,
		Intent:      intent,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   resolveDeadline(now, req.ExpiresAt),
	}

	if err := service.Datastore.CreatePaymentIfAbsent(ctx, payment); err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			return nil, service.duplicateOrder(ctx, merchant.MerchantKey, intent.OrderID)
		}
		return nil, WrapError(err, ErrCodeInternal, "payment create failed")
	}

	payment, err = service.transition(ctx, payment.PaymentID, Change{To: StatusNew, Actor: ActorSystem})
	if err != nil {
		return nil, err
	}

	countPaymentsInitialized.Inc()

	return &InitResult{
		PaymentID:  payment.PaymentID,
		OrderID:    payment.OrderID,
		Status:     payment.Status,
		PaymentURL: service.hostedFormURL(payment.PaymentID),
		ExpiresAt:  payment.ExpiresAt,
	}, nil
}

// ShowForm loads the payment for hosted form rendering and marks the first
// display, which extends the cardholder interaction window.
func (service *Service) ShowForm(ctx context.Context, paymentID string) (*Payment, error) {
	payment, err := service.Datastore.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, WrapError(err, ErrCodeInternal, "payment lookup failed")
	}
	if payment == nil {
		return nil, ErrNotFound
	}

	if payment.Live() && payment.Expired(service.clock.Now()) {
		service.expireNow(ctx, payment)
		return nil, NewError(ErrCodeExpired, "payment deadline has passed")
	}

	if payment.Status == StatusNew {
		marked, err := service.transition(ctx, payment.PaymentID, Change{To: StatusFormShowed, Actor: ActorCardholder})
		if err == nil {
			payment = marked
		} else if !IsCode(err, ErrCodeConcurrentModification) {
			return nil, err
		}
	}
	return payment, nil
}

// AcceptCard takes card data from the hosted form and drives the payment
// through authorization at the bank.
func (service *Service) AcceptCard(ctx context.Context, req *AcceptCardRequest) (*AcceptResult, error) {
	payment, err := service.Datastore.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, WrapError(err, ErrCodeInternal, "payment lookup failed")
	}
	if payment == nil {
		return nil, ErrNotFound
	}

	if !acceptableStatuses[payment.Status] {
		return nil, NewError(ErrCodeInvalidState, fmt.Sprintf("card entry does not apply to %s", payment.Status))
	}

	now := service.clock.Now()
	if payment.Expired(now) {
		service.expireNow(ctx, payment)
		return nil, NewError(ErrCodeExpired, "payment deadline has passed")
	}

	if err := req.Card.Validate(now); err != nil {
		return nil, err
	}

	payment, err = service.advanceToAuthorizing(ctx, payment, req.Card)
	if err != nil {
		return nil, err
	}

	result, bankErr := service.bank.RequestPayment(service.bankCtx(ctx, payment), req.Card, payment.Amount)
	if bankErr != nil {
		// The payment stays AUTHORIZING; the reconciler settles it from
		// the bank's view once the outage passes.
		if IsCode(bankErr, ErrCodeBankUnavailable) {
			return nil, bankErr
		}
		return nil, WrapError(bankErr, ErrCodeBankUnavailable, "issuing bank is unavailable")
	}
	return service.finishAuthorization(ctx, payment, result)
}

// Submit3DS answers an open 3-D Secure challenge.
func (service *Service) Submit3DS(ctx context.Context, req *Submit3DSRequest) (*AcceptResult, error) {
	payment, err := service.Datastore.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, WrapError(err, ErrCodeInternal, "payment lookup failed")
	}
	if payment == nil {
		return nil, ErrNotFound
	}

	if !challengeStatuses[payment.Status] || payment.BankRef == nil {
		return nil, NewError(ErrCodeInvalidState, fmt.Sprintf("challenge answer does not apply to %s", payment.Status))
	}

	now := service.clock.Now()
	if payment.Expired(now) {
		service.expireNow(ctx, payment)
		return nil, NewError(ErrCodeExpired, "payment deadline has passed")
	}

	if payment.Status == StatusThreeDSChecking {
		queued := StatusSubmitPassivization
		if payment.LastErrorCode != nil {
			// A prior round failed; the retry queues under its own marker.
			queued = StatusSubmitPassivization2
		}
		payment, err = service.transition(ctx, payment.PaymentID, Change{To: queued, Actor: ActorCardholder})
		if err != nil {
			return nil, err
		}
	}

	result, bankErr := service.bank.Authorize(service.bankCtx(ctx, payment), *payment.BankRef, req.OTP)
	if bankErr != nil {
		if IsCode(bankErr, ErrCodeBankUnavailable) {
			return nil, bankErr
		}
		return nil, WrapError(bankErr, ErrCodeBankUnavailable, "issuing bank is unavailable")
	}

	payment, err = service.transition(ctx, payment.PaymentID, Change{To: StatusThreeDSChecked, Actor: ActorBank})
	if err != nil {
		return nil, err
	}

	if result.Code != BankOK {
		if _, err := service.failAuthorization(ctx, payment, ActorBank, ErrCodeBankRejected, "the challenge answer was refused"); err != nil {
			return nil, err
		}
		return nil, NewError(ErrCodeBankRejected, "the challenge answer was refused")
	}

	payment, err = service.transition(ctx, payment.PaymentID, Change{To: StatusAuthorized, Actor: ActorBank})
	if err != nil {
		return nil, err
	}
	payment, err = service.settleAuthorized(ctx, payment)
	if err != nil {
		return nil, err
	}
	return &AcceptResult{
		PaymentID:   payment.PaymentID,
		Status:      payment.Status,
		RedirectURL: service.successRedirect(payment),
	}, nil
}

// Confirm captures a two-stage payment sitting in AUTHORIZED.
func (service *Service) Confirm(ctx context.Context, req *ConfirmRequest) (*StatusResult, error) {
	merchant, err := service.authenticate(ctx, req.Envelope)
	if err != nil {
		return nil, err
	}
	payment, err := service.ownedPayment(ctx, merchant, req.PaymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status != StatusAuthorized {
		return nil, NewError(ErrCodeInvalidState, fmt.Sprintf("confirm requires AUTHORIZED, payment is %s", payment.Status))
	}

	payment, err = service.capture(ctx, payment, ActorMerchant)
	if err != nil {
		return nil, err
	}
	return statusResult(payment), nil
}

// Cancel withdraws, reverses or refunds the payment depending on where it
// stands. REVERSING and REFUNDING admit a retry of an interrupted cancel.
func (service *Service) Cancel(ctx context.Context, req *CancelRequest) (*StatusResult, error) {
	merchant, err := service.authenticate(ctx, req.Envelope)
	if err != nil {
		return nil, err
	}
	payment, err := service.ownedPayment(ctx, merchant, req.PaymentID)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case StatusNew, StatusFormShowed:
		payment, err = service.transition(ctx, payment.PaymentID, Change{To: StatusCancelled, Actor: ActorMerchant})
		if err != nil {
			return nil, err
		}
		return statusResult(payment), nil
	case StatusAuthorized, StatusReversing:
		return service.returnFunds(ctx, payment, req.Amount,
			StatusReversing, StatusReversed, StatusPartialReversed, RefundKindReversal)
	case StatusConfirmed, StatusRefunding:
		return service.returnFunds(ctx, payment, req.Amount,
			StatusRefunding, StatusRefunded, StatusPartialRefunded, RefundKindRefund)
	default:
		return nil, NewError(ErrCodeInvalidState, fmt.Sprintf("cancel does not apply to %s", payment.Status))
	}
}

// CheckOrder returns every payment bound to the order, oldest first.
func (service *Service) CheckOrder(ctx context.Context, req *CheckOrderRequest) ([]PaymentSummary, error) {
	merchant, err := service.authenticate(ctx, req.Envelope)
	if err != nil {
		return nil, err
	}

	payments, err := service.Datastore.ListPaymentsByOrder(ctx, merchant.MerchantKey, req.OrderID)
	if err != nil {
		return nil, WrapError(err, ErrCodeInternal, "order lookup failed")
	}
	if len(payments) == 0 {
		return nil, ErrNotFound
	}

	summaries := make([]PaymentSummary, 0, len(payments))
	for i := range payments {
		history, err := service.Datastore.GetPaymentHistory(ctx, payments[i].PaymentID)
		if err != nil {
			return nil, WrapError(err, ErrCodeInternal, "history lookup failed")
		}
		summaries = append(summaries, Summarize(&payments[i], history))
	}
	return summaries, nil
}

// Get is a point-in-time read of one payment with its full history.
func (service *Service) Get(ctx context.Context, req *GetRequest) (*PaymentView, error) {
	merchant, err := service.authenticate(ctx, req.Envelope)
	if err != nil {
		return nil, err
	}
	payment, err := service.ownedPayment(ctx, merchant, req.PaymentID)
	if err != nil {
		return nil, err
	}

	history, err := service.Datastore.GetPaymentHistory(ctx, payment.PaymentID)
	if err != nil {
		return nil, WrapError(err, ErrCodeInternal, "history lookup failed")
	}
	return &PaymentView{Payment: *payment, History: history}, nil
}

// RunNextExpiredPayment sweeps payments past their deadline into
// DEADLINE_EXPIRED where the lifecycle table has that edge.
func (service *Service) RunNextExpiredPayment(ctx context.Context) (bool, error) {
	logger := logging.Logger(ctx, "payments.RunNextExpiredPayment")

	expired, err := service.Datastore.ListExpiredPayments(ctx, service.clock.Now(), sweepBatchSize)
	if err != nil {
		return false, fmt.Errorf("failed to list expired payments: %w", err)
	}

	for i := range expired {
		payment := &expired[i]
		if !CanTransition(payment.Status, StatusDeadlineExpired) {
			continue
		}
		if _, err := service.transition(ctx, payment.PaymentID, Change{To: StatusDeadlineExpired, Actor: ActorSweeper}); err != nil {
			// Lost races are fine, another worker got the edge first.
			if IsCode(err, ErrCodeConcurrentModification) || IsCode(err, ErrCodeInvalidTransition) {
				continue
			}
			logger.Error().Err(err).Str("paymentID", payment.PaymentID).Msg("failed to expire payment")
		}
	}
	return len(expired) > 0, nil
}

// RunNextWebhookJob delivers the next due merchant notification.
func (service *Service) RunNextWebhookJob(ctx context.Context) (bool, error) {
	return service.Datastore.RunNextWebhookJob(ctx, service.notifier)
}

// RunNextStuckPayment reconciles payments parked in AUTHORIZING after an
// abandoned bank call by settling them from the bank's view.
func (service *Service) RunNextStuckPayment(ctx context.Context) (bool, error) {
	logger := logging.Logger(ctx, "payments.RunNextStuckPayment")

	cutoff := service.clock.Now().Add(-stuckPaymentAge)
	stuck, err := service.Datastore.ListPaymentsInStatus(ctx, StatusAuthorizing, cutoff, reconcileBatchSize)
	if err != nil {
		return false, fmt.Errorf("failed to list stuck payments: %w", err)
	}

	for i := range stuck {
		payment := &stuck[i]
		if err := service.reconcile(ctx, payment); err != nil {
			logger.Error().Err(err).Str("paymentID", payment.PaymentID).Msg("failed to reconcile payment")
		}
	}
	return len(stuck) > 0, nil
}

// reconcile settles one stuck AUTHORIZING payment.
func (service *Service) reconcile(ctx context.Context, payment *Payment) error {
	if payment.BankRef == nil {
		// The bank never answered the original request; hand the attempt
		// back so the cardholder can retry.
		_, err := service.failAuthorization(ctx, payment, ActorReconciler,
			ErrCodeBankUnavailable, "authorization was abandoned")
		return err
	}

	code, err := service.bank.StatusOf(service.bankCtx(ctx, payment), *payment.BankRef)
	if err != nil {
		// Bank still unreachable, the next pass retries.
		return nil
	}

	switch code {
	case BankOK:
		payment, err := service.transition(ctx, payment.PaymentID, Change{To: StatusAuthorized, Actor: ActorReconciler})
		if err != nil {
			return err
		}
		_, err = service.settleAuthorized(ctx, payment)
		return err
	case BankAuthRequired:
		_, err := service.transition(ctx, payment.PaymentID, Change{To: StatusThreeDSChecking, Actor: ActorReconciler})
		return err
	default:
		_, err := service.failAuthorization(ctx, payment, ActorReconciler,
			ErrCodeBankRejected, "the bank reported the authorization failed")
		return err
	}
}

// authenticate resolves the merchant behind the envelope and verifies the
// request token. Unknown merchants fail exactly like bad tokens.
func (service *Service) authenticate(ctx context.Context, env Envelope) (*Merchant, error) {
	merchant, err := service.merchants.Lookup(ctx, env.MerchantKey)
	if err != nil {
		return nil, WrapError(err, ErrCodeInternal, "merchant lookup failed")
	}
	if merchant == nil {
		return nil, NewError(ErrCodeInvalidToken, "request token does not verify")
	}
	if !merchant.Active {
		return nil, NewError(ErrCodeTerminalBlocked, "merchant is blocked")
	}
	if !service.signer.Verify(env.Params, env.Token, merchant.Secret) {
		return nil, NewError(ErrCodeInvalidToken, "request token does not verify")
	}

	if err := service.Datastore.TouchMerchant(ctx, merchant.MerchantKey, service.clock.Now()); err != nil {
		logging.Logger(ctx, "payments").Warn().Err(err).Str("merchantKey", merchant.MerchantKey).Msg("merchant last seen update failed")
	}
	return merchant, nil
}

// validateIntent checks the decoded intent against the merchant's
// configuration and fills protocol defaults.
func (service *Service) validateIntent(merchant *Merchant, intent *PaymentIntent) error {
	if intent.OrderID == "" {
		return NewError(ErrCodeInvalidState, "order id is required")
	}
	if intent.Amount <= 0 {
		return NewError(ErrCodeInvalidState, "amount must be positive")
	}
	if !merchant.SupportsCurrency(intent.Currency) {
		return NewError(ErrCodeInvalidState, fmt.Sprintf("currency %s is not enabled for this merchant", intent.Currency))
	}
	for _, u := range []string{intent.SuccessURL, intent.FailURL, intent.NotificationURL} {
		if u != "" && !govalidator.IsURL(u) {
			return NewError(ErrCodeInvalidState, "redirect urls must be well formed")
		}
	}
	switch intent.PayType {
	case "":
		intent.PayType = PayTypeSingleStage
	case PayTypeSingleStage, PayTypeTwoStage:
	default:
		return NewError(ErrCodeInvalidState, fmt.Sprintf("unknown pay type %q", intent.PayType))
	}
	if intent.Language == "" {
		intent.Language = DefaultLanguage
	}
	return nil
}

// duplicateOrder builds the DUPLICATE_ORDER failure carrying the payment
// already holding the order slot.
func (service *Service) duplicateOrder(ctx context.Context, merchantKey string, orderID string) error {
	dup := NewError(ErrCodeDuplicateOrder, "order already has a live payment")

	existing, err := service.Datastore.GetLivePaymentByOrder(ctx, merchantKey, orderID)
	if err != nil {
		logging.Logger(ctx, "payments").Error().Err(err).Msg("duplicate order lookup failed")
		return dup
	}
	if existing != nil {
		dup = dup.WithData(map[string]interface{}{
			"paymentId": existing.PaymentID,
			"status":    existing.Status,
		})
	}
	return dup
}

// advanceToAuthorizing walks the pre-authorization chain from wherever the
// payment stands. The card fingerprint rides on the AUTHORIZING hop, which
// also charges one attempt.
func (service *Service) advanceToAuthorizing(ctx context.Context, payment *Payment, card Card) (*Payment, error) {
	if payment.Status == StatusAuthFail && payment.AttemptCount >= DefaultMaxAttempts {
		if _, err := service.transition(ctx, payment.PaymentID, Change{
			To:        StatusRejected,
			Actor:     ActorSystem,
			ErrorCode: codePtr(ErrCodeBankRejected),
			Message:   ptr.FromString("authorization attempts exhausted"),
		}); err != nil {
			return nil, err
		}
		return nil, NewError(ErrCodeBankRejected, "authorization attempts exhausted")
	}

	var route []Status
	switch payment.Status {
	case StatusNew:
		route = []Status{StatusFormShowed, StatusOneChooseVision, StatusFinishAuthorize, StatusAuthorizing}
	case StatusFormShowed:
		route = []Status{StatusOneChooseVision, StatusFinishAuthorize, StatusAuthorizing}
	case StatusOneChooseVision:
		route = []Status{StatusFinishAuthorize, StatusAuthorizing}
	case StatusFinishAuthorize, StatusAuthFail:
		route = []Status{StatusAuthorizing}
	}

	var err error
	for _, to := range route {
		change := Change{To: to, Actor: ActorCardholder}
		if to == StatusAuthorizing {
			change.CardFingerprint = ptr.FromString(card.Fingerprint())
		}
		payment, err = service.transition(ctx, payment.PaymentID, change)
		if err != nil {
			return nil, err
		}
	}
	return payment, nil
}

// finishAuthorization settles the AUTHORIZING payment from the bank's
// answer to the payment request.
func (service *Service) finishAuthorization(ctx context.Context, payment *Payment, result *BankResult) (*AcceptResult, error) {
	switch result.Code {
	case BankOK:
		payment, err := service.transition(ctx, payment.PaymentID, Change{
			To:      StatusAuthorized,
			Actor:   ActorBank,
			BankRef: ptr.FromString(result.BankRef),
		})
		if err != nil {
			return nil, err
		}
		payment, err = service.settleAuthorized(ctx, payment)
		if err != nil {
			return nil, err
		}
		return &AcceptResult{
			PaymentID:   payment.PaymentID,
			Status:      payment.Status,
			RedirectURL: service.successRedirect(payment),
		}, nil

	case BankAuthRequired:
		payment, err := service.transition(ctx, payment.PaymentID, Change{
			To:      StatusThreeDSChecking,
			Actor:   ActorBank,
			BankRef: ptr.FromString(result.BankRef),
		})
		if err != nil {
			return nil, err
		}
		return &AcceptResult{
			PaymentID:   payment.PaymentID,
			Status:      payment.Status,
			Challenge:   true,
			RedirectURL: service.challengeURL(payment.PaymentID),
		}, nil

	case BankInvalidCard:
		if _, err := service.failAuthorization(ctx, payment, ActorBank, ErrCodeInvalidCard, "the bank refused the card"); err != nil {
			return nil, err
		}
		return nil, NewError(ErrCodeInvalidCard, "the bank refused the card")

	case BankFraud, BankRejected:
		message := "the bank rejected the payment"
		if result.Code == BankFraud {
			message = "the bank flagged the card"
		}
		if _, err := service.transition(ctx, payment.PaymentID, Change{
			To:        StatusRejected,
			Actor:     ActorBank,
			ErrorCode: codePtr(ErrCodeBankRejected),
			Message:   ptr.FromString(message),
		}); err != nil {
			return nil, err
		}
		return nil, NewError(ErrCodeBankRejected, message)
	}
	return nil, NewError(ErrCodeBankUnavailable, "issuing bank is unavailable")
}

// failAuthorization records the failed attempt and spends the budget,
// rejecting the payment once attempts are exhausted.
func (service *Service) failAuthorization(ctx context.Context, payment *Payment, actor Actor, code ErrorCode, message string) (*Payment, error) {
	payment, err := service.transition(ctx, payment.PaymentID, Change{
		To:        StatusAuthFail,
		Actor:     actor,
		ErrorCode: codePtr(code),
		Message:   ptr.FromString(message),
	})
	if err != nil {
		return nil, err
	}
	if payment.AttemptCount < DefaultMaxAttempts {
		return payment, nil
	}
	return service.transition(ctx, payment.PaymentID, Change{
		To:        StatusRejected,
		Actor:     ActorSystem,
		ErrorCode: codePtr(ErrCodeBankRejected),
		Message:   ptr.FromString("authorization attempts exhausted"),
	})
}

// settleAuthorized finishes single-stage payments by capturing immediately
// after authorization. Two-stage payments wait for an explicit Confirm.
func (service *Service) settleAuthorized(ctx context.Context, payment *Payment) (*Payment, error) {
	if payment.Intent.PayType != PayTypeSingleStage {
		return payment, nil
	}
	return service.capture(ctx, payment, ActorSystem)
}

// capture drives AUTHORIZED through CONFIRMING to its outcome at the bank.
func (service *Service) capture(ctx context.Context, payment *Payment, actor Actor) (*Payment, error) {
	if payment.BankRef == nil {
		return nil, NewError(ErrCodeInternal, "authorized payment has no bank reference")
	}

	payment, err := service.transition(ctx, payment.PaymentID, Change{To: StatusConfirming, Actor: actor})
	if err != nil {
		return nil, err
	}

	code, bankErr := service.bank.Capture(service.bankCtx(ctx, payment), *payment.BankRef)
	if bankErr != nil || code != BankOK {
		failCode, message := ErrCodeBankRejected, "the bank refused the capture"
		if bankErr != nil {
			failCode, message = ErrCodeBankUnavailable, "issuing bank is unavailable"
		}
		if _, ferr := service.transition(ctx, payment.PaymentID, Change{
			To:        StatusAuthFail,
			Actor:     ActorBank,
			ErrorCode: codePtr(failCode),
			Message:   ptr.FromString(message),
		}); ferr != nil {
			logging.Logger(ctx, "payments").Error().Err(ferr).Str("paymentID", payment.PaymentID).Msg("capture failure transition failed")
		}
		if bankErr != nil {
			return nil, WrapError(bankErr, failCode, message)
		}
		return nil, NewError(failCode, message)
	}

	return service.transition(ctx, payment.PaymentID, Change{To: StatusConfirmed, Actor: ActorBank})
}

// returnFunds reverses a reservation or refunds a capture, with the partial
// variant when the caller returns less than what remains.
func (service *Service) returnFunds(ctx context.Context, payment *Payment, amount *int64, inflight Status, full Status, partial Status, kind RefundKind) (*StatusResult, error) {
	if payment.BankRef == nil {
		return nil, NewError(ErrCodeInternal, "settled payment has no bank reference")
	}

	requested, isPartial, err := resolveCancelAmount(payment, amount)
	if err != nil {
		return nil, err
	}

	if payment.Status != inflight {
		payment, err = service.transition(ctx, payment.PaymentID, Change{To: inflight, Actor: ActorMerchant})
		if err != nil {
			return nil, err
		}
	}

	var code BankCode
	var bankErr error
	if kind == RefundKindReversal {
		code, bankErr = service.bank.Reverse(service.bankCtx(ctx, payment), *payment.BankRef, amount)
	} else {
		code, bankErr = service.bank.Refund(service.bankCtx(ctx, payment), *payment.BankRef, amount)
	}
	if bankErr != nil {
		// The payment stays in flight; a retried Cancel resumes from here.
		if IsCode(bankErr, ErrCodeBankUnavailable) {
			return nil, bankErr
		}
		return nil, WrapError(bankErr, ErrCodeBankUnavailable, "issuing bank is unavailable")
	}
	if code != BankOK {
		return nil, NewError(ErrCodeBankRejected, fmt.Sprintf("the bank refused the %s", kind))
	}

	to := full
	if isPartial {
		to = partial
	}
	refunded := payment.RefundedAmount + requested
	payment, err = service.transition(ctx, payment.PaymentID, Change{To: to, Actor: ActorBank, RefundedAmount: &refunded})
	if err != nil {
		return nil, err
	}

	service.recordRefund(ctx, payment, kind, requested)
	return statusResult(payment), nil
}

// recordRefund appends the returned funds ledger row. The authoritative
// refunded amount lives on the payment row, so a ledger failure is logged
// rather than surfaced.
func (service *Service) recordRefund(ctx context.Context, payment *Payment, kind RefundKind, amount int64) {
	refund := &Refund{
		ID:          uuid.NewV4(),
		PaymentID:   payment.PaymentID,
		Kind:        kind,
		Amount:      amount,
		AmountValue: MajorUnits(amount, payment.Currency),
		CreatedAt:   service.clock.Now(),
	}
	if err := service.Datastore.InsertRefund(ctx, refund); err != nil {
		logging.Logger(ctx, "payments").Error().Err(err).Str("paymentID", payment.PaymentID).Msg("refund ledger insert failed")
	}
}

// expireNow sweeps one payment past its deadline. Races with the sweeper
// are fine, someone gets the edge and the rest is a no-op.
func (service *Service) expireNow(ctx context.Context, payment *Payment) {
	if !CanTransition(payment.Status, StatusDeadlineExpired) {
		return
	}
	_, err := service.transition(ctx, payment.PaymentID, Change{To: StatusDeadlineExpired, Actor: ActorSystem})
	if err != nil && !IsCode(err, ErrCodeConcurrentModification) && !IsCode(err, ErrCodeInvalidTransition) {
		logging.Logger(ctx, "payments").Warn().Err(err).Str("paymentID", payment.PaymentID).Msg("expiry transition failed")
	}
}

// ownedPayment loads the payment and hides other merchants' payments the
// same way absent ones are hidden.
func (service *Service) ownedPayment(ctx context.Context, merchant *Merchant, paymentID string) (*Payment, error) {
	payment, err := service.Datastore.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, WrapError(err, ErrCodeInternal, "payment lookup failed")
	}
	if payment == nil || payment.MerchantKey != merchant.MerchantKey {
		return nil, ErrNotFound
	}
	return payment, nil
}

// transition applies the change and fans out the side channels every
// successful transition feeds: outcome counters, the merchant webhook
// queue and the kafka status stream.
func (service *Service) transition(ctx context.Context, paymentID string, change Change) (*Payment, error) {
	payment, entry, err := service.state.Transition(ctx, paymentID, change)
	if err != nil {
		return nil, err
	}
	service.afterTransition(ctx, payment, entry)
	return payment, nil
}

func (service *Service) afterTransition(ctx context.Context, payment *Payment, entry *StatusChange) {
	switch payment.Status {
	case StatusConfirmed:
		countPaymentsConfirmed.With(prometheus.Labels{"pay_type": string(payment.Intent.PayType)}).Inc()
	case StatusRejected:
		countPaymentsRejected.With(prometheus.Labels{"reason": ptr.StringOr(entry.ErrorCode, "bank")}).Inc()
	}

	if err := service.notifier.Enqueue(ctx, payment); err != nil {
		logging.Logger(ctx, "payments").Error().Err(err).Str("paymentID", payment.PaymentID).Msg("webhook enqueue failed")
	}

	service.emitStatusEvent(ctx, payment, entry)
}

// emitStatusEvent publishes the transition on the status stream when kafka
// is configured. Stream failures never affect payment state.
func (service *Service) emitStatusEvent(ctx context.Context, payment *Payment, entry *StatusChange) {
	if service.kafkaWriter == nil {
		return
	}
	codec, ok := service.codecs["paymentStatus"]
	if !ok {
		return
	}

	eventMap := map[string]interface{}{
		"paymentId":   payment.PaymentID,
		"merchantKey": payment.MerchantKey,
		"orderId":     payment.OrderID,
		"fromStatus":  string(entry.FromStatus),
		"toStatus":    string(entry.ToStatus),
		"actor":       string(entry.Actor),
		"amount":      strconv.FormatInt(payment.Amount, 10),
		"currency":    payment.Currency,
		"errorCode":   ptr.String(entry.ErrorCode),
		"occurredAt":  entry.At.Format(time.RFC3339Nano),
	}

	binary, err := codec.BinaryFromNative(nil, eventMap)
	if err != nil {
		logging.Logger(ctx, "payments").Error().Err(err).Msg("status event encode failed")
		return
	}
	if err := service.kafkaWriter.WriteMessages(ctx, kafka.Message{Value: binary}); err != nil {
		logging.Logger(ctx, "payments").Error().Err(err).Msg("status event write failed")
	}
}

// bankCtx scopes the outbound bank call to the merchant for fair queueing.
func (service *Service) bankCtx(ctx context.Context, payment *Payment) context.Context {
	return context.WithValue(ctx, appctx.MerchantKeyCTXKey, payment.MerchantKey)
}

func (service *Service) hostedFormURL(paymentID string) string {
	return fmt.Sprintf("%s/form/%s", service.formBaseURL, paymentID)
}

func (service *Service) challengeURL(paymentID string) string {
	return fmt.Sprintf("%s/form/%s/3ds", service.formBaseURL, paymentID)
}

func (service *Service) resultURL(paymentID string) string {
	return fmt.Sprintf("%s/form/%s/result", service.formBaseURL, paymentID)
}

func (service *Service) successRedirect(payment *Payment) string {
	if payment.Intent.SuccessURL != "" {
		return payment.Intent.SuccessURL
	}
	return service.resultURL(payment.PaymentID)
}

func (service *Service) failRedirect(payment *Payment) string {
	if payment.Intent.FailURL != "" {
		return payment.Intent.FailURL
	}
	return service.resultURL(payment.PaymentID)
}

// resolveDeadline applies the intent TTL bounds: absent deadlines default
// to a day out, requested ones are clamped into the allowed window.
func resolveDeadline(now time.Time, requested time.Time) time.Time {
	if requested.IsZero() {
		return now.Add(DefaultIntentTTL)
	}
	if earliest := now.Add(MinIntentTTL); requested.Before(earliest) {
		return earliest
	}
	if latest := now.Add(MaxIntentTTL); requested.After(latest) {
		return latest
	}
	return requested
}

// resolveCancelAmount picks how much a cancel returns and whether that
// leaves the payment partially settled.
func resolveCancelAmount(payment *Payment, amount *int64) (int64, bool, error) {
	remaining := payment.RemainingAmount()
	if amount == nil {
		return remaining, false, nil
	}
	if *amount <= 0 || *amount > remaining {
		return 0, false, NewError(ErrCodeInvalidState, "cancel amount must be within the remaining amount")
	}
	return *amount, *amount < remaining, nil
}

func statusResult(payment *Payment) *StatusResult {
	result := &StatusResult{
		PaymentID: payment.PaymentID,
		OrderID:   payment.OrderID,
		Status:    payment.Status,
	}
	if payment.RefundedAmount > 0 {
		result.RefundedAmount = ptr.FromInt64(payment.RefundedAmount)
	}
	return result
}

func codePtr(code ErrorCode) *string {
	s := string(code)
	return &s
}
