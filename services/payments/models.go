package payments

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	uuid "github.com/satori/go.uuid"
	"github.com/shopspring/decimal"

	"github.com/brave-intl/acquiring-go/libs/datastore"
)

const (
	// DefaultIntentTTL applies when an intent carries no deadline of its own.
	DefaultIntentTTL = 24 * time.Hour
	// MinIntentTTL is the shortest deadline an intent may request.
	MinIntentTTL = 5 * time.Minute
	// MaxIntentTTL is the longest deadline an intent may request.
	MaxIntentTTL = 24 * time.Hour
	// FormInteractionExtension is granted to the cardholder on entering NEW or FORM_SHOWED.
	FormInteractionExtension = 30 * time.Minute
	// DefaultMaxAttempts bounds authorization retries before a payment is rejected.
	DefaultMaxAttempts = 3
	// DefaultLanguage is the hosted form language when the intent does not choose one.
	DefaultLanguage = "ru"
	// historyTailLimit caps the history rows included in an order summary.
	historyTailLimit = 10
)

// Status is the lifecycle state of a payment.
type Status string

const (
	// StatusInit is the transient creation state, immediately advanced to NEW.
	StatusInit Status = "INIT"
	// StatusNew is an initialized payment awaiting the hosted form.
	StatusNew Status = "NEW"
	// StatusFormShowed means the cardholder has opened the hosted form.
	StatusFormShowed Status = "FORM_SHOWED"
	// StatusOneChooseVision means the cardholder has submitted card data for review.
	StatusOneChooseVision Status = "ONECHOOSEVISION"
	// StatusFinishAuthorize means card data passed validation and authorization begins.
	StatusFinishAuthorize Status = "FINISHAUTHORIZE"
	// StatusAuthorizing means an authorization request is in flight at the bank.
	StatusAuthorizing Status = "AUTHORIZING"
	// StatusThreeDSChecking means the bank demanded a 3-D Secure challenge.
	StatusThreeDSChecking Status = "THREE_DS_CHECKING"
	// StatusSubmitPassivization means a challenge answer is queued at the bank.
	StatusSubmitPassivization Status = "SUBMITPASSIVIZATION"
	// StatusSubmitPassivization2 means a second-round challenge answer is queued.
	StatusSubmitPassivization2 Status = "SUBMITPASSIVIZATION2"
	// StatusThreeDSChecked means the challenge completed and the outcome is pending.
	StatusThreeDSChecked Status = "THREE_DS_CHECKED"
	// StatusAuthorized means funds are reserved on the card.
	StatusAuthorized Status = "AUTHORIZED"
	// StatusAuthFail records a failed authorization attempt that may be retried.
	StatusAuthFail Status = "AUTH_FAIL"
	// StatusRejected is terminal, the bank or the attempt budget refused the payment.
	StatusRejected Status = "REJECTED"
	// StatusConfirming means a capture request is in flight at the bank.
	StatusConfirming Status = "CONFIRMING"
	// StatusConfirmed means funds were captured.
	StatusConfirmed Status = "CONFIRMED"
	// StatusReversing means a release of reserved funds is in flight.
	StatusReversing Status = "REVERSING"
	// StatusReversed is terminal, the reservation was fully released.
	StatusReversed Status = "REVERSED"
	// StatusPartialReversed is terminal, part of the reservation was released.
	StatusPartialReversed Status = "PARTIAL_REVERSED"
	// StatusRefunding means a refund of captured funds is in flight.
	StatusRefunding Status = "REFUNDING"
	// StatusRefunded is terminal, captured funds were fully returned.
	StatusRefunded Status = "REFUNDED"
	// StatusPartialRefunded is terminal, captured funds were partially returned.
	StatusPartialRefunded Status = "PARTIAL_REFUNDED"
	// StatusCancelled is terminal, the merchant withdrew the payment before authorization.
	StatusCancelled Status = "CANCELLED"
	// StatusDeadlineExpired is terminal, the payment outlived its deadline.
	StatusDeadlineExpired Status = "DEADLINE_EXPIRED"
)

// ViewStatus folds the lifecycle state into the coarse family shown on
// order summaries. The persisted status is authoritative everywhere else.
func (s Status) ViewStatus() string {
	switch s {
	case StatusInit, StatusNew, StatusFormShowed, StatusOneChooseVision, StatusFinishAuthorize:
		return "pending"
	case StatusAuthorizing, StatusThreeDSChecking, StatusSubmitPassivization,
		StatusSubmitPassivization2, StatusThreeDSChecked, StatusConfirming,
		StatusReversing, StatusRefunding:
		return "processing"
	case StatusAuthorized, StatusConfirmed:
		return "completed"
	case StatusAuthFail, StatusRejected, StatusDeadlineExpired:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusReversed, StatusPartialReversed, StatusRefunded, StatusPartialRefunded:
		return "refunded"
	}
	return "unknown"
}

// PayType selects the capture discipline for a payment.
type PayType string

const (
	// PayTypeSingleStage authorizes and captures in one flow.
	PayTypeSingleStage PayType = "single-stage"
	// PayTypeTwoStage authorizes now and captures on an explicit confirm.
	PayTypeTwoStage PayType = "two-stage"
)

// Actor identifies who drove a status transition.
type Actor string

const (
	// ActorMerchant is a signed merchant API call.
	ActorMerchant Actor = "merchant"
	// ActorCardholder is a hosted form interaction.
	ActorCardholder Actor = "cardholder"
	// ActorBank is a transition decided by a bank response.
	ActorBank Actor = "bank"
	// ActorSweeper is the expiry sweeper.
	ActorSweeper Actor = "sweeper"
	// ActorReconciler is the stuck payment reconciler.
	ActorReconciler Actor = "reconciler"
	// ActorSystem covers internal transitions such as INIT to NEW.
	ActorSystem Actor = "system"
)

// PaymentIntent is the validated merchant order, immutable once a payment
// binds it. It is persisted whole alongside the payment row for audit.
type PaymentIntent struct {
	MerchantKey     string             `json:"merchantKey"`
	OrderID         string             `json:"orderId"`
	Amount          int64              `json:"amount"`
	Currency        string             `json:"currency"`
	Description     string             `json:"description,omitempty"`
	CustomerKey     string             `json:"customerKey,omitempty"`
	PayType         PayType            `json:"payType"`
	Language        string             `json:"language"`
	SuccessURL      string             `json:"successUrl,omitempty"`
	FailURL         string             `json:"failUrl,omitempty"`
	NotificationURL string             `json:"notificationUrl,omitempty"`
	Recurrent       bool               `json:"recurrent,omitempty"`
	Receipt         datastore.Metadata `json:"receipt,omitempty"`
	Items           []datastore.Metadata `json:"items,omitempty"`
	Shops           []datastore.Metadata `json:"shops,omitempty"`
	Data            map[string]string  `json:"data,omitempty"`
}

// Value marshals the intent for storage in a jsonb column.
func (pi PaymentIntent) Value() (driver.Value, error) {
	return json.Marshal(pi)
}

// Scan reads the intent back from its jsonb storage form.
func (pi *PaymentIntent) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("failed to scan PaymentIntent, not byte slice")
	}
	return json.Unmarshal(b, pi)
}

// Payment is the persistent aggregate driven through the lifecycle table.
type Payment struct {
	PaymentID        string        `json:"paymentId" db:"payment_id"`
	MerchantKey      string        `json:"merchantKey" db:"merchant_key"`
	OrderID          string        `json:"orderId" db:"order_id"`
	Amount           int64         `json:"amount" db:"amount"`
	Currency         string        `json:"currency" db:"currency"`
	Status           Status        `json:"status" db:"status"`
	AttemptCount     int           `json:"attemptCount" db:"attempt_count"`
	Version          int           `json:"version" db:"version"`
	BankRef          *string       `json:"bankRef,omitempty" db:"bank_ref"`
	CardFingerprint  *string       `json:"-" db:"card_fingerprint"`
	LastErrorCode    *string       `json:"lastErrorCode,omitempty" db:"last_error_code"`
	LastErrorMessage *string       `json:"lastErrorMessage,omitempty" db:"last_error_message"`
	RefundedAmount   int64         `json:"refundedAmount" db:"refunded_amount"`
	Intent           PaymentIntent `json:"intent" db:"intent_blob"`
	CreatedAt        time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time     `json:"updatedAt" db:"updated_at"`
	ExpiresAt        time.Time     `json:"expiresAt" db:"expires_at"`
}

// Live reports whether the payment still occupies its (merchant, order) slot.
// Expired, cancelled and rejected payments release the order id for reuse.
func (p *Payment) Live() bool {
	switch p.Status {
	case StatusDeadlineExpired, StatusCancelled, StatusRejected:
		return false
	}
	return true
}

// Expired reports whether the payment deadline has passed.
func (p *Payment) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// RemainingAmount is the part of the payment not yet reversed or refunded.
func (p *Payment) RemainingAmount() int64 {
	return p.Amount - p.RefundedAmount
}

// RefundedValue is the refunded amount expressed in major units.
func (p *Payment) RefundedValue() decimal.Decimal {
	return MajorUnits(p.RefundedAmount, p.Currency)
}

// StatusChange is one append-only history row.
type StatusChange struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	PaymentID    string     `json:"paymentId" db:"payment_id"`
	FromStatus   Status     `json:"fromStatus" db:"from_status"`
	ToStatus     Status     `json:"toStatus" db:"to_status"`
	At           time.Time  `json:"at" db:"at"`
	Actor        Actor      `json:"actor" db:"actor"`
	ErrorCode    *string    `json:"errorCode,omitempty" db:"error_code"`
	Message      *string    `json:"message,omitempty" db:"message"`
	IsRollback   bool       `json:"isRollback,omitempty" db:"is_rollback"`
	RollbackFrom *uuid.UUID `json:"rollbackFrom,omitempty" db:"rollback_from"`
}

// Merchant is a registered caller of the gateway. The secret never leaves
// the server; it only feeds the request signer.
type Merchant struct {
	MerchantKey         string         `json:"merchantKey" db:"merchant_key"`
	Secret              string         `json:"-" db:"secret"`
	Active              bool           `json:"active" db:"active"`
	SupportedCurrencies pq.StringArray `json:"supportedCurrencies" db:"supported_currencies"`
	CreatedAt           time.Time      `json:"createdAt" db:"created_at"`
	LastSeen            *time.Time     `json:"lastSeen,omitempty" db:"last_seen"`
}

// SupportsCurrency reports whether the merchant accepts the given code.
func (m *Merchant) SupportsCurrency(currency string) bool {
	for _, c := range m.SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// RefundKind separates pre-capture reversals from post-capture refunds.
type RefundKind string

const (
	// RefundKindReversal releases a reservation before capture.
	RefundKindReversal RefundKind = "reversal"
	// RefundKindRefund returns captured funds.
	RefundKindRefund RefundKind = "refund"
)

// Refund is one ledger row of returned funds.
type Refund struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	PaymentID   string          `json:"paymentId" db:"payment_id"`
	Kind        RefundKind      `json:"kind" db:"kind"`
	Amount      int64           `json:"amount" db:"amount"`
	AmountValue decimal.Decimal `json:"amountValue" db:"amount_value"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// WebhookJob is one queued merchant notification. Rows are drained by the
// notify workers and kept after delivery for audit.
type WebhookJob struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	PaymentID   string             `json:"paymentId" db:"payment_id"`
	MerchantKey string             `json:"merchantKey" db:"merchant_key"`
	URL         string             `json:"url" db:"url"`
	Payload     datastore.Metadata `json:"payload" db:"payload"`
	Attempts    int                `json:"attempts" db:"attempts"`
	NextRunAt   time.Time          `json:"nextRunAt" db:"next_run_at"`
	LastError   *string            `json:"lastError,omitempty" db:"last_error"`
	DeliveredAt *time.Time         `json:"deliveredAt,omitempty" db:"delivered_at"`
	CreatedAt   time.Time          `json:"createdAt" db:"created_at"`
}

// PaymentSummary is the order-check projection of one payment.
type PaymentSummary struct {
	PaymentID      string          `json:"paymentId"`
	OrderID        string          `json:"orderId"`
	Status         Status          `json:"status"`
	ViewStatus     string          `json:"viewStatus"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	RefundedAmount int64           `json:"refundedAmount"`
	RefundedValue  decimal.Decimal `json:"refundedValue"`
	CreatedAt      time.Time       `json:"createdAt"`
	History        []StatusChange  `json:"history,omitempty"`
}

// Summarize projects a payment and the tail of its history for order checks.
func Summarize(payment *Payment, history []StatusChange) PaymentSummary {
	if len(history) > historyTailLimit {
		history = history[len(history)-historyTailLimit:]
	}
	return PaymentSummary{
		PaymentID:      payment.PaymentID,
		OrderID:        payment.OrderID,
		Status:         payment.Status,
		ViewStatus:     payment.Status.ViewStatus(),
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		RefundedAmount: payment.RefundedAmount,
		RefundedValue:  payment.RefundedValue(),
		CreatedAt:      payment.CreatedAt,
		History:        history,
	}
}

// PaymentView is the full point-in-time read returned to the owning merchant.
type PaymentView struct {
	Payment
	History []StatusChange `json:"history"`
}

// currencyExponents lists ISO 4217 codes whose minor unit is not 1/100.
var currencyExponents = map[string]int32{
	"BHD": 3,
	"IQD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
	"CLP": 0,
	"ISK": 0,
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
}

// MajorUnits converts an amount in minor units to its major-unit value.
func MajorUnits(amount int64, currency string) decimal.Decimal {
	exp, ok := currencyExponents[currency]
	if !ok {
		exp = 2
	}
	return decimal.New(amount, -exp)
}
