package payments

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brave-intl/acquiring-go/libs/backoff"
	"github.com/brave-intl/acquiring-go/libs/backoff/retrypolicy"
	appctx "github.com/brave-intl/acquiring-go/libs/context"
)

// BankCode classifies an issuing bank response.
type BankCode string

const (
	// BankOK approves the operation.
	BankOK BankCode = "OK"
	// BankAuthRequired demands a 3-D Secure challenge before approval.
	BankAuthRequired BankCode = "AUTH_REQUIRED"
	// BankInvalidCard refuses the card itself.
	BankInvalidCard BankCode = "INVALID_CARD"
	// BankFraud refuses the payment and flags it.
	BankFraud BankCode = "FRAUD"
	// BankRejected refuses the payment.
	BankRejected BankCode = "REJECTED"
	// BankUnavailable signals the bank could not be reached.
	BankUnavailable BankCode = "UNAVAILABLE"
)

// BankResult is the outcome of a bank operation that issues a reference.
type BankResult struct {
	Code    BankCode
	BankRef string
}

// BankClient is the issuing bank boundary.
type BankClient interface {
	// RequestPayment asks the bank to authorize the amount on the card.
	RequestPayment(ctx context.Context, card Card, amountMinor int64) (*BankResult, error)
	// Authorize answers a 3-D Secure challenge with the cardholder otp.
	Authorize(ctx context.Context, bankRef string, otp string) (*BankResult, error)
	// Capture settles previously reserved funds.
	Capture(ctx context.Context, bankRef string) (BankCode, error)
	// Reverse releases a reservation, in part when an amount is given.
	Reverse(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error)
	// Refund returns captured funds, in part when an amount is given.
	Refund(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error)
	// StatusOf reports the bank side outcome for a reference, used to
	// reconcile payments stranded by abandoned calls.
	StatusOf(ctx context.Context, bankRef string) (BankCode, error)
}

const (
	// bankRetryBase is the first retry interval for transport failures.
	bankRetryBase = 100 * time.Millisecond
	// bankRetryAttempts caps retries after the initial call.
	bankRetryAttempts = 2
	// bankDeadlineMargin is shaved off the caller deadline so a response
	// can still be rendered after a slow bank call.
	bankDeadlineMargin = 50 * time.Millisecond
	// defaultBankConcurrency caps in flight bank calls per merchant.
	defaultBankConcurrency = 8
)

// errBankUnreachable marks outcomes worth retrying at the transport boundary.
var errBankUnreachable = errors.New("bank unreachable")

// merchantSemaphores caps in flight bank calls per merchant so one busy
// merchant cannot starve the rest.
type merchantSemaphores struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	size  int
}

func newMerchantSemaphores(size int) *merchantSemaphores {
	return &merchantSemaphores{
		slots: map[string]chan struct{}{},
		size:  size,
	}
}

func (s *merchantSemaphores) acquire(ctx context.Context, merchantKey string) (func(), error) {
	s.mu.Lock()
	slot, ok := s.slots[merchantKey]
	if !ok {
		slot = make(chan struct{}, s.size)
		s.slots[merchantKey] = slot
	}
	s.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ResilientBankClient decorates a BankClient with bounded transport retries,
// a per merchant concurrency cap and a deadline safety margin. Exhausted
// retries surface as BANK_UNAVAILABLE; the payment stays where it was and
// the reconciler settles it later.
type ResilientBankClient struct {
	base       BankClient
	semaphores *merchantSemaphores
}

// NewResilientBankClient wraps the base client. A non positive limit falls
// back to the default per merchant concurrency.
func NewResilientBankClient(base BankClient, perMerchantLimit int) *ResilientBankClient {
	if perMerchantLimit <= 0 {
		perMerchantLimit = defaultBankConcurrency
	}
	return &ResilientBankClient{
		base:       base,
		semaphores: newMerchantSemaphores(perMerchantLimit),
	}
}

// RequestPayment implements BankClient
func (c *ResilientBankClient) RequestPayment(ctx context.Context, card Card, amountMinor int64) (*BankResult, error) {
	return c.call(ctx, func(callCtx context.Context) (*BankResult, error) {
		return c.base.RequestPayment(callCtx, card, amountMinor)
	})
}

// Authorize implements BankClient
func (c *ResilientBankClient) Authorize(ctx context.Context, bankRef string, otp string) (*BankResult, error) {
	return c.call(ctx, func(callCtx context.Context) (*BankResult, error) {
		return c.base.Authorize(callCtx, bankRef, otp)
	})
}

// Capture implements BankClient
func (c *ResilientBankClient) Capture(ctx context.Context, bankRef string) (BankCode, error) {
	result, err := c.call(ctx, func(callCtx context.Context) (*BankResult, error) {
		code, err := c.base.Capture(callCtx, bankRef)
		if err != nil {
			return nil, err
		}
		return &BankResult{Code: code, BankRef: bankRef}, nil
	})
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

// Reverse implements BankClient
func (c *ResilientBankClient) Reverse(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	result, err := c.call(ctx, func(callCtx context.Context) (*BankResult, error) {
		code, err := c.base.Reverse(callCtx, bankRef, amountMinor)
		if err != nil {
			return nil, err
		}
		return &BankResult{Code: code, BankRef: bankRef}, nil
	})
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

// Refund implements BankClient
func (c *ResilientBankClient) Refund(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	result, err := c.call(ctx, func(callCtx context.Context) (*BankResult, error) {
		code, err := c.base.Refund(callCtx, bankRef, amountMinor)
		if err != nil {
			return nil, err
		}
		return &BankResult{Code: code, BankRef: bankRef}, nil
	})
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

// StatusOf implements BankClient
func (c *ResilientBankClient) StatusOf(ctx context.Context, bankRef string) (BankCode, error) {
	result, err := c.call(ctx, func(callCtx context.Context) (*BankResult, error) {
		code, err := c.base.StatusOf(callCtx, bankRef)
		if err != nil {
			return nil, err
		}
		return &BankResult{Code: code, BankRef: bankRef}, nil
	})
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

func (c *ResilientBankClient) call(ctx context.Context, op func(context.Context) (*BankResult, error)) (*BankResult, error) {
	merchantKey, _ := appctx.GetStringFromContext(ctx, appctx.MerchantKeyCTXKey)
	release, err := c.semaphores.acquire(ctx, merchantKey)
	if err != nil {
		return nil, WrapError(err, ErrCodeBankUnavailable, "issuing bank call aborted")
	}
	defer release()

	callCtx, cancel := withBankMargin(ctx)
	defer cancel()

	policy, err := retrypolicy.New(
		retrypolicy.WithInitialInterval(bankRetryBase),
		retrypolicy.WithMaximumAttempts(bankRetryAttempts),
	)
	if err != nil {
		return nil, WrapError(err, ErrCodeInternal, "failed to build bank retry policy")
	}

	response, err := backoff.Retry(ctx, func() (interface{}, error) {
		result, err := op(callCtx)
		if err != nil {
			return nil, err
		}
		if result.Code == BankUnavailable {
			return nil, errBankUnreachable
		}
		return result, nil
	}, policy, bankErrRetriable)
	if err != nil {
		return nil, WrapError(err, ErrCodeBankUnavailable, "issuing bank is unavailable")
	}
	return response.(*BankResult), nil
}

// bankErrRetriable refuses to retry once the caller is gone.
func bankErrRetriable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// withBankMargin trims the safety margin from an inherited deadline.
func withBankMargin(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(ctx, deadline.Add(-bankDeadlineMargin))
	}
	return context.WithCancel(ctx)
}
