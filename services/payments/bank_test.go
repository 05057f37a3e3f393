package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appctx "github.com/brave-intl/acquiring-go/libs/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBank replays one scripted outcome per call, regardless of the
// method invoked. Once the script runs out the last entry repeats.
type scriptedBank struct {
	mu      sync.Mutex
	results []*BankResult
	errs    []error
	calls   int
}

func (b *scriptedBank) next() (*BankResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.calls
	b.calls++
	if i >= len(b.errs) {
		i = len(b.errs) - 1
	}
	return b.results[i], b.errs[i]
}

func (b *scriptedBank) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *scriptedBank) RequestPayment(ctx context.Context, card Card, amountMinor int64) (*BankResult, error) {
	return b.next()
}

func (b *scriptedBank) Authorize(ctx context.Context, bankRef string, otp string) (*BankResult, error) {
	return b.next()
}

func (b *scriptedBank) Capture(ctx context.Context, bankRef string) (BankCode, error) {
	result, err := b.next()
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

func (b *scriptedBank) Reverse(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	result, err := b.next()
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

func (b *scriptedBank) Refund(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	result, err := b.next()
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

func (b *scriptedBank) StatusOf(ctx context.Context, bankRef string) (BankCode, error) {
	result, err := b.next()
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

func TestResilientClientRetriesTransportFailures(t *testing.T) {
	bank := &scriptedBank{
		results: []*BankResult{nil, nil, {Code: BankOK, BankRef: "bref-1"}},
		errs:    []error{errors.New("connection reset"), errors.New("connection reset"), nil},
	}
	client := NewResilientBankClient(bank, 0)

	result, err := client.RequestPayment(context.Background(), testCard(SimCardOK), 1000)
	require.NoError(t, err)
	assert.Equal(t, BankOK, result.Code)
	assert.Equal(t, "bref-1", result.BankRef)
	assert.Equal(t, 3, bank.callCount())
}

func TestResilientClientGivesUpAfterRetryBudget(t *testing.T) {
	bank := &scriptedBank{
		results: []*BankResult{nil},
		errs:    []error{errors.New("connection reset")},
	}
	client := NewResilientBankClient(bank, 0)

	_, err := client.RequestPayment(context.Background(), testCard(SimCardOK), 1000)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeBankUnavailable))
	assert.Equal(t, 1+bankRetryAttempts, bank.callCount())
}

func TestResilientClientRetriesUnavailableOutcome(t *testing.T) {
	bank := &scriptedBank{
		results: []*BankResult{{Code: BankUnavailable}, {Code: BankOK, BankRef: "bref-2"}},
		errs:    []error{nil, nil},
	}
	client := NewResilientBankClient(bank, 0)

	result, err := client.RequestPayment(context.Background(), testCard(SimCardOK), 1000)
	require.NoError(t, err)
	assert.Equal(t, BankOK, result.Code)
	assert.Equal(t, 2, bank.callCount())
}

func TestResilientClientDoesNotRetryCancelledCalls(t *testing.T) {
	bank := &scriptedBank{
		results: []*BankResult{nil},
		errs:    []error{context.Canceled},
	}
	client := NewResilientBankClient(bank, 0)

	_, err := client.RequestPayment(context.Background(), testCard(SimCardOK), 1000)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeBankUnavailable))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, bank.callCount())
}

func TestResilientClientWrapsCodeMethods(t *testing.T) {
	bank := &scriptedBank{
		results: []*BankResult{{Code: BankRejected}},
		errs:    []error{nil},
	}
	client := NewResilientBankClient(bank, 0)

	code, err := client.Capture(context.Background(), "bref-3")
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)

	down := &scriptedBank{
		results: []*BankResult{nil},
		errs:    []error{errors.New("connection reset")},
	}
	client = NewResilientBankClient(down, 0)

	code, err = client.Refund(context.Background(), "bref-3", nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeBankUnavailable))
	assert.Equal(t, BankUnavailable, code)
}

// blockingBank parks every call until release is closed so tests can hold a
// semaphore slot open.
type blockingBank struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBank) await(ctx context.Context) (*BankResult, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
		return &BankResult{Code: BankOK, BankRef: "bref-blocked"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingBank) RequestPayment(ctx context.Context, card Card, amountMinor int64) (*BankResult, error) {
	return b.await(ctx)
}

func (b *blockingBank) Authorize(ctx context.Context, bankRef string, otp string) (*BankResult, error) {
	return b.await(ctx)
}

func (b *blockingBank) Capture(ctx context.Context, bankRef string) (BankCode, error) {
	result, err := b.await(ctx)
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

func (b *blockingBank) Reverse(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	result, err := b.await(ctx)
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

func (b *blockingBank) Refund(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	result, err := b.await(ctx)
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

func (b *blockingBank) StatusOf(ctx context.Context, bankRef string) (BankCode, error) {
	result, err := b.await(ctx)
	if err != nil {
		return BankUnavailable, err
	}
	return result.Code, nil
}

func TestResilientClientCapsConcurrencyPerMerchant(t *testing.T) {
	bank := &blockingBank{
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	client := NewResilientBankClient(bank, 1)

	busyCtx := context.WithValue(context.Background(), appctx.MerchantKeyCTXKey, "m-busy")
	quietCtx := context.WithValue(context.Background(), appctx.MerchantKeyCTXKey, "m-quiet")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, err := client.RequestPayment(busyCtx, testCard(SimCardOK), 1000)
		assert.NoError(t, err)
		assert.Equal(t, BankOK, result.Code)
	}()
	<-bank.entered

	// the busy merchant holds its only slot, so a second call queues until
	// its context gives up
	waitCtx, cancel := context.WithTimeout(busyCtx, 150*time.Millisecond)
	defer cancel()
	_, err := client.RequestPayment(waitCtx, testCard(SimCardOK), 1000)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeBankUnavailable))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	select {
	case <-bank.entered:
		t.Fatal("queued call must not reach the bank")
	default:
	}

	// another merchant is not starved by the busy one
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, err := client.RequestPayment(quietCtx, testCard(SimCardOK), 1000)
		assert.NoError(t, err)
		assert.Equal(t, BankOK, result.Code)
	}()
	<-bank.entered

	close(bank.release)
	wg.Wait()
}

func TestSimulatedBankAuthorizeLifecycle(t *testing.T) {
	bank := NewSimulatedBank()
	ctx := context.Background()

	result, err := bank.RequestPayment(ctx, testCard(SimCardChallenge), 1000)
	require.NoError(t, err)
	require.Equal(t, BankAuthRequired, result.Code)
	require.NotEmpty(t, result.BankRef)
	ref := result.BankRef

	code, err := bank.StatusOf(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, BankAuthRequired, code)

	// a wrong otp keeps the challenge open
	answer, err := bank.Authorize(ctx, ref, "999999")
	require.NoError(t, err)
	assert.Equal(t, BankRejected, answer.Code)
	code, err = bank.StatusOf(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, BankAuthRequired, code)

	answer, err = bank.Authorize(ctx, ref, SimulatedOTP)
	require.NoError(t, err)
	assert.Equal(t, BankOK, answer.Code)
	code, err = bank.StatusOf(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, BankOK, code)

	// the challenge cannot be answered twice
	answer, err = bank.Authorize(ctx, ref, SimulatedOTP)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, answer.Code)
}

func TestSimulatedBankCapturesOnce(t *testing.T) {
	bank := NewSimulatedBank()
	ctx := context.Background()

	result, err := bank.RequestPayment(ctx, testCard(SimCardOK), 1000)
	require.NoError(t, err)
	require.Equal(t, BankOK, result.Code)
	ref := result.BankRef

	code, err := bank.Capture(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, BankOK, code)

	code, err = bank.Capture(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)

	// captured funds reverse through refunds, not reversals
	code, err = bank.Reverse(ctx, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)

	partial := int64(400)
	code, err = bank.Refund(ctx, ref, &partial)
	require.NoError(t, err)
	assert.Equal(t, BankOK, code)

	tooMuch := int64(1500)
	code, err = bank.Refund(ctx, ref, &tooMuch)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)

	zero := int64(0)
	code, err = bank.Refund(ctx, ref, &zero)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)
}

func TestSimulatedBankReverseBounds(t *testing.T) {
	bank := NewSimulatedBank()
	ctx := context.Background()

	result, err := bank.RequestPayment(ctx, testCard(SimCardOK), 1000)
	require.NoError(t, err)
	ref := result.BankRef

	tooMuch := int64(1500)
	code, err := bank.Reverse(ctx, ref, &tooMuch)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)

	// the failed reversal leaves the reservation in place
	code, err = bank.StatusOf(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, BankOK, code)

	partial := int64(400)
	code, err = bank.Reverse(ctx, ref, &partial)
	require.NoError(t, err)
	assert.Equal(t, BankOK, code)

	code, err = bank.StatusOf(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)

	// nothing is left to refund either
	code, err = bank.Refund(ctx, ref, nil)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)
}

func TestSimulatedBankOutcomeTable(t *testing.T) {
	bank := NewSimulatedBank()
	ctx := context.Background()

	cases := []struct {
		name string
		pan  string
		code BankCode
	}{
		{"declined", SimCardDeclined, BankRejected},
		{"fraud", SimCardFraud, BankFraud},
		{"invalid", SimCardInvalid, BankInvalidCard},
		{"outage", SimCardUnavailable, BankUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := bank.RequestPayment(ctx, testCard(tc.pan), 1000)
			require.NoError(t, err)
			assert.Equal(t, tc.code, result.Code)
			assert.Empty(t, result.BankRef)
		})
	}

	// unrecognized numbers authorize cleanly
	result, err := bank.RequestPayment(ctx, testCard("5555555555554444"), 1000)
	require.NoError(t, err)
	assert.Equal(t, BankOK, result.Code)
	assert.NotEmpty(t, result.BankRef)
}

func TestSimulatedBankUnknownReference(t *testing.T) {
	bank := NewSimulatedBank()
	ctx := context.Background()

	answer, err := bank.Authorize(ctx, "missing", SimulatedOTP)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, answer.Code)

	code, err := bank.Capture(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)

	code, err = bank.Reverse(ctx, "missing", nil)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)

	code, err = bank.Refund(ctx, "missing", nil)
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)

	code, err = bank.StatusOf(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, BankRejected, code)
}
