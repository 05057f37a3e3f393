package payments

import (
	"context"

	"github.com/lib/pq"
)

// MockBankClient is a BankClient with pluggable behavior. Methods without a
// hook answer OK the way a healthy bank would.
type MockBankClient struct {
	FnRequestPayment func(ctx context.Context, card Card, amountMinor int64) (*BankResult, error)
	FnAuthorize      func(ctx context.Context, bankRef string, otp string) (*BankResult, error)
	FnCapture        func(ctx context.Context, bankRef string) (BankCode, error)
	FnReverse        func(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error)
	FnRefund         func(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error)
	FnStatusOf       func(ctx context.Context, bankRef string) (BankCode, error)
}

func (c *MockBankClient) RequestPayment(ctx context.Context, card Card, amountMinor int64) (*BankResult, error) {
	if c.FnRequestPayment == nil {
		return &BankResult{Code: BankOK, BankRef: "mock-bank-ref"}, nil
	}

	return c.FnRequestPayment(ctx, card, amountMinor)
}

func (c *MockBankClient) Authorize(ctx context.Context, bankRef string, otp string) (*BankResult, error) {
	if c.FnAuthorize == nil {
		return &BankResult{Code: BankOK, BankRef: bankRef}, nil
	}

	return c.FnAuthorize(ctx, bankRef, otp)
}

func (c *MockBankClient) Capture(ctx context.Context, bankRef string) (BankCode, error) {
	if c.FnCapture == nil {
		return BankOK, nil
	}

	return c.FnCapture(ctx, bankRef)
}

func (c *MockBankClient) Reverse(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	if c.FnReverse == nil {
		return BankOK, nil
	}

	return c.FnReverse(ctx, bankRef, amountMinor)
}

func (c *MockBankClient) Refund(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	if c.FnRefund == nil {
		return BankOK, nil
	}

	return c.FnRefund(ctx, bankRef, amountMinor)
}

func (c *MockBankClient) StatusOf(ctx context.Context, bankRef string) (BankCode, error) {
	if c.FnStatusOf == nil {
		return BankOK, nil
	}

	return c.FnStatusOf(ctx, bankRef)
}

// MockMerchantDirectory is a MerchantDirectory with pluggable behavior.
// Lookups without a hook mint an active merchant with the secret "secret".
type MockMerchantDirectory struct {
	FnLookup              func(ctx context.Context, merchantKey string) (*Merchant, error)
	FnIsActive            func(ctx context.Context, merchantKey string) (bool, error)
	FnValidateCredentials func(ctx context.Context, merchantKey string, secretCandidate string) (bool, error)
}

func (d *MockMerchantDirectory) Lookup(ctx context.Context, merchantKey string) (*Merchant, error) {
	if d.FnLookup == nil {
		return &Merchant{
			MerchantKey:         merchantKey,
			Secret:              "secret",
			Active:              true,
			SupportedCurrencies: pq.StringArray{"RUB", "USD", "EUR"},
		}, nil
	}

	return d.FnLookup(ctx, merchantKey)
}

func (d *MockMerchantDirectory) IsActive(ctx context.Context, merchantKey string) (bool, error) {
	if d.FnIsActive == nil {
		return true, nil
	}

	return d.FnIsActive(ctx, merchantKey)
}

func (d *MockMerchantDirectory) ValidateCredentials(ctx context.Context, merchantKey string, secretCandidate string) (bool, error) {
	if d.FnValidateCredentials == nil {
		return secretCandidate == "secret", nil
	}

	return d.FnValidateCredentials(ctx, merchantKey, secretCandidate)
}
