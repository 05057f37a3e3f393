package payments

import (
	"context"

	"github.com/brave-intl/acquiring-go/libs/clients"
)

type bankPaymentRequest struct {
	CardNumber string `json:"cardNumber"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	Holder     string `json:"holder"`
	Amount     int64  `json:"amount"`
}

type bankAuthorizeRequest struct {
	BankRef string `json:"bankRef"`
	OTP     string `json:"otp"`
}

type bankAmountRequest struct {
	BankRef string `json:"bankRef"`
	Amount  *int64 `json:"amount,omitempty"`
}

type bankResponse struct {
	Code    BankCode `json:"code"`
	BankRef string   `json:"bankRef"`
}

// HTTPBankClient talks to the issuing bank over its JSON API.
type HTTPBankClient struct {
	client *clients.SimpleHTTPClient
}

// NewHTTPBankClient builds a client for the bank server with an instrumented
// transport. The token authenticates the gateway to the bank.
func NewHTTPBankClient(serverURL string, authToken string) (*HTTPBankClient, error) {
	client, err := clients.NewWithInstrumentation("bank", serverURL, authToken)
	if err != nil {
		return nil, err
	}
	return &HTTPBankClient{client: client}, nil
}

// RequestPayment implements BankClient
func (c *HTTPBankClient) RequestPayment(ctx context.Context, card Card, amountMinor int64) (*BankResult, error) {
	req, err := c.client.NewRequest(ctx, "POST", "/v1/payments", &bankPaymentRequest{
		CardNumber: card.PAN(),
		Expiry:     card.Expiry,
		CVV:        card.CVV,
		Holder:     card.Holder,
		Amount:     amountMinor,
	}, nil)
	if err != nil {
		return nil, err
	}

	var body bankResponse
	if _, err := c.client.Do(ctx, req, &body); err != nil {
		return nil, err
	}
	return &BankResult{Code: body.Code, BankRef: body.BankRef}, nil
}

// Authorize implements BankClient
func (c *HTTPBankClient) Authorize(ctx context.Context, bankRef string, otp string) (*BankResult, error) {
	req, err := c.client.NewRequest(ctx, "POST", "/v1/payments/authorize", &bankAuthorizeRequest{
		BankRef: bankRef,
		OTP:     otp,
	}, nil)
	if err != nil {
		return nil, err
	}

	var body bankResponse
	if _, err := c.client.Do(ctx, req, &body); err != nil {
		return nil, err
	}
	return &BankResult{Code: body.Code, BankRef: body.BankRef}, nil
}

// Capture implements BankClient
func (c *HTTPBankClient) Capture(ctx context.Context, bankRef string) (BankCode, error) {
	return c.amountOp(ctx, "/v1/payments/capture", bankRef, nil)
}

// Reverse implements BankClient
func (c *HTTPBankClient) Reverse(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	return c.amountOp(ctx, "/v1/payments/reverse", bankRef, amountMinor)
}

// Refund implements BankClient
func (c *HTTPBankClient) Refund(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	return c.amountOp(ctx, "/v1/payments/refund", bankRef, amountMinor)
}

// StatusOf implements BankClient
func (c *HTTPBankClient) StatusOf(ctx context.Context, bankRef string) (BankCode, error) {
	req, err := c.client.NewRequest(ctx, "GET", "/v1/payments/"+bankRef, nil, nil)
	if err != nil {
		return BankUnavailable, err
	}

	var body bankResponse
	if _, err := c.client.Do(ctx, req, &body); err != nil {
		return BankUnavailable, err
	}
	return body.Code, nil
}

func (c *HTTPBankClient) amountOp(ctx context.Context, path string, bankRef string, amountMinor *int64) (BankCode, error) {
	req, err := c.client.NewRequest(ctx, "POST", path, &bankAmountRequest{
		BankRef: bankRef,
		Amount:  amountMinor,
	}, nil)
	if err != nil {
		return BankUnavailable, err
	}

	var body bankResponse
	if _, err := c.client.Do(ctx, req, &body); err != nil {
		return BankUnavailable, err
	}
	return body.Code, nil
}
