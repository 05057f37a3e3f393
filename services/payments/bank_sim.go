package payments

import (
	"context"
	"sync"

	uuid "github.com/satori/go.uuid"
)

// Test numbers recognized by the simulated bank. Any other number that
// passes validation authorizes cleanly.
const (
	// SimCardOK authorizes without a challenge.
	SimCardOK = "4111111111111111"
	// SimCardChallenge demands a 3-D Secure challenge.
	SimCardChallenge = "4000000000003220"
	// SimCardDeclined is rejected outright.
	SimCardDeclined = "4000000000000002"
	// SimCardFraud is rejected and flagged.
	SimCardFraud = "4100000000000019"
	// SimCardInvalid is refused as an invalid card.
	SimCardInvalid = "4000000000000069"
	// SimCardUnavailable simulates a bank outage.
	SimCardUnavailable = "4000000000000119"
	// SimulatedOTP answers the simulated challenge successfully.
	SimulatedOTP = "123456"
)

var simulatedOutcomes = map[string]BankCode{
	SimCardOK:          BankOK,
	SimCardChallenge:   BankAuthRequired,
	SimCardDeclined:    BankRejected,
	SimCardFraud:       BankFraud,
	SimCardInvalid:     BankInvalidCard,
	SimCardUnavailable: BankUnavailable,
}

type bankSession struct {
	card       string
	amount     int64
	authorized bool
	captured   bool
	challenged bool
}

// SimulatedBank is an in process BankClient with deterministic outcomes
// keyed by well known test card numbers. It remembers issued references so
// capture, reversal and refund flows behave like a real processor.
type SimulatedBank struct {
	mu       sync.Mutex
	sessions map[string]*bankSession
}

// NewSimulatedBank builds an empty simulator.
func NewSimulatedBank() *SimulatedBank {
	return &SimulatedBank{sessions: map[string]*bankSession{}}
}

// RequestPayment implements BankClient
func (b *SimulatedBank) RequestPayment(ctx context.Context, card Card, amountMinor int64) (*BankResult, error) {
	pan := card.PAN()
	code, ok := simulatedOutcomes[pan]
	if !ok {
		code = BankOK
	}

	switch code {
	case BankOK:
		return &BankResult{Code: BankOK, BankRef: b.open(pan, amountMinor, true)}, nil
	case BankAuthRequired:
		return &BankResult{Code: BankAuthRequired, BankRef: b.open(pan, amountMinor, false)}, nil
	default:
		return &BankResult{Code: code}, nil
	}
}

// Authorize implements BankClient
func (b *SimulatedBank) Authorize(ctx context.Context, bankRef string, otp string) (*BankResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[bankRef]
	if !ok || !session.challenged {
		return &BankResult{Code: BankRejected, BankRef: bankRef}, nil
	}
	if otp != SimulatedOTP {
		return &BankResult{Code: BankRejected, BankRef: bankRef}, nil
	}
	session.authorized = true
	session.challenged = false
	return &BankResult{Code: BankOK, BankRef: bankRef}, nil
}

// Capture implements BankClient
func (b *SimulatedBank) Capture(ctx context.Context, bankRef string) (BankCode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[bankRef]
	if !ok || !session.authorized || session.captured {
		return BankRejected, nil
	}
	session.captured = true
	return BankOK, nil
}

// Reverse implements BankClient
func (b *SimulatedBank) Reverse(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[bankRef]
	if !ok || !session.authorized || session.captured {
		return BankRejected, nil
	}
	if amountMinor != nil && (*amountMinor <= 0 || *amountMinor > session.amount) {
		return BankRejected, nil
	}
	session.authorized = false
	return BankOK, nil
}

// Refund implements BankClient
func (b *SimulatedBank) Refund(ctx context.Context, bankRef string, amountMinor *int64) (BankCode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[bankRef]
	if !ok || !session.captured {
		return BankRejected, nil
	}
	if amountMinor != nil && (*amountMinor <= 0 || *amountMinor > session.amount) {
		return BankRejected, nil
	}
	return BankOK, nil
}

// StatusOf implements BankClient
func (b *SimulatedBank) StatusOf(ctx context.Context, bankRef string) (BankCode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[bankRef]
	if !ok {
		return BankRejected, nil
	}
	if session.challenged {
		return BankAuthRequired, nil
	}
	if session.authorized || session.captured {
		return BankOK, nil
	}
	return BankRejected, nil
}

func (b *SimulatedBank) open(pan string, amount int64, authorized bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref := uuid.NewV4().String()
	b.sessions[ref] = &bankSession{
		card:       pan,
		amount:     amount,
		authorized: authorized,
		challenged: !authorized,
	}
	return ref
}
