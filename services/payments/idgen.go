package payments

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

// IdGen mints payment identifiers.
type IdGen interface {
	NewPaymentID(now time.Time) string
}

const (
	paymentIDLen      = 20
	paymentIDStampLen = 9
	paymentIDAlphabet = "0123456789abcdefghijklmnopqrstuv"
)

// PaymentIDGen mints 20 character ids that sort by creation time: a nine
// character base32 millisecond timestamp followed by eleven characters of
// randomness from the same alphabet.
type PaymentIDGen struct{}

// NewPaymentID returns a fresh id for a payment created at the given time.
func (PaymentIDGen) NewPaymentID(now time.Time) string {
	stamp := strconv.FormatInt(now.UnixMilli(), 32)
	if len(stamp) < paymentIDStampLen {
		stamp = strings.Repeat("0", paymentIDStampLen-len(stamp)) + stamp
	}

	suffix := make([]byte, paymentIDLen-paymentIDStampLen)
	if _, err := rand.Read(suffix); err != nil {
		panic(err)
	}
	for i, b := range suffix {
		suffix[i] = paymentIDAlphabet[int(b)&31]
	}
	return stamp + string(suffix)
}
