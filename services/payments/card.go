package payments

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	cardNumberRE = regexp.MustCompile(`^[0-9]{12,19}$`)
	cardExpiryRE = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0-9]{2})$`)
	cardCVVRE    = regexp.MustCompile(`^[0-9]{3,4}$`)
)

// Card is the transient card data accepted from the hosted form. It is
// validated, fingerprinted and forwarded to the bank, never persisted.
type Card struct {
	Number string `json:"cardNumber"`
	Expiry string `json:"expiry"`
	CVV    string `json:"cvv"`
	Holder string `json:"holder"`
}

// Validate checks the card data against the acceptance rules. The given
// time anchors the expiry comparison.
func (c *Card) Validate(now time.Time) error {
	pan := c.PAN()
	if !cardNumberRE.MatchString(pan) {
		return NewError(ErrCodeInvalidCard, "card number must be 12 to 19 digits")
	}
	if !luhnValid(pan) {
		return NewError(ErrCodeInvalidCard, "card number failed the checksum")
	}

	m := cardExpiryRE.FindStringSubmatch(c.Expiry)
	if m == nil {
		return NewError(ErrCodeInvalidCard, "expiry must be MM/YY")
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	// A card stays valid through the last moment of its expiry month.
	expiryEnd := time.Date(2000+year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.Before(expiryEnd) {
		return NewError(ErrCodeInvalidCard, "card is expired")
	}

	if !cardCVVRE.MatchString(c.CVV) {
		return NewError(ErrCodeInvalidCard, "cvv must be 3 or 4 digits")
	}
	if strings.TrimSpace(c.Holder) == "" {
		return NewError(ErrCodeInvalidCard, "holder name is required")
	}
	return nil
}

// PAN returns the bare card number with formatting spaces removed.
func (c *Card) PAN() string {
	return strings.ReplaceAll(c.Number, " ", "")
}

// Mask hides all but the first six and last four digits of the number.
func (c *Card) Mask() string {
	pan := c.PAN()
	if len(pan) < 10 {
		return strings.Repeat("*", len(pan))
	}
	return pan[:6] + strings.Repeat("*", len(pan)-10) + pan[len(pan)-4:]
}

// Fingerprint is a stable digest of the number, retained in place of the PAN.
func (c *Card) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.PAN()))
	return hex.EncodeToString(sum[:])
}

// luhnValid runs the Luhn checksum over a digit string.
func luhnValid(number string) bool {
	var sum int
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
