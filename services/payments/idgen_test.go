package payments

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentIDShape(t *testing.T) {
	gen := PaymentIDGen{}
	now := time.Now().UTC()

	for i := 0; i < 100; i++ {
		id := gen.NewPaymentID(now)
		require.Len(t, id, paymentIDLen)
		assert.Regexp(t, paymentIDRE, id)
	}
}

func TestPaymentIDSortsByCreationTime(t *testing.T) {
	gen := PaymentIDGen{}
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	earlier := gen.NewPaymentID(base)
	later := gen.NewPaymentID(base.Add(time.Millisecond))
	muchLater := gen.NewPaymentID(base.Add(time.Hour))

	assert.Less(t, earlier, later)
	assert.Less(t, later, muchLater)

	// ids minted in the same millisecond share the stamp prefix
	sibling := gen.NewPaymentID(base)
	assert.Equal(t, earlier[:paymentIDStampLen], sibling[:paymentIDStampLen])
}

func TestPaymentIDStampPadsSmallTimes(t *testing.T) {
	gen := PaymentIDGen{}

	id := gen.NewPaymentID(time.Unix(0, 0))
	require.Len(t, id, paymentIDLen)
	assert.True(t, strings.HasPrefix(id, "000000000"))
	assert.Regexp(t, paymentIDRE, id)

	assert.Less(t, id, gen.NewPaymentID(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)))
}

func TestPaymentIDUniqueness(t *testing.T) {
	gen := PaymentIDGen{}
	now := time.Now().UTC()

	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := gen.NewPaymentID(now)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
