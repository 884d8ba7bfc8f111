package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSequenceBreaker(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newSequenceBreaker(2, time.Second, 10*time.Second)
	b.now = func() time.Time { return now }

	b.failure("orders_id_seq")
	ok, _ := b.allow("orders_id_seq")
	assert.True(t, ok)

	// the first failure falls out of the window
	now = now.Add(2 * time.Second)
	b.failure("orders_id_seq")
	ok, _ = b.allow("orders_id_seq")
	assert.True(t, ok)

	b.failure("orders_id_seq")
	ok, wait := b.allow("orders_id_seq")
	assert.False(t, ok)
	assert.Equal(t, 10*time.Second, wait)

	// other sequences are unaffected
	ok, _ = b.allow("invoices_id_seq")
	assert.True(t, ok)

	now = now.Add(11 * time.Second)
	ok, _ = b.allow("orders_id_seq")
	assert.True(t, ok)

	b.failure("orders_id_seq")
	b.success("orders_id_seq")
	b.failure("orders_id_seq")
	ok, _ = b.allow("orders_id_seq")
	assert.True(t, ok)
}

func TestSequenceBreaker_NilAllowsEverything(t *testing.T) {
	var b *sequenceBreaker
	b.failure("s")
	b.success("s")
	ok, wait := b.allow("s")
	assert.True(t, ok)
	assert.Zero(t, wait)
}
