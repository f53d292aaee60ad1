package deliverycode

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedAuthority(now time.Time) *Authority {
	a := NewAuthority(DefaultTTL)
	a.now = func() time.Time { return now }
	return a
}

func TestGenerateProducesSixDigitCodeAndDigest(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := fixedAuthority(now)

	for i := 0; i < 200; i++ {
		code, err := a.Generate()
		require.NoError(t, err)

		n, err := strconv.Atoi(code.Plain)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100000)
		assert.LessOrEqual(t, n, 999999)

		assert.Len(t, code.Hash, 64)
		assert.NotContains(t, code.Hash, code.Plain)
		assert.Equal(t, Hash(code.Plain), code.Hash)
		assert.Equal(t, now.Add(24*time.Hour), code.ExpiresAt)
	}
}

func TestVerifyDistinguishesCauses(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := fixedAuthority(now)

	code, err := a.Generate()
	require.NoError(t, err)

	require.NoError(t, a.Verify(&code.Hash, &code.ExpiresAt, code.Plain))

	wrong := "000000"
	if code.Plain == wrong {
		wrong = "111111"
	}
	assert.True(t, errors.Is(a.Verify(&code.Hash, &code.ExpiresAt, wrong), ErrInvalid))

	assert.True(t, errors.Is(a.Verify(nil, nil, code.Plain), ErrNotSet))
	empty := ""
	assert.True(t, errors.Is(a.Verify(&empty, &code.ExpiresAt, code.Plain), ErrNotSet))

	later := fixedAuthority(now.Add(24*time.Hour + time.Second))
	assert.True(t, errors.Is(later.Verify(&code.Hash, &code.ExpiresAt, code.Plain), ErrExpired))

	atBoundary := fixedAuthority(now.Add(24 * time.Hour))
	assert.NoError(t, atBoundary.Verify(&code.Hash, &code.ExpiresAt, code.Plain))
}

func TestVerifyAfterClearReportsNotSet(t *testing.T) {
	a := fixedAuthority(time.Now())
	code, err := a.Generate()
	require.NoError(t, err)

	hash := &code.Hash
	require.NoError(t, a.Verify(hash, &code.ExpiresAt, code.Plain))

	// fulfillment clears the stored digest
	hash = nil
	assert.ErrorIs(t, a.Verify(hash, nil, code.Plain), ErrNotSet)
}
