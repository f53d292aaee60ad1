// Package deliverycode mints and checks the one-time code that gates the
// hand-off of an order. Only the SHA-256 digest of a code is ever stored.
package deliverycode

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
)

const (
	DefaultTTL = 24 * time.Hour

	minCode   = 100000
	codeRange = 900000
)

const (
	RuleNotSet  = "delivery_code_not_set"
	RuleExpired = "delivery_code_expired"
	RuleInvalid = "delivery_code_invalid"
)

var (
	ErrNotSet  = pkgerrors.Rule(pkgerrors.CodeValidation, RuleNotSet, "Delivery code is not set for this order")
	ErrExpired = pkgerrors.Rule(pkgerrors.CodeValidation, RuleExpired, "Delivery code has expired")
	ErrInvalid = pkgerrors.Rule(pkgerrors.CodeValidation, RuleInvalid, "Invalid delivery code")
)

// Code is a freshly minted delivery code. Plain is returned to the caller once.
type Code struct {
	Plain     string
	Hash      string
	ExpiresAt time.Time
}

// Authority mints and verifies codes.
type Authority struct {
	ttl    time.Duration
	random io.Reader
	now    func() time.Time
}

func NewAuthority(ttl time.Duration) *Authority {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authority{ttl: ttl, random: rand.Reader, now: time.Now}
}

// Now is the authority's clock in UTC.
func (a *Authority) Now() time.Time {
	return a.now().UTC()
}

// Generate draws a uniform code in 100000-999999.
func (a *Authority) Generate() (Code, error) {
	n, err := rand.Int(a.random, big.NewInt(codeRange))
	if err != nil {
		return Code{}, fmt.Errorf("generate delivery code: %w", err)
	}
	plain := fmt.Sprintf("%06d", n.Int64()+minCode)
	return Code{
		Plain:     plain,
		Hash:      Hash(plain),
		ExpiresAt: a.now().UTC().Add(a.ttl),
	}, nil
}

// Verify checks supplied against the stored digest. A cleared digest means the
// code was never minted or was already used.
func (a *Authority) Verify(hash *string, expiresAt *time.Time, supplied string) error {
	if hash == nil || *hash == "" {
		return ErrNotSet
	}
	if expiresAt != nil && a.now().After(*expiresAt) {
		return ErrExpired
	}
	got := Hash(strings.TrimSpace(supplied))
	if subtle.ConstantTimeCompare([]byte(got), []byte(*hash)) != 1 {
		return ErrInvalid
	}
	return nil
}

// Hash returns the hex SHA-256 digest of code.
func Hash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
