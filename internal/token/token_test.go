package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, now time.Time) *Codec {
	t.Helper()
	c, err := NewCodec("test-secret", time.Hour, "accounts")
	require.NoError(t, err)
	c.now = func() time.Time { return now }
	return c
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec("", time.Hour, "")
	assert.Error(t, err)

	_, err = NewCodec("   ", time.Hour, "")
	assert.Error(t, err)
}

func TestNewCodecDefaultTTL(t *testing.T) {
	c, err := NewCodec("s", 0, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, c.TTL())
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodec(t, now)

	signed, expiresAt, err := c.Issue(1, "alice")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)
	assert.Len(t, strings.Split(signed, "."), 3)

	claims, err := c.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, "1", claims.Subject)
	assert.Equal(t, "accounts", claims.Issuer)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
}

func TestIssueRequiresAccount(t *testing.T) {
	c := newTestCodec(t, time.Now())
	_, _, err := c.Issue(1, "")
	assert.Error(t, err)

	_, _, err = c.Issue(0, "alice")
	assert.Error(t, err)
}

func TestVerifyExpired(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodec(t, issuedAt)
	signed, _, err := c.Issue(1, "alice")
	require.NoError(t, err)

	c.now = func() time.Time { return issuedAt.Add(time.Hour + time.Second) }
	_, err = c.Verify(signed)
	assert.ErrorIs(t, err, ErrExpired)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestVerifyWrongSecret(t *testing.T) {
	now := time.Now()
	c := newTestCodec(t, now)
	signed, _, err := c.Issue(1, "alice")
	require.NoError(t, err)

	other, err := NewCodec("other-secret", time.Hour, "accounts")
	require.NoError(t, err)
	_, err = other.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyTampered(t *testing.T) {
	c := newTestCodec(t, time.Now())
	signed, _, err := c.Issue(1, "alice")
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	forged, _, err := c.Issue(2, "mallory")
	require.NoError(t, err)
	// Splice mallory's payload onto alice's signature.
	parts[1] = strings.Split(forged, ".")[1]

	_, err = c.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyGarbage(t *testing.T) {
	c := newTestCodec(t, time.Now())
	for _, input := range []string{"", "abc", "a.b.c"} {
		_, err := c.Verify(input)
		assert.ErrorIs(t, err, ErrInvalid, input)
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	c := newTestCodec(t, now)

	claims := Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "accounts",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = c.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRequiresExpiry(t *testing.T) {
	c := newTestCodec(t, time.Now())

	claims := Claims{
		Username:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "accounts"},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = c.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRequiresUsername(t *testing.T) {
	now := time.Now()
	c := newTestCodec(t, now)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    "accounts",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = c.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyWrongIssuer(t *testing.T) {
	now := time.Now()
	c := newTestCodec(t, now)

	other, err := NewCodec("test-secret", time.Hour, "someone-else")
	require.NoError(t, err)
	signed, _, err := other.Issue(1, "alice")
	require.NoError(t, err)

	_, err = c.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRequiresAccountSubject(t *testing.T) {
	now := time.Now()
	c := newTestCodec(t, now)

	for _, subject := range []string{"", "alice", "0", "-3"} {
		claims := Claims{
			Username: "alice",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   subject,
				Issuer:    "accounts",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = c.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalid, subject)
	}
}
