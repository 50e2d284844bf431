package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTTL = time.Hour

var (
	// ErrInvalid covers malformed tokens, bad signatures and missing claims.
	ErrInvalid = errors.New("invalid token")

	// ErrExpired is returned for a well-formed token past its expiry.
	ErrExpired = errors.New("token expired")
)

// Claims binds an account to an issuance event. The subject carries the
// account id so a token never outlives the account it was issued to, even if
// the username is later registered again.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims

	// UserID is decoded from the subject by Verify.
	UserID int64 `json:"-"`
}

// Codec issues and verifies HS256 access tokens with a process-wide secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewCodec returns a Codec. An empty secret is rejected.
func NewCodec(secret string, ttl time.Duration, issuer string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for the account and returns it with its expiry.
func (c *Codec) Issue(userID int64, username string) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, errors.New("user id is required")
	}
	if username == "" {
		return "", time.Time{}, errors.New("username is required")
	}

	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of tokenString and returns its
// claims. Failures wrap ErrExpired or ErrInvalid together with the jwt
// library's reason.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: %w", ErrExpired, err)
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalid
	}
	if strings.TrimSpace(claims.Username) == "" {
		return Claims{}, fmt.Errorf("%w: missing username", ErrInvalid)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Claims{}, fmt.Errorf("%w: subject is not an account id", ErrInvalid)
	}
	claims.UserID = id
	return claims, nil
}
