package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim. Access tokens carry none.
const (
	TokenTypeRefresh = "refresh"
	TokenTypeReset   = "reset"
)

var (
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers bad signatures, malformed tokens and wrong token types.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the payload of access and refresh tokens.
type Claims struct {
	UID        string `json:"uid"`
	Role       string `json:"role"`
	BusinessID string `json:"businessId,omitempty"`
	Type       string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

type resetClaims struct {
	UID  string `json:"uid"`
	OTP  string `json:"otp"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Subject is the identity a token is minted for.
type Subject struct {
	UID        string
	Role       string
	BusinessID string
}

// TokenPair is the result of a login or role change.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	resetTTL      time.Duration
	now           func() time.Time
}

// NewTokenIssuer builds an issuer. An empty refreshSecret falls back to accessSecret.
func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if refreshSecret == "" {
		refreshSecret = accessSecret
	}
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		resetTTL:      10 * time.Minute,
		now:           time.Now,
	}
}

// RefreshTTL is the lifetime of refresh tokens, used for the cookie max-age.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// SignPair issues a fresh access and refresh token for s.
func (t *TokenIssuer) SignPair(s Subject) (TokenPair, error) {
	access, err := t.SignAccess(s)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(t.refreshSecret, t.claims(s, TokenTypeRefresh, t.refreshTTL))
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// SignAccess issues an access token only.
func (t *TokenIssuer) SignAccess(s Subject) (string, error) {
	return t.sign(t.accessSecret, t.claims(s, "", t.accessTTL))
}

// ParseAccess verifies an access token. Refresh and reset tokens are rejected.
func (t *TokenIssuer) ParseAccess(token string) (*Claims, error) {
	claims, err := t.parse(token, t.accessSecret)
	if err != nil {
		return nil, err
	}
	if claims.Type != "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token.
func (t *TokenIssuer) ParseRefresh(token string) (*Claims, error) {
	claims, err := t.parse(token, t.refreshSecret)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeRefresh {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// SignReset issues a short-lived token binding uid to a verified reset code.
func (t *TokenIssuer) SignReset(uid, otp string) (string, error) {
	now := t.now()
	return t.sign(t.accessSecret, &resetClaims{
		UID:  uid,
		OTP:  otp,
		Type: TokenTypeReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.resetTTL)),
		},
	})
}

// ParseReset returns the uid and code carried by a reset token.
func (t *TokenIssuer) ParseReset(token string) (uid, otp string, err error) {
	claims := &resetClaims{}
	if err := t.verify(token, t.accessSecret, claims); err != nil {
		return "", "", err
	}
	if claims.Type != TokenTypeReset || claims.UID == "" {
		return "", "", ErrTokenInvalid
	}
	return claims.UID, claims.OTP, nil
}

func (t *TokenIssuer) claims(s Subject, typ string, ttl time.Duration) *Claims {
	now := t.now()
	return &Claims{
		UID:        s.UID,
		Role:       s.Role,
		BusinessID: s.BusinessID,
		Type:       typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (t *TokenIssuer) sign(secret []byte, claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (t *TokenIssuer) parse(token string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	if err := t.verify(token, secret, claims); err != nil {
		return nil, err
	}
	if claims.UID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (t *TokenIssuer) verify(token string, secret []byte, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}
