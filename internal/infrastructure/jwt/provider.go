package jwtinfra

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/C13M3n7/my-event-app/internal/config"
	"github.com/C13M3n7/my-event-app/internal/domain"
	"github.com/C13M3n7/my-event-app/internal/pkg/id"
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of a session bearer token.
type SessionClaims struct {
	UserID    string      `json:"user_id"`
	Role      domain.Role `json:"role"`
	SessionID string      `json:"session_id"`
	jwt.RegisteredClaims
}

// AssertionClaims is the payload of a minted sign-in assertion (the custom
// token). It is short-lived and single-use: the jti is recorded on
// redemption. The client never persists it.
type AssertionClaims struct {
	UserID        string `json:"uid"`
	IsAdmin       bool   `json:"isAdmin"`
	EmailVerified bool   `json:"emailVerified"`
	jwt.RegisteredClaims
}

const assertionAudience = "my-event-app/redeem"

// Provider signs and verifies RS256 JWTs: long-lived session bearers and
// short-lived sign-in assertions.
type Provider struct {
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	expiry          time.Duration
	assertionExpiry time.Duration
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	privBytes, err := os.ReadFile(cfg.JWTPrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubBytes, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return &Provider{
		privateKey:      privKey,
		publicKey:       pubKey,
		expiry:          cfg.JWTExpiry,
		assertionExpiry: cfg.AssertionExpiry,
	}, nil
}

// SignSession mints a session bearer token.
func (p *Provider) SignSession(userID string, role domain.Role, sessionID string) (string, error) {
	claims := SessionClaims{
		UserID:    userID,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(p.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(p.privateKey)
}

// VerifySession validates a session bearer token.
func (p *Provider) VerifySession(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, p.keyFunc)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// MintAssertion mints the short-lived custom token returned by a successful
// OTP verification, binding the user id to its claim set.
func (p *Provider) MintAssertion(userID string, isAdmin, emailVerified bool) (string, error) {
	claims := AssertionClaims{
		UserID:        userID,
		IsAdmin:       isAdmin,
		EmailVerified: emailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.New(),
			Audience:  jwt.ClaimStrings{assertionAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(p.assertionExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(p.privateKey)
	if err != nil {
		return "", fmt.Errorf("mint assertion: %w", err)
	}
	return signed, nil
}

// ParseAssertion validates a sign-in assertion, including its audience, and
// returns its claims. Expired or malformed assertions fail here; single-use
// is enforced by the redeemed-token store, not by the parser.
func (p *Provider) ParseAssertion(tokenStr string) (*AssertionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AssertionClaims{}, p.keyFunc,
		jwt.WithAudience(assertionAudience))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AssertionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid assertion claims")
	}
	return claims, nil
}

func (p *Provider) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return p.publicKey, nil
}
