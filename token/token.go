package token

// Package token provides utilities for generating JWTs for the App Store Connect API.

import (
	"crypto"
	"fmt"
	"io"
	"log/slog"
	"time"
)

var _ Provider = &TokenProvider{}

// MaxTokenTTL is the longest lifetime App Store Connect accepts for a token.
const MaxTokenTTL = 20 * time.Minute

// TokenTTL is the default lifetime of a generated token.
const TokenTTL = MaxTokenTTL

// Option represents a functional option for TokenProvider configuration.
type Option func(*TokenProvider)

// WithLogger sets a custom slog.Logger.
// If not set, logging is disabled (io.Discard).
func WithLogger(l *slog.Logger) Option {
	return func(tp *TokenProvider) {
		if l != nil {
			tp.logger = l
		}
	}
}

// WithTTL sets the token lifetime. Values above MaxTokenTTL are clamped and
// non-positive values keep the default.
func WithTTL(d time.Duration) Option {
	return func(tp *TokenProvider) {
		if d <= 0 {
			return
		}
		tp.tokenTTL = min(d, MaxTokenTTL)
	}
}

// Provider defines the interface for obtaining JWT-based authentication tokens.
type Provider interface {
	// GetToken returns a newly signed token.
	//
	// Parameters:
	//   now: The current time; the token expires at now plus the TTL.
	GetToken(now time.Time) (string, error)
}

// TokenProvider signs a fresh App Store Connect token on every call.
// Nothing is cached, so it is safe for concurrent use without locking.
type TokenProvider struct {
	logger   *slog.Logger  // logger for structured output, can be overridden.
	signer   Signer        // signer is used to sign JWT tokens.
	keyID    string        // keyID is the App Store Connect API key ID.
	issuerID string        // issuerID is the App Store Connect issuer ID.
	tokenTTL time.Duration // tokenTTL is the lifetime of each token.
}

// NewProvider creates a new TokenProvider.
// Logging is disabled by default unless WithLogger is specified.
//
// Parameters:
//
//	keyID: The API key ID.
//	issuerID: The issuer ID of the team.
//	key: The P-256 signing key, typically from LoadPKCS8File.
//	opts: Functional options to configure the TokenProvider.
func NewProvider(keyID, issuerID string, key crypto.Signer, opts ...Option) *TokenProvider {
	return NewProviderWithSigner(keyID, issuerID, &SignerECDSA{Key: key}, opts...)
}

// NewProviderWithSigner is NewProvider for a caller-supplied Signer.
func NewProviderWithSigner(keyID, issuerID string, s Signer, opts ...Option) *TokenProvider {
	tp := &TokenProvider{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		signer:   s,
		keyID:    keyID,
		issuerID: issuerID,
		tokenTTL: TokenTTL,
	}

	for _, opt := range opts {
		opt(tp)
	}

	return tp
}

// GetToken returns a newly signed JWT expiring at now plus the TTL.
//
// Parameters:
//
//	now: The current time.
func (p *TokenProvider) GetToken(now time.Time) (string, error) {
	expiresAt := now.Add(p.tokenTTL)

	token, err := NewJWT(p.keyID, p.issuerID, expiresAt).SignedString(p.signer)
	if err != nil {
		p.logger.Error("Token generation failed", "kid", p.keyID, "error", err)
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}

	p.logger.Debug("Token generated successfully", "kid", p.keyID, "expires_at", expiresAt)

	return token, nil
}
