package token

// Package token provides utilities for generating and signing JWTs for the App Store Connect API.

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Algorithm is the only JWS algorithm App Store Connect accepts.
	Algorithm = "ES256"
	// Type is the JOSE header typ value.
	Type = "JWT"
	// Audience is the fixed aud claim of App Store Connect tokens.
	Audience = "appstoreconnect-v1"
)

// Header defines the JWT header fields.
type Header struct {
	Alg string `json:"alg"` // Algorithm used for signing
	Kid string `json:"kid"` // API key ID
	Typ string `json:"typ"`
}

// Payload defines the JWT payload (claims).
type Payload struct {
	Issuer    string           `json:"iss"` // Issuer ID from App Store Connect
	ExpiresAt *jwt.NumericDate `json:"exp"` // Expiry, seconds since epoch
	Audience  string           `json:"aud"`
}

// JWTClaims represents a JWT containing a header and a payload.
type JWTClaims struct {
	Header  any
	Payload any
}

// NewJWT returns the claims of an App Store Connect token for the given key
// and issuer, expiring at exp.
func NewJWT(keyID, issuerID string, exp time.Time) *JWTClaims {
	return &JWTClaims{
		Header: Header{
			Alg: Algorithm,
			Kid: keyID,
			Typ: Type,
		},
		Payload: Payload{
			Issuer:    issuerID,
			ExpiresAt: jwt.NewNumericDate(exp),
			Audience:  Audience,
		},
	}
}

// SignedString creates a signed JWT string using the provided signer.
// Signer failures match ErrSigningFailed.
//
//	s: The Signer implementation used to sign the JWT.
func (claims *JWTClaims) SignedString(s Signer) (string, error) {
	header, err := json.Marshal(claims.Header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JWT header to JSON: %w", err)
	}
	payload, err := json.Marshal(claims.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JWT payload to JSON: %w", err)
	}
	// Create the base string: header.payload
	str := base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload)
	// Sign the base string
	sign, err := s.Sign([]byte(str))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	return str + "." + base64.RawURLEncoding.EncodeToString(sign), nil
}

// Verify checks the ES256 signature of a compact token against pub. Claims
// are not validated.
//
// A token whose signature segment cannot be decoded into 64 bytes yields
// ErrInvalidSignatureData; a well-formed signature that does not match
// yields ErrVerificationFailed.
func Verify(tokenString string, pub *ecdsa.PublicKey) error {
	if pub == nil {
		return errors.New("missing public key")
	}
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: token has %d segments, want 3", ErrInvalidSignatureData, len(parts))
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignatureData, err)
	}
	return verifyES256(pub, []byte(parts[0]+"."+parts[1]), sig)
}
