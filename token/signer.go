package token

// Package token provides utilities for generating and signing JWTs for the App Store Connect API.

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

var _ Signer = &SignerECDSA{}

// Signer defines the interface for signing JWT signing input.
// Sign returns the signature in the encoding the token carries.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// SignerECDSA implements the Signer interface with ES256.
//
// Key is the signing capability. Any crypto.Signer backed by a P-256 key
// works: an *ecdsa.PrivateKey, or a handle into a KMS or hardware token.
// It must return an ASN.1 DER signature, as *ecdsa.PrivateKey does.
type SignerECDSA struct {
	Key  crypto.Signer
	Rand io.Reader // defaults to crypto/rand.Reader
}

// Sign hashes data with SHA-256, signs the digest and returns the 64-byte
// R || S signature.
func (se *SignerECDSA) Sign(data []byte) ([]byte, error) {
	if se.Key == nil {
		return nil, errors.New("missing private key")
	}
	if _, err := se.publicKey(); err != nil {
		return nil, err
	}

	digest := sha256.Sum256(data)
	r := se.Rand
	if r == nil {
		r = rand.Reader
	}
	derSig, err := se.Key.Sign(r, digest[:], crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign failed: %w", err)
	}

	sig, err := ParseDERSignature(derSig)
	if err != nil {
		return nil, fmt.Errorf("unexpected signature from key: %w", err)
	}
	return sig.JWS(), nil
}

// Verify checks a 64-byte R || S signature over data against the public
// half of Key.
func (se *SignerECDSA) Verify(data, signature []byte) error {
	if se.Key == nil {
		return errors.New("missing private key")
	}
	pub, err := se.publicKey()
	if err != nil {
		return err
	}
	return verifyES256(pub, data, signature)
}

func (se *SignerECDSA) publicKey() (*ecdsa.PublicKey, error) {
	pub, ok := se.Key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T, want ECDSA", se.Key.Public())
	}
	if pub.Curve != elliptic.P256() {
		name := "none"
		if pub.Curve != nil {
			name = pub.Curve.Params().Name
		}
		return nil, fmt.Errorf("unsupported curve: expected P-256, got %s", name)
	}
	return pub, nil
}

// verifyES256 hands the DER form of signature to the platform verifier.
func verifyES256(pub *ecdsa.PublicKey, data, signature []byte) error {
	sig, err := ParseJWSSignature(signature)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(data)
	if !ecdsa.VerifyASN1(pub, digest[:], sig.DER()) {
		return ErrVerificationFailed
	}
	return nil
}
