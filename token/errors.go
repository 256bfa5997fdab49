package token

import "errors"

// Errors returned by this package. They are chained with fmt.Errorf("%w"),
// so callers should match them with errors.Is. Messages never contain key or
// signature bytes.
var (
	// ErrInvalidPrivateKey wraps every key loading failure.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	ErrNotBase64             = errors.New("key data is not base64 encoded")
	ErrInvalidKeyStructure   = errors.New("invalid PKCS#8 structure")
	ErrInvalidASN1           = errors.New("invalid ASN.1 data")
	ErrKeyRejectedByProvider = errors.New("key rejected by crypto provider")

	ErrInvalidSignatureData = errors.New("invalid signature data")
	ErrSigningFailed        = errors.New("signing failed")
	ErrVerificationFailed   = errors.New("signature verification failed")
)
