package token

import (
	"fmt"

	"github.com/takimoto3/appstoreconnect-core/internal/der"
)

// SignatureSize is the length of a raw ES256 signature (RFC 7518 §3.4).
const SignatureSize = 2 * ScalarSize

// Signature is an ECDSA P-256 signature. R and S are always 32 bytes,
// whatever encoding they were read from.
type Signature struct {
	R [ScalarSize]byte
	S [ScalarSize]byte
}

// ParseJWSSignature reads the fixed-width R || S form used in JWS.
func ParseJWSSignature(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSignatureData, len(b), SignatureSize)
	}
	copy(sig.R[:], b[:ScalarSize])
	copy(sig.S[:], b[ScalarSize:])
	return sig, nil
}

// JWS returns R || S.
func (sig Signature) JWS() []byte {
	b := make([]byte, 0, SignatureSize)
	b = append(b, sig.R[:]...)
	return append(b, sig.S[:]...)
}

// ParseDERSignature reads SEQUENCE { INTEGER r, INTEGER s }. A 33-byte
// component must carry a zero sign byte, which is dropped; shorter
// components are left-padded.
func ParseDERSignature(b []byte) (Signature, error) {
	var sig Signature

	s := der.NewScanner(b)
	n, err := s.ScanSequenceHeader()
	if err != nil {
		return sig, fmt.Errorf("%w: %w", ErrInvalidASN1, err)
	}
	if n != s.Len() {
		return sig, fmt.Errorf("%w: trailing bytes after signature", ErrInvalidASN1)
	}
	r, err := s.ScanInteger()
	if err != nil {
		return sig, fmt.Errorf("%w: %w", ErrInvalidASN1, err)
	}
	sv, err := s.ScanInteger()
	if err != nil {
		return sig, fmt.Errorf("%w: %w", ErrInvalidASN1, err)
	}
	if !s.Empty() {
		return sig, fmt.Errorf("%w: signature sequence has more than two integers", ErrInvalidASN1)
	}

	var ok bool
	if sig.R, ok = padScalar(r); !ok {
		return Signature{}, fmt.Errorf("%w: r is %d bytes", ErrInvalidSignatureData, len(r))
	}
	if sig.S, ok = padScalar(sv); !ok {
		return Signature{}, fmt.Errorf("%w: s is %d bytes", ErrInvalidSignatureData, len(sv))
	}
	return sig, nil
}

// DER returns the canonical DER encoding of sig.
func (sig Signature) DER() []byte {
	r := appendInteger(nil, sig.R[:])
	body := appendInteger(r, sig.S[:])

	out := make([]byte, 0, 3+len(body))
	out = append(out, der.TagSequence)
	out = appendLength(out, len(body))
	return append(out, body...)
}

// appendInteger writes v as a minimal non-negative DER INTEGER.
func appendInteger(b, v []byte) []byte {
	for len(v) > 1 && v[0] == 0 && v[1]&0x80 == 0 {
		v = v[1:]
	}
	pad := v[0]&0x80 != 0
	n := len(v)
	if pad {
		n++
	}
	b = append(b, der.TagInteger)
	b = appendLength(b, n)
	if pad {
		b = append(b, 0)
	}
	return append(b, v...)
}

// appendLength only needs the short and one-byte long forms: two padded
// 32-byte integers take 70 bytes.
func appendLength(b []byte, n int) []byte {
	if n < 0x80 {
		return append(b, byte(n))
	}
	return append(b, 0x81, byte(n))
}
