package token

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/takimoto3/appstoreconnect-core/internal/der"
)

// ScalarSize is the byte length of a P-256 field element.
const ScalarSize = 32

const (
	pkcs8Version      = 0
	ecPrivKeyVersion  = 1
	uncompressedPoint = 0x04
	pemMarkerPrefix   = "-----"
)

// Scalars holds the raw components of a P-256 private key: the private
// scalar K and the public point (X, Y), all big-endian.
//
// Scalars is sensitive; its String, GoString and LogValue methods never
// reveal the content.
type Scalars struct {
	K [ScalarSize]byte
	X [ScalarSize]byte
	Y [ScalarSize]byte
}

// UncompressedKey returns 0x04 || X || Y || K, the X9.63 private key layout
// used by platform key stores.
func (s Scalars) UncompressedKey() []byte {
	b := make([]byte, 0, 1+3*ScalarSize)
	b = append(b, uncompressedPoint)
	b = append(b, s.X[:]...)
	b = append(b, s.Y[:]...)
	return append(b, s.K[:]...)
}

func (s Scalars) String() string   { return "token.Scalars{REDACTED}" }
func (s Scalars) GoString() string { return s.String() }

// LogValue implements slog.LogValuer.
func (s Scalars) LogValue() slog.Value { return slog.StringValue("REDACTED") }

// StripPEM removes the BEGIN/END marker lines, blank lines and surrounding
// whitespace from PEM text and returns the bare base64 body.
func StripPEM(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, pemMarkerPrefix) {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// ExtractScalars decodes a PKCS#8 wrapped P-256 private key given as PEM
// text, with or without marker lines.
//
// The AlgorithmIdentifier is skipped without checking the curve OID.
func ExtractScalars(pemText string) (Scalars, error) {
	data, err := base64.StdEncoding.DecodeString(StripPEM(pemText))
	if err != nil {
		return Scalars{}, fmt.Errorf("%w: %w", ErrNotBase64, err)
	}
	inner, err := unwrapPKCS8(data)
	if err != nil {
		return Scalars{}, fmt.Errorf("%w: %w", ErrInvalidKeyStructure, err)
	}
	sc, err := parseECPrivateKey(inner)
	if err != nil {
		return Scalars{}, fmt.Errorf("%w: %w", ErrInvalidASN1, err)
	}
	return sc, nil
}

// unwrapPKCS8 walks PrivateKeyInfo and returns the privateKey OCTET STRING
// content. Trailing attributes are ignored.
func unwrapPKCS8(data []byte) ([]byte, error) {
	s := der.NewScanner(data)
	if err := scanWholeSequence(s, "PrivateKeyInfo"); err != nil {
		return nil, err
	}
	if err := scanVersion(s, pkcs8Version); err != nil {
		return nil, err
	}
	if tag, _ := s.PeekTag(); tag != der.TagSequence {
		return nil, errors.New("missing algorithm identifier")
	}
	if err := s.Skip(); err != nil {
		return nil, err
	}
	return s.ScanOctet()
}

// parseECPrivateKey walks the RFC 5915 ECPrivateKey structure.
func parseECPrivateKey(data []byte) (Scalars, error) {
	var sc Scalars

	s := der.NewScanner(data)
	if err := scanWholeSequence(s, "ECPrivateKey"); err != nil {
		return sc, err
	}
	if err := scanVersion(s, ecPrivKeyVersion); err != nil {
		return sc, err
	}
	k, err := s.ScanOctet()
	if err != nil {
		return sc, err
	}

	// [0] parameters are optional and already implied by the algorithm.
	if tag, ok := s.PeekTag(); ok && tag == 0xa0 {
		if _, err := s.ScanTag(0); err != nil {
			return sc, err
		}
	}

	n, err := s.ScanTagHeader(1)
	if err != nil {
		return sc, err
	}
	start := s.Offset()
	bits, err := s.ScanBitString()
	if err != nil {
		return sc, err
	}
	if s.Offset()-start != n {
		return sc, errors.New("public key tag holds more than a BIT STRING")
	}
	if !s.Empty() {
		return sc, errors.New("trailing data after public key")
	}

	// unused-bits byte, point marker, X, Y
	if len(bits) != 2+2*ScalarSize {
		return sc, fmt.Errorf("public key is %d bytes, want %d", len(bits), 2+2*ScalarSize)
	}
	if bits[0] != 0 {
		return sc, fmt.Errorf("public key has %d unused bits", bits[0])
	}
	if bits[1] != uncompressedPoint {
		return sc, fmt.Errorf("public key point marker 0x%02x is not uncompressed", bits[1])
	}
	copy(sc.X[:], bits[2:2+ScalarSize])
	copy(sc.Y[:], bits[2+ScalarSize:])

	var ok bool
	if sc.K, ok = padScalar(k); !ok {
		return Scalars{}, fmt.Errorf("private scalar is %d bytes", len(k))
	}
	return sc, nil
}

// scanWholeSequence reads a SEQUENCE header whose content must run to the
// end of the buffer, so no field can be read from outside it.
func scanWholeSequence(s *der.Scanner, name string) error {
	n, err := s.ScanSequenceHeader()
	if err != nil {
		return err
	}
	if n != s.Len() {
		return fmt.Errorf("%s declares %d content bytes, %d present", name, n, s.Len())
	}
	return nil
}

func scanVersion(s *der.Scanner, want uint64) error {
	b, err := s.ScanInteger()
	if err != nil {
		return err
	}
	if v, ok := der.Uint(b); !ok || v != want {
		return fmt.Errorf("unsupported version, want %d", want)
	}
	return nil
}

// padScalar normalizes a big-endian integer to ScalarSize bytes. Shorter
// input is left-padded with zeros; a single leading zero sign byte is
// dropped.
func padScalar(b []byte) ([ScalarSize]byte, bool) {
	var out [ScalarSize]byte
	if len(b) == ScalarSize+1 && b[0] == 0 {
		b = b[1:]
	}
	if len(b) == 0 || len(b) > ScalarSize {
		return out, false
	}
	copy(out[ScalarSize-len(b):], b)
	return out, true
}

// NewPrivateKey builds an ECDSA key handle from sc. The scalar range, the
// point and their relation are checked by crypto/ecdh first.
func NewPrivateKey(sc Scalars) (*ecdsa.PrivateKey, error) {
	raw := sc.UncompressedKey()

	priv, err := ecdh.P256().NewPrivateKey(sc.K[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyRejectedByProvider, err)
	}
	pub, err := ecdh.P256().NewPublicKey(raw[:1+2*ScalarSize])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyRejectedByProvider, err)
	}
	if !priv.PublicKey().Equal(pub) {
		return nil, fmt.Errorf("%w: public key does not belong to the private scalar", ErrKeyRejectedByProvider)
	}

	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(sc.X[:]),
			Y:     new(big.Int).SetBytes(sc.Y[:]),
		},
		D: new(big.Int).SetBytes(sc.K[:]),
	}, nil
}

// ParsePrivateKey decodes PEM text into an ECDSA P-256 private key. Every
// error matches ErrInvalidPrivateKey and the specific failure kind.
func ParsePrivateKey(pemText string) (*ecdsa.PrivateKey, error) {
	sc, err := ExtractScalars(pemText)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	key, err := NewPrivateKey(sc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	return key, nil
}

// LoadPKCS8File loads an ECDSA private key from a PKCS#8 PEM file, such as
// the .p8 file downloaded from App Store Connect.
//
// Parameters:
//
//	path: The file path to the PKCS#8 PEM file.
func LoadPKCS8File(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}
	key, err := ParsePrivateKey(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key from file %q: %w", path, err)
	}
	return key, nil
}
