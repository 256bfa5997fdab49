// Package der reads the small subset of ASN.1 DER needed to pick apart
// PKCS#8 EC private keys and ECDSA signatures.
package der

import (
	"errors"
	"fmt"
)

// ASN.1 universal tags used by the scanner.
const (
	TagInteger     byte = 0x02
	TagBitString   byte = 0x03
	TagOctetString byte = 0x04
	TagSequence    byte = 0x30

	contextConstructed byte = 0xa0
	contextMask        byte = 0xe0
	tagNumberMask      byte = 0x1f
)

// maxLengthBytes bounds the long-form length field. Nothing we parse comes
// close to 4 GiB, so anything longer is treated as garbage.
const maxLengthBytes = 4

// ErrMalformed is returned for every structural problem in the input.
var ErrMalformed = errors.New("der: malformed stream")

// Scanner is a read cursor over a DER buffer. Each Scan method consumes
// exactly one element; returned byte slices alias the input.
type Scanner struct {
	buf  []byte
	pos  int
	base int // offset of buf within the outermost input, for errors
}

// NewScanner returns a Scanner positioned at the start of b.
func NewScanner(b []byte) *Scanner {
	return &Scanner{buf: b}
}

// Len returns the number of unread bytes.
func (s *Scanner) Len() int { return len(s.buf) - s.pos }

// Empty reports whether the whole buffer has been consumed.
func (s *Scanner) Empty() bool { return s.Len() == 0 }

// Offset returns the current read position.
func (s *Scanner) Offset() int { return s.pos }

// PeekTag returns the next tag byte without consuming it.
func (s *Scanner) PeekTag() (byte, bool) {
	if s.Empty() {
		return 0, false
	}
	return s.buf[s.pos], true
}

// ScanSequenceHeader consumes a SEQUENCE tag and its length and returns the
// content length. The content itself is left for the following Scan calls.
func (s *Scanner) ScanSequenceHeader() (int, error) {
	return s.scanHeader(TagSequence)
}

// ScanInteger returns the raw content of an INTEGER. Sign and magnitude are
// left to the caller.
func (s *Scanner) ScanInteger() ([]byte, error) {
	return s.scanContent(TagInteger)
}

// ScanBitString returns the content of a BIT STRING, including the leading
// unused-bits byte.
func (s *Scanner) ScanBitString() ([]byte, error) {
	return s.scanContent(TagBitString)
}

// ScanOctet reads one TLV of any tag and returns its content. It is used
// where the position inside a fixed structure already says an OCTET STRING
// is due; it is not a general tag-checking reader.
func (s *Scanner) ScanOctet() ([]byte, error) {
	start := s.pos
	if _, ok := s.readByte(); !ok {
		return nil, s.errorf(start, "missing tag")
	}
	n, err := s.readLength()
	if err != nil {
		s.pos = start
		return nil, err
	}
	return s.take(n), nil
}

// ScanTagHeader consumes a context-specific constructed tag [n] and its
// length and returns the content length.
func (s *Scanner) ScanTagHeader(n int) (int, error) {
	start := s.pos
	tag, ok := s.readByte()
	if !ok {
		return 0, s.errorf(start, "missing context tag [%d]", n)
	}
	if tag&contextMask != contextConstructed || int(tag&tagNumberMask) != n {
		s.pos = start
		return 0, s.errorf(start, "unexpected tag 0x%02x, want context tag [%d]", tag, n)
	}
	l, err := s.readLength()
	if err != nil {
		s.pos = start
		return 0, err
	}
	return l, nil
}

// ScanTag consumes a context-specific constructed tag [n] together with its
// content and returns the content.
func (s *Scanner) ScanTag(n int) ([]byte, error) {
	l, err := s.ScanTagHeader(n)
	if err != nil {
		return nil, err
	}
	return s.take(l), nil
}

// Skip consumes one complete TLV without looking at its content.
func (s *Scanner) Skip() error {
	_, err := s.ScanOctet()
	return err
}

func (s *Scanner) scanHeader(want byte) (int, error) {
	start := s.pos
	tag, ok := s.readByte()
	if !ok {
		return 0, s.errorf(start, "missing tag 0x%02x", want)
	}
	if tag != want {
		s.pos = start
		return 0, s.errorf(start, "unexpected tag 0x%02x, want 0x%02x", tag, want)
	}
	n, err := s.readLength()
	if err != nil {
		s.pos = start
		return 0, err
	}
	return n, nil
}

func (s *Scanner) scanContent(want byte) ([]byte, error) {
	n, err := s.scanHeader(want)
	if err != nil {
		return nil, err
	}
	return s.take(n), nil
}

// readLength decodes a short- or long-form length and checks that the
// declared content fits in the remaining buffer.
func (s *Scanner) readLength() (int, error) {
	start := s.pos
	b, ok := s.readByte()
	if !ok {
		return 0, s.errorf(start, "missing length")
	}
	n := uint64(b)
	if b&0x80 != 0 {
		count := int(b & 0x7f)
		if count == 0 || count > maxLengthBytes {
			return 0, s.errorf(start, "unsupported length form 0x%02x", b)
		}
		if s.Len() < count {
			return 0, s.errorf(start, "truncated length")
		}
		n = 0
		for i := 0; i < count; i++ {
			n = n<<8 | uint64(s.buf[s.pos])
			s.pos++
		}
	}
	// Compared before converting, so the result fits in an int on 32-bit targets.
	if n > uint64(s.Len()) {
		return 0, s.errorf(start, "length %d exceeds remaining %d bytes", n, s.Len())
	}
	return int(n), nil
}

func (s *Scanner) readByte() (byte, bool) {
	if s.Empty() {
		return 0, false
	}
	b := s.buf[s.pos]
	s.pos++
	return b, true
}

// take assumes n has already been checked against Len.
func (s *Scanner) take(n int) []byte {
	b := s.buf[s.pos : s.pos+n : s.pos+n]
	s.pos += n
	return b
}

// sub returns a Scanner over content, which must be the slice just taken
// from s. Errors from it report offsets in the outermost input.
func (s *Scanner) sub(content []byte) *Scanner {
	return &Scanner{buf: content, base: s.base + s.pos - len(content)}
}

func (s *Scanner) errorf(offset int, format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", ErrMalformed, s.base+offset, fmt.Sprintf(format, args...))
}

// Uint decodes a big-endian INTEGER content of fewer than 8 bytes. The sign
// bit is ignored, so this is only suitable for small non-negative fields
// such as version numbers.
func Uint(b []byte) (uint64, bool) {
	if len(b) == 0 || len(b) >= 8 {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, true
}
