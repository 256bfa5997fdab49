package der

import (
	"fmt"
	"strings"
)

// MaxDepth is the deepest nesting ScanElement accepts. PKCS#8 EC keys nest
// four levels at most.
const MaxDepth = 8

// Kind identifies the shape of a decoded Element.
type Kind int

const (
	KindSequence Kind = iota + 1
	KindInteger
	KindBytes
	KindContext
)

func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "SEQUENCE"
	case KindInteger:
		return "INTEGER"
	case KindBytes:
		return "BYTES"
	case KindContext:
		return "CONTEXT"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Element is one generically decoded TLV.
type Element struct {
	Kind     Kind
	Tag      byte      // raw tag byte as read from the stream
	Context  int       // context tag number, KindContext only
	Int      uint64    // KindInteger only
	Bytes    []byte    // content of KindBytes, also of INTEGERs too wide for Int
	Children []Element // KindSequence; exactly one for KindContext
	Size     int       // tag + length + content bytes consumed
}

// ScanElement decodes the next TLV and, for SEQUENCE and context-specific
// constructed tags, everything nested inside it.
func (s *Scanner) ScanElement() (Element, error) {
	return s.scanElement(0)
}

func (s *Scanner) scanElement(depth int) (Element, error) {
	start := s.pos
	if depth >= MaxDepth {
		return Element{}, s.errorf(start, "nesting deeper than %d", MaxDepth)
	}
	tag, ok := s.PeekTag()
	if !ok {
		return Element{}, s.errorf(start, "missing tag")
	}
	content, err := s.ScanOctet()
	if err != nil {
		return Element{}, err
	}
	e := Element{Tag: tag, Size: s.pos - start}

	switch {
	case tag == TagSequence:
		e.Kind = KindSequence
		sub := s.sub(content)
		for !sub.Empty() {
			child, err := sub.scanElement(depth + 1)
			if err != nil {
				s.pos = start
				return Element{}, err
			}
			e.Children = append(e.Children, child)
		}
	case tag == TagInteger:
		if v, ok := Uint(content); ok {
			e.Kind = KindInteger
			e.Int = v
		} else {
			e.Kind = KindBytes
			e.Bytes = content
		}
	case tag&contextMask == contextConstructed:
		e.Kind = KindContext
		e.Context = int(tag & tagNumberMask)
		sub := s.sub(content)
		child, err := sub.scanElement(depth + 1)
		if err != nil {
			s.pos = start
			return Element{}, err
		}
		if !sub.Empty() {
			s.pos = start
			return Element{}, s.errorf(start, "trailing bytes in context tag [%d]", e.Context)
		}
		e.Children = []Element{child}
	default:
		e.Kind = KindBytes
		e.Bytes = content
	}
	return e, nil
}

// Describe renders the shape of e: tags, sizes and small integers. Byte
// content is never printed, so it is safe to use on key material.
func Describe(e Element) string {
	var b strings.Builder
	describe(&b, e, 0)
	return b.String()
}

func describe(b *strings.Builder, e Element, indent int) {
	b.WriteString(strings.Repeat("  ", indent))
	switch e.Kind {
	case KindSequence:
		fmt.Fprintf(b, "SEQUENCE (%d elements, %d bytes)\n", len(e.Children), e.Size)
	case KindInteger:
		fmt.Fprintf(b, "INTEGER %d\n", e.Int)
	case KindContext:
		fmt.Fprintf(b, "[%d] (%d bytes)\n", e.Context, e.Size)
	default:
		fmt.Fprintf(b, "0x%02x (%d content bytes)\n", e.Tag, len(e.Bytes))
	}
	for _, c := range e.Children {
		describe(b, c, indent+1)
	}
}
