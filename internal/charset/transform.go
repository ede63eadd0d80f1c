package charset

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

var (
	errNonASCII  = errors.New("byte outside the 7-bit range")
	errIllFormed = errors.New("ill-formed code unit sequence")
	errNoBOM     = errors.New("missing UTF-16 byte order mark")
	errOddLength = errors.New("truncated UTF-16 code unit")
	errSurrogate = errors.New("unpaired UTF-16 surrogate")
)

// strict turns every non-flow-control error of the wrapped transformer into
// a *MalformedInputError.
type strict struct {
	name string
	t    transform.Transformer
}

func (s strict) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	nDst, nSrc, err = s.t.Transform(dst, src, atEOF)
	if err != nil && err != transform.ErrShortDst && err != transform.ErrShortSrc {
		err = &MalformedInputError{Encoding: s.name, Err: err}
	}
	return nDst, nSrc, err
}

func (s strict) Reset() { s.t.Reset() }

// asciiValidator copies 7-bit bytes and fails on anything else.
type asciiValidator struct{ transform.NopResetter }

func (asciiValidator) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
		err = transform.ErrShortDst
	}
	for i := 0; i < n; i++ {
		if src[i] >= utf8.RuneSelf {
			return i, i, errNonASCII
		}
		dst[i] = src[i]
	}
	return n, n, err
}

// utf16Guard checks raw UTF-16 bytes ahead of the decoder: the input must
// start with a byte order mark, hold whole code units, and pair every
// surrogate. Valid input passes through unchanged.
type utf16Guard struct {
	order       int // 0 until the BOM is seen, then bigEndian or littleEndian
	pendingHigh bool
}

const (
	bigEndian = iota + 1
	littleEndian
)

func (g *utf16Guard) Reset() { *g = utf16Guard{} }

func (g *utf16Guard) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if len(src)-nSrc < 2 {
			if atEOF {
				return nDst, nSrc, errOddLength
			}
			return nDst, nSrc, transform.ErrShortSrc
		}
		if nDst+2 > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}

		b0, b1 := src[nSrc], src[nSrc+1]
		switch {
		case g.order == 0:
			switch {
			case b0 == 0xFE && b1 == 0xFF:
				g.order = bigEndian
			case b0 == 0xFF && b1 == 0xFE:
				g.order = littleEndian
			default:
				return nDst, nSrc, errNoBOM
			}
		default:
			u := uint16(b0)<<8 | uint16(b1)
			if g.order == littleEndian {
				u = uint16(b1)<<8 | uint16(b0)
			}
			isHigh := u >= 0xD800 && u <= 0xDBFF
			isLow := u >= 0xDC00 && u <= 0xDFFF
			if g.pendingHigh != isLow {
				return nDst, nSrc, errSurrogate
			}
			g.pendingHigh = isHigh
		}

		dst[nDst], dst[nDst+1] = b0, b1
		nDst += 2
		nSrc += 2
	}
	if atEOF && g.pendingHigh {
		return nDst, nSrc, errSurrogate
	}
	return nDst, nSrc, nil
}

// replacementGuard follows a decoder that substitutes U+FFFD for bad input
// and turns that substitution into an error.
type replacementGuard struct{ transform.NopResetter }

func (replacementGuard) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if !atEOF && !utf8.FullRune(src[nSrc:]) {
			return nDst, nSrc, transform.ErrShortSrc
		}
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError {
			return nDst, nSrc, errIllFormed
		}
		if nDst+size > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		copy(dst[nDst:], src[nSrc:nSrc+size])
		nDst += size
		nSrc += size
	}
	return nDst, nSrc, nil
}
