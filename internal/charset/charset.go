// Package charset decodes log files whose text encoding is not known in
// advance. A file is read under an ordered list of candidate encodings; a
// candidate that hits an invalid byte sequence is abandoned and the whole
// file is read again under the next one.
package charset

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrExhausted is returned by Decode when every candidate encoding failed.
var ErrExhausted = errors.New("charset: every candidate encoding failed")

// MalformedInputError reports an invalid byte sequence for an encoding.
// It is the only error that makes Decode move on to the next candidate.
type MalformedInputError struct {
	Encoding string
	Err      error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed %s input: %v", e.Encoding, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is, or wraps, a MalformedInputError.
func IsMalformed(err error) bool {
	var mie *MalformedInputError
	return errors.As(err, &mie)
}

// Candidate is a named text encoding that decodes strictly.
type Candidate struct {
	Name       string
	newDecoder func() transform.Transformer
}

// NewReader returns a reader producing UTF-8 text decoded from r. Reads fail
// with a *MalformedInputError at the first byte sequence that is not valid
// in the candidate encoding.
func (c Candidate) NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, strict{name: c.Name, t: c.newDecoder()})
}

func (c Candidate) String() string { return c.Name }

var (
	// ASCII accepts only 7-bit bytes.
	ASCII = Candidate{Name: "US-ASCII", newDecoder: func() transform.Transformer { return asciiValidator{} }}

	// UTF8 accepts well-formed UTF-8.
	UTF8 = Candidate{Name: "UTF-8", newDecoder: func() transform.Transformer { return encoding.UTF8Validator }}

	// UTF16 requires a byte order mark and well-formed surrogate pairs.
	// A U+FFFD present in the input decodes normally.
	UTF16 = Candidate{Name: "UTF-16", newDecoder: func() transform.Transformer {
		return transform.Chain(&utf16Guard{}, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder())
	}}

	// Latin1 maps every byte to a character and never fails.
	Latin1 = Candidate{Name: "ISO-8859-1", newDecoder: func() transform.Transformer { return charmap.ISO8859_1.NewDecoder() }}
)

// Default returns the candidate list used when none is configured.
func Default() []Candidate {
	return []Candidate{ASCII, UTF8, UTF16, Latin1}
}

var aliases = map[string]Candidate{
	"ascii":      ASCII,
	"us-ascii":   ASCII,
	"utf8":       UTF8,
	"utf-8":      UTF8,
	"utf16":      UTF16,
	"utf-16":     UTF16,
	"latin1":     Latin1,
	"latin-1":    Latin1,
	"iso-8859-1": Latin1,
	"iso8859-1":  Latin1,
}

// Lookup resolves an encoding name. The four default encodings are matched
// by their common aliases; anything else goes through the IANA registry.
func Lookup(name string) (Candidate, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if c, ok := aliases[key]; ok {
		return c, nil
	}

	enc, err := ianaindex.IANA.Encoding(key)
	if err != nil {
		return Candidate{}, fmt.Errorf("unknown charset %q: %w", name, err)
	}
	if enc == nil {
		return Candidate{}, fmt.Errorf("unsupported charset %q", name)
	}
	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canonical = name
	}
	return Candidate{
		Name: canonical,
		newDecoder: func() transform.Transformer {
			return transform.Chain(enc.NewDecoder(), replacementGuard{})
		},
	}, nil
}

// LookupAll resolves a list of names, preserving order.
func LookupAll(names []string) ([]Candidate, error) {
	out := make([]Candidate, 0, len(names))
	for _, n := range names {
		c, err := Lookup(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Opener opens a file for one decoding attempt.
type Opener func(path string) (io.ReadCloser, error)

// Result describes a successful Decode.
type Result struct {
	Encoding Candidate
	Attempts int
}

// Decode runs attempt over the file at path once per candidate, in order,
// until one attempt succeeds. Every attempt gets a freshly opened file.
// An attempt error that is a MalformedInputError moves on to the next
// candidate; any other error is returned immediately. When the list is
// exhausted the returned error wraps ErrExhausted and the last decode error.
func Decode(path string, candidates []Candidate, open Opener, attempt func(c Candidate, r io.Reader) error) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("decoding %s: no candidate charsets", path)
	}

	var lastErr error
	for i, c := range candidates {
		rc, err := open(path)
		if err != nil {
			return Result{Attempts: i + 1}, fmt.Errorf("opening %s: %w", path, err)
		}

		err = attempt(c, c.NewReader(rc))
		rc.Close()

		if err == nil {
			return Result{Encoding: c, Attempts: i + 1}, nil
		}
		if !IsMalformed(err) {
			return Result{Attempts: i + 1}, err
		}
		lastErr = err
	}

	return Result{Attempts: len(candidates)}, fmt.Errorf("%w: %s: %w", ErrExhausted, path, lastErr)
}
