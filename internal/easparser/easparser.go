// Package easparser reads Exchange ActiveSync server logs and groups their
// request entries by device.
//
// An entry starts at a "Log Entry: N" marker line and runs until the next
// marker or end of file. Only entries carrying both a RequestTime and a
// DeviceId are kept.
package easparser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cdtdelta/easlog/internal/charset"
	"github.com/cdtdelta/easlog/internal/model"
	"github.com/cdtdelta/easlog/internal/source"
)

// ReadResult contains the outcome of reading one log file.
type ReadResult struct {
	Devices  *model.Index
	Count    int // entries registered, before timestamp collisions
	Excluded int // entries dropped for a missing field
	Lines    int
	Encoding string
	Attempts int
}

// Options controls ReadDevices. The zero value is usable.
type Options struct {
	// Charsets are tried in order. Empty means charset.Default().
	Charsets []charset.Candidate
	// Open opens the file for each charset attempt. Nil means source.Open.
	Open charset.Opener
	// OnProgress, if set, is called every 10000 lines with the running line count.
	OnProgress func(lines int)
}

// ReadDevices reads the log at path and returns its entries grouped by
// device. The file is read again from the start under each candidate
// charset until one decodes it completely; nothing from a failed attempt
// survives into the result.
func ReadDevices(path string, opts Options) (*ReadResult, error) {
	cands := opts.Charsets
	if len(cands) == 0 {
		cands = charset.Default()
	}
	open := opts.Open
	if open == nil {
		open = source.Open
	}

	var result *ReadResult
	dec, err := charset.Decode(path, cands, open, func(c charset.Candidate, r io.Reader) error {
		res, err := readEntries(path, r, opts.OnProgress)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Encoding = dec.Encoding.Name
	result.Attempts = dec.Attempts
	return result, nil
}

func readEntries(name string, r io.Reader, onProgress func(int)) (*ReadResult, error) {
	lines := newLineReader(r)

	result := &ReadResult{}
	seg := &segmenter{source: name}

	for {
		line, ok := lines.next()
		if !ok {
			break
		}
		result.Lines++
		seg.feed(line)

		if onProgress != nil && result.Lines%10000 == 0 {
			onProgress(result.Lines)
		}
	}
	if err := lines.Err(); err != nil {
		return nil, fmt.Errorf("reading %s line %d: %w", name, result.Lines+1, err)
	}
	seg.close()

	result.Devices = model.NewIndex()
	for _, p := range seg.registered {
		result.Devices.Put(p.entry())
	}
	result.Count = len(seg.registered)
	result.Excluded = seg.excluded
	return result, nil
}

// pending is an entry still being accumulated.
type pending struct {
	source string
	number int64
	buf    strings.Builder
	lines  int

	when       time.Time
	hasTime    bool
	device     string
	resolved   bool
	registered bool
}

func (p *pending) add(line string) {
	if p.lines > 0 {
		p.buf.WriteByte('\n')
	}
	p.buf.WriteString(line)
	p.lines++

	if p.resolved {
		return
	}
	text := p.buf.String()
	if !p.hasTime {
		p.when, p.hasTime = extractTime(text)
	}
	if p.device == "" {
		p.device, _ = extractDeviceID(text)
	}
	p.resolved = p.hasTime && p.device != ""
}

func (p *pending) entry() model.Entry {
	return model.Entry{
		DeviceID: p.device,
		Time:     p.when,
		Source:   p.source,
		Number:   p.number,
		Text:     strings.TrimSpace(p.buf.String()),
	}
}

// segmenter splits a line stream into entries. It has two states: no entry
// open (cur == nil) and an entry open.
type segmenter struct {
	source     string
	cur        *pending
	registered []*pending
	excluded   int
}

func (s *segmenter) feed(line string) {
	if n, ok := matchMarker(line); ok {
		s.finish()
		s.cur = &pending{source: s.source, number: n}
		s.cur.add(line)
		s.register()
		return
	}
	if s.cur == nil {
		return
	}
	s.cur.add(line)
	s.register()
}

// register records the open entry the moment both fields resolve. Lines
// added afterwards still land in the same entry.
func (s *segmenter) register() {
	p := s.cur
	if !p.resolved || p.registered {
		return
	}
	p.registered = true
	s.registered = append(s.registered, p)
}

func (s *segmenter) finish() {
	if s.cur != nil && !s.cur.resolved {
		s.excluded++
	}
	s.cur = nil
}

func (s *segmenter) close() { s.finish() }

// lineReader splits text into lines ended by "\n", "\r\n" or a lone "\r".
// Lines may be of any length.
type lineReader struct {
	r       *bufio.Reader
	pending []string
	err     error
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

func (lr *lineReader) next() (string, bool) {
	for len(lr.pending) == 0 {
		if lr.err != nil {
			return "", false
		}
		chunk, err := lr.r.ReadString('\n')
		lr.err = err
		if chunk == "" {
			continue
		}
		// "\r\n" always lands in one chunk, so the "\r" here is part of the terminator.
		chunk = strings.TrimSuffix(strings.TrimSuffix(chunk, "\n"), "\r")
		lr.pending = strings.Split(chunk, "\r")
	}
	line := lr.pending[0]
	lr.pending = lr.pending[1:]
	return line, true
}

// Err returns the first read error other than io.EOF.
func (lr *lineReader) Err() error {
	if errors.Is(lr.err, io.EOF) {
		return nil
	}
	return lr.err
}
