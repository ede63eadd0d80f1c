package report

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/cdtdelta/easlog/internal/source"
)

// NewWriter wraps w so that everything written to the result is
// compressed with c. Closing the result flushes the compressor but leaves
// w open.
func NewWriter(w io.Writer, c source.Compression) (io.WriteCloser, error) {
	switch c {
	case "", source.None:
		return nopCloser{w}, nil
	case source.Gzip:
		return gzip.NewWriter(w), nil
	case source.Zstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return enc, nil
	case source.LZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", c)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Counter counts the bytes written through it.
type Counter struct {
	W io.Writer
	N int64
}

func (c *Counter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.N += int64(n)
	return n, err
}

// Size returns the byte count in human-readable form.
func (c *Counter) Size() string {
	return humanize.Bytes(uint64(c.N))
}
