package source

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const sample = "   Log Entry: 1\nRequestTime : 01/15/2024 13:45:02\n"

func writeCompressed(t *testing.T, name string, wrap func(io.Writer) io.WriteCloser) string {
	t.Helper()
	var buf bytes.Buffer
	w := wrap(&buf)
	if _, err := io.WriteString(w, sample); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readBack(t *testing.T, path string) string {
	t.Helper()
	rc, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", path, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(b)
}

func TestDetect(t *testing.T) {
	tests := map[string]Compression{
		"a.log":     None,
		"a.log.gz":  Gzip,
		"a.LOG.GZ":  Gzip,
		"a.log.zst": Zstd,
		"a.log.lz4": LZ4,
		"noext":     None,
	}
	for name, want := range tests {
		if got := Detect(name); got != want {
			t.Errorf("Detect(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestOpenPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.log")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}
	if got := readBack(t, path); got != sample {
		t.Errorf("expected %q, got %q", sample, got)
	}
}

func TestOpenGzip(t *testing.T) {
	path := writeCompressed(t, "x.log.gz", func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) })
	if got := readBack(t, path); got != sample {
		t.Errorf("expected %q, got %q", sample, got)
	}
}

func TestOpenZstd(t *testing.T) {
	path := writeCompressed(t, "x.log.zst", func(w io.Writer) io.WriteCloser {
		enc, err := zstd.NewWriter(w)
		if err != nil {
			t.Fatal(err)
		}
		return enc
	})
	if got := readBack(t, path); got != sample {
		t.Errorf("expected %q, got %q", sample, got)
	}
}

func TestOpenLZ4(t *testing.T) {
	path := writeCompressed(t, "x.log.lz4", func(w io.Writer) io.WriteCloser { return lz4.NewWriter(w) })
	if got := readBack(t, path); got != sample {
		t.Errorf("expected %q, got %q", sample, got)
	}
}

func TestOpenBadGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gz")
	if err := os.WriteFile(path, []byte("not gzip"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("expected error for corrupt gzip header")
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open("/nonexistent/file.log"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"", "none", "GZIP", " zstd ", "lz4"} {
		if _, err := ParseCompression(name); err != nil {
			t.Errorf("ParseCompression(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseCompression("xz"); err == nil {
		t.Error("expected error for xz")
	}
	if Detect("report"+Zstd.Extension()) != Zstd {
		t.Error("expected Extension and Detect to agree")
	}
}
