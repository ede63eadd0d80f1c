// Package report renders a merged device index.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/cdtdelta/easlog/internal/model"
)

// Renderer writes an index to an output stream.
type Renderer interface {
	Render(idx *model.Index, keep Filter) error
}

// Formats lists the names accepted by New.
var Formats = []string{"text", "json", "csv"}

// New returns the renderer for format writing to w.
func New(format string, w io.Writer) (Renderer, error) {
	switch format {
	case "", "text":
		return NewTextRenderer(w), nil
	case "json":
		return NewJSONRenderer(w), nil
	case "csv":
		return NewCSVRenderer(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// ---------------------------------------------------------------------------
// Text Renderer
// ---------------------------------------------------------------------------

const (
	bannerRule     = "***************"
	entrySeparator = "----------"
)

// TextRenderer prints the device listing followed by each kept device's
// entries. Styling is dropped when w is not a terminal.
type TextRenderer struct {
	w      io.Writer
	banner lipgloss.Style
	device lipgloss.Style
	rule   lipgloss.Style
}

// NewTextRenderer returns a TextRenderer writing to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	r := lipgloss.NewRenderer(w)
	return &TextRenderer{
		w:      w,
		banner: r.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		device: r.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		rule:   r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// Render lists every device in the index, then prints the entries of the
// devices the filter keeps.
func (r *TextRenderer) Render(idx *model.Index, keep Filter) error {
	p := &printer{w: r.w}

	p.line(r.banner.Render(bannerRule))
	p.line(r.banner.Render("**ALL DEVICES**"))
	p.line(r.banner.Render(bannerRule))
	for _, id := range idx.Devices() {
		p.line(id)
	}
	p.line("")

	for _, id := range idx.Devices() {
		if !keep.Allows(id) {
			continue
		}
		p.line("")
		p.line(r.banner.Render(bannerRule))
		p.line(r.banner.Render(bannerRule))
		p.line(r.banner.Render("*** DEVICE ****"))
		p.line(r.device.Render(id))
		p.line(r.banner.Render(bannerRule))
		p.line(r.banner.Render(bannerRule))
		p.line("")

		for _, e := range idx.History(id).Entries() {
			p.line(r.rule.Render(entrySeparator))
			p.line(e.Text)
			p.line(r.rule.Render(entrySeparator))
		}
	}
	return p.err
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(s string) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w, s)
}

// ---------------------------------------------------------------------------
// JSON Renderer
// ---------------------------------------------------------------------------

// JSONRenderer prints each kept entry as one JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a JSONRenderer writing to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(idx *model.Index, keep Filter) error {
	return idx.Walk(func(e model.Entry) error {
		if !keep.Allows(e.DeviceID) {
			return nil
		}
		return r.enc.Encode(e)
	})
}

// ---------------------------------------------------------------------------
// CSV Renderer
// ---------------------------------------------------------------------------

var exportHeader = []string{"device_id", "requested_at", "source", "entry_number", "body"}

// CSVRenderer writes a header row and one row per kept entry.
type CSVRenderer struct {
	w io.Writer
}

// NewCSVRenderer returns a CSVRenderer writing to w.
func NewCSVRenderer(w io.Writer) *CSVRenderer {
	return &CSVRenderer{w: w}
}

func (r *CSVRenderer) Render(idx *model.Index, keep Filter) error {
	writer := csv.NewWriter(r.w)

	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	err := idx.Walk(func(e model.Entry) error {
		if !keep.Allows(e.DeviceID) {
			return nil
		}
		row := []string{
			e.DeviceID,
			e.Time.UTC().Format(model.TimeLayout),
			e.Source,
			strconv.FormatInt(e.Number, 10),
			e.Text,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	writer.Flush()
	return writer.Error()
}
