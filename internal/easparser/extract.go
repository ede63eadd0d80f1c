package easparser

import (
	"regexp"
	"strconv"
	"time"
)

// RE2 has no \h or \v, so the classes are spelled out.
const (
	hspace = `[ \t\x{A0}\x{1680}\x{180E}\x{2000}-\x{200A}\x{202F}\x{205F}\x{3000}]`
	vspace = `[\n\x0B\f\r\x{85}\x{2028}\x{2029}]`
)

var (
	markerRe = regexp.MustCompile(hspace + `*Log Entry: (\d+)` + hspace + `*`)

	requestTimeRe = regexp.MustCompile(`RequestTime` + hspace + `*:(?:` + hspace + `|` + vspace + `)*` +
		`(\d{2})/(\d{2})/(\d{4})` + hspace + `+(\d{1,2}):(\d{2}):(\d{2})`)

	// Entry text is joined with "\n", so the id ends at "&" or at the end of its line.
	deviceIDRe = regexp.MustCompile(`DeviceId=([^&\n]+)`)
)

// matchMarker reports whether line starts a new entry and returns its index.
func matchMarker(line string) (int64, bool) {
	m := markerRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// too many digits for int64; still a marker
		n = -1
	}
	return n, true
}

// extractTime returns the first well-formed RequestTime in text. Matches
// with out-of-range fields are skipped.
func extractTime(text string) (time.Time, bool) {
	for _, m := range requestTimeRe.FindAllStringSubmatch(text, -1) {
		if t, ok := buildTime(m[1:]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// buildTime validates month, day, year, hour, minute, second.
func buildTime(f []string) (time.Time, bool) {
	var v [6]int
	for i, s := range f {
		n, err := strconv.Atoi(s)
		if err != nil {
			return time.Time{}, false
		}
		v[i] = n
	}
	month, day, year, hour, minute, sec := v[0], v[1], v[2], v[3], v[4], v[5]
	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	// time.Date normalizes Feb 30 into March
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// extractDeviceID returns the first DeviceId token in text.
func extractDeviceID(text string) (string, bool) {
	m := deviceIDRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}
