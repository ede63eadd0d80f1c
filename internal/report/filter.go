package report

import (
	"maps"
	"regexp"
	"slices"
	"strings"
)

var keepSep = regexp.MustCompile(`\s*,\s*`)

// Filter restricts which devices a renderer emits. The zero value emits
// every device.
type Filter struct {
	keep map[string]bool
}

// ParseKeep builds a Filter from --keep values. Each value may hold several
// comma separated device identifiers.
func ParseKeep(values ...string) Filter {
	f := Filter{keep: make(map[string]bool)}
	for _, v := range values {
		for _, id := range keepSep.Split(v, -1) {
			if id = strings.TrimSpace(id); id != "" {
				f.keep[id] = true
			}
		}
	}
	return f
}

// Allows reports whether the device should be emitted.
func (f Filter) Allows(deviceID string) bool {
	return f.Empty() || f.keep[deviceID]
}

// Empty reports whether the filter lets everything through.
func (f Filter) Empty() bool { return len(f.keep) == 0 }

// Devices returns the kept identifiers in sorted order.
func (f Filter) Devices() []string {
	return slices.Sorted(maps.Keys(f.keep))
}
