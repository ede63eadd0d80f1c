package model

import (
	"maps"
	"slices"
	"time"
)

// Columns is the ordered list of column names in the eas_entries table.
// Used for query building, field validation, and result scanning.
var Columns = []string{
	"device_id", "requested_at", "source", "entry_number", "body", "run_id",
}

// TimeLayout is the layout used when timestamps are stored or displayed as text.
const TimeLayout = "2006-01-02 15:04:05"

// Entry is a single ActiveSync request record: every line from one
// "Log Entry: N" marker up to the next marker or end of file.
type Entry struct {
	ID       int64     `json:"id,omitempty" db:"rowid"`
	DeviceID string    `json:"device_id" db:"device_id"`
	Time     time.Time `json:"time" db:"requested_at"`
	Source   string    `json:"source" db:"source"`
	Number   int64     `json:"number" db:"entry_number"`
	Text     string    `json:"text" db:"body"`
	RunID    string    `json:"run_id,omitempty" db:"run_id"`
}

// History holds one device's entries keyed by request time.
// Entries are enumerated in ascending time order.
type History struct {
	entries map[int64]Entry
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{entries: make(map[int64]Entry)}
}

// Put stores e under its timestamp, replacing any entry already recorded
// for the same instant.
func (h *History) Put(e Entry) {
	h.entries[e.Time.Unix()] = e
}

// Get returns the entry recorded at t.
func (h *History) Get(t time.Time) (Entry, bool) {
	e, ok := h.entries[t.Unix()]
	return e, ok
}

// Len returns the number of entries in the history.
func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns the entries ordered by time.
func (h *History) Entries() []Entry {
	keys := slices.Sorted(maps.Keys(h.entries))
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, h.entries[k])
	}
	return out
}

// Index maps device identifiers to their histories. The same type holds
// a single file's result and the merged result of a whole run.
type Index struct {
	devices map[string]*History
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{devices: make(map[string]*History)}
}

// Put records e under its device, creating the device's history on first use.
func (idx *Index) Put(e Entry) {
	h, ok := idx.devices[e.DeviceID]
	if !ok {
		h = NewHistory()
		idx.devices[e.DeviceID] = h
	}
	h.Put(e)
}

// History returns the history for a device, or nil if the device is unknown.
func (idx *Index) History(deviceID string) *History {
	return idx.devices[deviceID]
}

// Devices returns the device identifiers in ascending lexicographic order.
func (idx *Index) Devices() []string {
	return slices.Sorted(maps.Keys(idx.devices))
}

// Len returns the number of devices.
func (idx *Index) Len() int {
	return len(idx.devices)
}

// EntryCount returns the total number of entries across all devices.
func (idx *Index) EntryCount() int {
	n := 0
	for _, h := range idx.devices {
		n += h.Len()
	}
	return n
}

// Merge folds other into idx. A device not yet present takes over other's
// history as a whole; otherwise entries are copied one by one and an entry
// from other replaces one with the same timestamp. Devices with no entries
// are skipped.
func (idx *Index) Merge(other *Index) {
	if other == nil {
		return
	}
	for id, theirs := range other.devices {
		if theirs.Len() == 0 {
			continue
		}
		ours, ok := idx.devices[id]
		if !ok {
			h := NewHistory()
			maps.Copy(h.entries, theirs.entries)
			idx.devices[id] = h
			continue
		}
		maps.Copy(ours.entries, theirs.entries)
	}
}

// Walk calls fn for every entry, devices in lexicographic order and entries
// in time order. Walking stops at the first error.
func (idx *Index) Walk(fn func(Entry) error) error {
	for _, id := range idx.Devices() {
		for _, e := range idx.devices[id].Entries() {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}
