package driver

import "encoding/json"

// EntryType is the kind of a listed node.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

// DirectoryEntry is one node found by a scan.
type DirectoryEntry struct {
	Identifier string    `json:"identifier"`
	Type       EntryType `json:"type"`
}

// IsDir reports whether the entry is a folder.
func (e DirectoryEntry) IsDir() bool {
	return e.Type == EntryDir
}

// Listing maps identifiers to entries in insertion order.
type Listing struct {
	entries []DirectoryEntry
	index   map[string]int
}

// NewListing returns an empty listing.
func NewListing() *Listing {
	return &Listing{index: make(map[string]int)}
}

// Add inserts e. Re-adding an identifier replaces the entry in its original position.
func (l *Listing) Add(e DirectoryEntry) {
	if i, ok := l.index[e.Identifier]; ok {
		l.entries[i] = e
		return
	}
	l.index[e.Identifier] = len(l.entries)
	l.entries = append(l.entries, e)
}

// Merge adds every entry of other in order.
func (l *Listing) Merge(other *Listing) {
	for _, e := range other.entries {
		l.Add(e)
	}
}

// Get returns the entry for identifier.
func (l *Listing) Get(identifier string) (DirectoryEntry, bool) {
	i, ok := l.index[identifier]
	if !ok {
		return DirectoryEntry{}, false
	}
	return l.entries[i], true
}

// Len returns the number of entries.
func (l *Listing) Len() int {
	return len(l.entries)
}

// Entries returns the entries in order.
func (l *Listing) Entries() []DirectoryEntry {
	out := make([]DirectoryEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Identifiers returns the identifiers in order.
func (l *Listing) Identifiers() []string {
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Identifier
	}
	return out
}

// MarshalJSON encodes the listing as an ordered array of entries.
func (l *Listing) MarshalJSON() ([]byte, error) {
	if l.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.entries)
}
