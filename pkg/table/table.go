// Package table implements the open-addressed, linear-probed hash
// table NVMbr uses for its globals table and its weak string-intern
// set. It is deliberately not Go's builtin map: interning needs
// table_find_string's probe-then-compare-by-content lookup (find a
// candidate string by its characters before an ObjString for it even
// exists), which a builtin map cannot express.
package table

import "github.com/kristofer/nvmbr/pkg/value"

const maxLoad = 0.75

type entry struct {
	key   *value.ObjString
	value value.Value
	used  bool // not set or read; a tombstone is marked by key==nil,value==True
}

// Table is an open-addressed hash table keyed by interned string
// pointers (so key comparison is pointer equality, never content
// comparison) with tombstone deletion.
type Table struct {
	count    int
	entries  []entry
	capacity int
}

// Get looks up key, returning its value and whether it was present.
func (t *Table) Get(key *value.ObjString) (value.Value, bool) {
	if t.count == 0 {
		return value.Nil, false
	}
	e := t.findEntry(t.entries, key)
	if e.key == nil {
		return value.Nil, false
	}
	return e.value, true
}

// Set stores value under key, growing the table if needed. It reports
// whether key was newly inserted (as opposed to overwriting an
// existing entry); reusing a tombstone counts as a new insertion.
func (t *Table) Set(key *value.ObjString, v value.Value) bool {
	if float64(t.count+1) > float64(t.capacity)*maxLoad {
		t.adjustCapacity(growCapacity(t.capacity))
	}

	e := t.findEntry(t.entries, key)
	isNewKey := e.key == nil
	if isNewKey && value.IsNil(e.value) {
		t.count++
	}

	e.key = key
	e.value = v
	return isNewKey
}

// Delete removes key, leaving a tombstone so later probes don't stop
// short. Reports whether key was present.
func (t *Table) Delete(key *value.ObjString) bool {
	if t.count == 0 {
		return false
	}
	e := t.findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = value.True // tombstone sentinel
	return true
}

// AddAll copies every entry of src into t. (OP_INHERIT copies class
// method maps directly and does not call it.)
func (t *Table) AddAll(src *Table) {
	for i := range src.entries {
		e := &src.entries[i]
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// FindString performs the specialized lookup string interning needs:
// find an already-interned string with these exact characters, without
// first allocating an ObjString to compare against.
func (t *Table) FindString(chars string, hash uint32) *value.ObjString {
	if t.count == 0 {
		return nil
	}
	mask := uint32(t.capacity - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.key == nil {
			if value.IsNil(e.value) {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) & mask
	}
}

// RemoveWhiteUnmarked deletes every entry whose key object the garbage
// collector did not mark, implementing the weak-reference semantics of
// the string-intern table (interned strings the GC is about to sweep
// must not keep that entry alive).
func (t *Table) RemoveWhiteUnmarked() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.IsMarked {
			t.Delete(e.key)
		}
	}
}

// Each calls fn for every live entry, used by the collector to mark
// roots reachable through a table (globals, or any future table-backed
// structure).
func (t *Table) Each(fn func(key *value.ObjString, v value.Value)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

func (t *Table) findEntry(entries []entry, key *value.ObjString) *entry {
	mask := uint32(len(entries) - 1)
	index := key.Hash & mask
	var tombstone *entry

	for {
		e := &entries[index]
		switch {
		case e.key == nil:
			if value.IsNil(e.value) {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		case e.key == key:
			return e
		}
		index = (index + 1) & mask
	}
}

func (t *Table) adjustCapacity(capacity int) {
	entries := make([]entry, capacity)
	for i := range entries {
		entries[i].value = value.Nil
	}

	t.count = 0
	for i := range t.entries {
		old := &t.entries[i]
		if old.key == nil {
			continue
		}
		dest := t.findEntry(entries, old.key)
		dest.key = old.key
		dest.value = old.value
		t.count++
	}

	t.entries = entries
	t.capacity = capacity
}

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}
