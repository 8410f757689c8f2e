// Package hashlog tracks which serialized messages are currently
// authoritative for a config domain.
//
// Every merged or confirmed message becomes a Record carrying the state it
// described. A record stays live until another live record strictly covers
// its state. Because "covers" is a preorder, the live set depends only on
// which records were added, never on the order they arrived in or how often.
package hashlog

import (
	"slices"
)

// Record is one message known to the log.
type Record[S any] struct {
	Hash  string
	Seqno int64
	State S
}

// CoverFunc reports whether outer contains everything inner says.
// It must be reflexive and transitive.
type CoverFunc[S any] func(outer, inner S) bool

// Log is the set of live records.
// Not safe for concurrent use; owned by a single engine.
type Log[S any] struct {
	covers  CoverFunc[S]
	records map[string]Record[S]
}

// New creates an empty log ordered by covers.
func New[S any](covers CoverFunc[S]) *Log[S] {
	return &Log[S]{
		covers:  covers,
		records: make(map[string]Record[S]),
	}
}

func (l *Log[S]) strictlyCovers(outer, inner S) bool {
	return l.covers(outer, inner) && !l.covers(inner, outer)
}

// Add offers a record to the log. It returns true if the live set changed.
// A record strictly covered by a live record is not kept; live records
// strictly covered by the new one are retired.
func (l *Log[S]) Add(rec Record[S]) bool {
	if _, ok := l.records[rec.Hash]; ok {
		return false
	}
	for _, live := range l.records {
		if l.strictlyCovers(live.State, rec.State) {
			return false
		}
	}
	for hash, live := range l.records {
		if l.strictlyCovers(rec.State, live.State) {
			delete(l.records, hash)
		}
	}
	l.records[rec.Hash] = rec
	return true
}

// Has reports whether hash is live.
func (l *Log[S]) Has(hash string) bool {
	_, ok := l.records[hash]
	return ok
}

// Hashes returns live hashes in sorted order.
func (l *Log[S]) Hashes() []string {
	hashes := make([]string, 0, len(l.records))
	for h := range l.records {
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)
	return hashes
}

// Records returns live records sorted by hash.
func (l *Log[S]) Records() []Record[S] {
	out := make([]Record[S], 0, len(l.records))
	for _, h := range l.Hashes() {
		out = append(out, l.records[h])
	}
	return out
}

// Matches reports whether some live record describes exactly state.
func (l *Log[S]) Matches(state S) bool {
	for _, live := range l.records {
		if l.covers(live.State, state) && l.covers(state, live.State) {
			return true
		}
	}
	return false
}

// Len returns the number of live records.
func (l *Log[S]) Len() int {
	return len(l.records)
}

// Retain drops every live record for which keep returns false.
func (l *Log[S]) Retain(keep func(Record[S]) bool) {
	for hash, rec := range l.records {
		if !keep(rec) {
			delete(l.records, hash)
		}
	}
}
