package engine

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/swarmsync/internal/ir"
)

// Namespace identifies which schema a blob belongs to.
type Namespace int32

// Config namespaces.
const (
	NamespaceUserProfile       Namespace = 2
	NamespaceContacts          Namespace = 3
	NamespaceConvoInfoVolatile Namespace = 4
	NamespaceUserGroups        Namespace = 5
	NamespaceGroupKeys         Namespace = 12
	NamespaceGroupInfo         Namespace = 13
	NamespaceGroupMembers      Namespace = 14
)

func (n Namespace) String() string {
	switch n {
	case NamespaceUserProfile:
		return "UserProfile"
	case NamespaceContacts:
		return "Contacts"
	case NamespaceConvoInfoVolatile:
		return "ConvoInfoVolatile"
	case NamespaceUserGroups:
		return "UserGroups"
	case NamespaceGroupKeys:
		return "GroupKeys"
	case NamespaceGroupInfo:
		return "GroupInfo"
	case NamespaceGroupMembers:
		return "GroupMembers"
	default:
		return "Namespace(" + itoa(int64(n)) + ")"
	}
}

// Stamp orders writes to one key: Lamport sequence first, then device id.
type Stamp struct {
	Seq  int64
	Node string
}

// Compare orders stamps.
func (s Stamp) Compare(o Stamp) int {
	if c := cmp.Compare(s.Seq, o.Seq); c != 0 {
		return c
	}
	return strings.Compare(s.Node, o.Node)
}

// Entry is the stored state of one key.
type Entry struct {
	Value   ir.IRValue
	Stamp   Stamp
	Deleted bool
}

// Policy selects how concurrent writes to a key resolve.
type Policy int

const (
	LastWriterWins Policy = iota
	MaxValue
	FirstWriter
	Counter
	SetUnion
)

func (p Policy) String() string {
	switch p {
	case LastWriterWins:
		return "last-writer-wins"
	case MaxValue:
		return "max-value"
	case FirstWriter:
		return "first-writer"
	case Counter:
		return "counter"
	case SetUnion:
		return "set-union"
	default:
		return "policy(" + itoa(int64(p)) + ")"
	}
}

// Compare totally orders two entries for the same key; the join keeps the
// greater one.
func (p Policy) Compare(a, b Entry) int {
	switch p {
	case MaxValue:
		if c := cmp.Compare(intOf(a), intOf(b)); c != 0 {
			return c
		}
	case FirstWriter:
		if c := b.Stamp.Compare(a.Stamp); c != 0 {
			return c
		}
		return tieBreak(a, b)
	}
	if c := a.Stamp.Compare(b.Stamp); c != 0 {
		return c
	}
	return tieBreak(a, b)
}

// Join returns the winner of a and b.
func (p Policy) Join(a, b Entry) Entry {
	if p.Compare(a, b) < 0 {
		return b
	}
	return a
}

func tieBreak(a, b Entry) int {
	if a.Deleted != b.Deleted {
		if a.Deleted {
			return 1
		}
		return -1
	}
	if a.Deleted {
		return 0
	}
	return ir.Compare(a.Value, b.Value)
}

func intOf(e Entry) int64 {
	if e.Deleted {
		return math.MinInt64
	}
	n, ok := ir.AsInt(e.Value)
	if !ok {
		return math.MinInt64
	}
	return n
}

// Snapshot is a full key to entry map.
type Snapshot map[string]Entry

// Clone returns a shallow copy. Entry values are immutable.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, e := range s {
		out[k] = e
	}
	return out
}

// SortedKeys returns the snapshot keys in byte order.
func (s Snapshot) SortedKeys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// subKeySep separates a counter or set field from its per-device or
// per-element suffix.
const subKeySep = "#"

// splitKey returns the schema key and the sub-entry suffix, if any.
func splitKey(key string) (base, sub string) {
	if i := strings.Index(key, subKeySep); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
