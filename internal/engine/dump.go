package engine

import (
	"bytes"

	"github.com/cockroachdb/errors"
	xdr "github.com/davecgh/go-xdr/xdr2"

	"github.com/roach88/swarmsync/internal/hashlog"
	"github.com/roach88/swarmsync/internal/ir"
)

const dumpVersion = 1

// dumpFile is the xdr layout of a persisted Config.
type dumpFile struct {
	Version    uint32
	Namespace  int32
	Node       string
	Clock      int64
	Seqno      int64
	Entries    []dumpEntry
	Records    []dumpRecord
	HasPending bool
	Pending    dumpPending
	Reseal     bool
}

type dumpEntry struct {
	Key     string
	Value   []byte
	Seq     int64
	Node    string
	Deleted bool
}

type dumpRecord struct {
	Hash    string
	Seqno   int64
	Entries []dumpEntry
}

type dumpPending struct {
	Seqno    int64
	Data     []byte
	Hashes   []string
	Entries  []dumpEntry
	Resealed bool
}

func encodeEntries(s Snapshot) ([]dumpEntry, error) {
	out := make([]dumpEntry, 0, len(s))
	for _, k := range s.SortedKeys() {
		e := s[k]
		de := dumpEntry{Key: k, Seq: e.Stamp.Seq, Node: e.Stamp.Node, Deleted: e.Deleted}
		if !e.Deleted {
			b, err := ir.MarshalCanonical(e.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "encode %q", k)
			}
			de.Value = b
		}
		out = append(out, de)
	}
	return out, nil
}

func decodeEntries(in []dumpEntry) (Snapshot, error) {
	s := make(Snapshot, len(in))
	for _, de := range in {
		e := Entry{Stamp: Stamp{Seq: de.Seq, Node: de.Node}, Deleted: de.Deleted}
		if !de.Deleted {
			v, err := ir.UnmarshalIRValue(de.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "decode %q", de.Key)
			}
			e.Value = v
		}
		s[de.Key] = e
	}
	return s, nil
}

// Dump serializes the full engine state, including any outstanding push and
// the live hash log, and clears NeedsDump.
func (c *Config) Dump() ([]byte, error) {
	data, err := c.MakeDump()
	if err != nil {
		return nil, err
	}
	c.needsDump = false
	return data, nil
}

// MakeDump is Dump without clearing NeedsDump.
func (c *Config) MakeDump() ([]byte, error) {
	f := dumpFile{
		Version:   dumpVersion,
		Namespace: int32(c.schema.Namespace()),
		Node:      c.node,
		Clock:     c.clock.Current(),
		Seqno:     c.seqno,
		Reseal:    c.reseal,
	}
	var err error
	if f.Entries, err = encodeEntries(c.state); err != nil {
		return nil, err
	}
	for _, rec := range c.log.Records() {
		entries, err := encodeEntries(rec.State)
		if err != nil {
			return nil, err
		}
		f.Records = append(f.Records, dumpRecord{Hash: rec.Hash, Seqno: rec.Seqno, Entries: entries})
	}
	if c.pending != nil {
		entries, err := encodeEntries(c.pending.state)
		if err != nil {
			return nil, err
		}
		f.HasPending = true
		f.Pending = dumpPending{
			Seqno:    c.pending.seqno,
			Data:     c.pending.data,
			Hashes:   c.pending.hashes,
			Entries:  entries,
			Resealed: c.pending.resealed,
		}
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, f); err != nil {
		return nil, errors.Wrap(err, "marshal dump")
	}
	return buf.Bytes(), nil
}

func (c *Config) load(dump []byte) error {
	var f dumpFile
	if _, err := xdr.Unmarshal(bytes.NewReader(dump), &f); err != nil {
		return NewInvalidInputError("load", "corrupt dump: %v", err)
	}
	if f.Version != dumpVersion {
		return NewInvalidInputError("load", "unsupported dump version %d", f.Version)
	}
	if Namespace(f.Namespace) != c.schema.Namespace() {
		return NewInvalidInputError("load", "dump namespace %s does not match %s",
			Namespace(f.Namespace), c.schema.Namespace())
	}

	state, err := decodeEntries(f.Entries)
	if err != nil {
		return NewInvalidInputError("load", "corrupt dump: %v", err)
	}
	c.state = state
	c.node = f.Node
	c.clock = NewClockAt(f.Clock)
	c.seqno = f.Seqno
	c.reseal = f.Reseal

	for _, r := range f.Records {
		s, err := decodeEntries(r.Entries)
		if err != nil {
			return NewInvalidInputError("load", "corrupt dump record %s: %v", r.Hash, err)
		}
		c.log.Add(hashlog.Record[Snapshot]{Hash: r.Hash, Seqno: r.Seqno, State: s})
	}
	if f.HasPending {
		s, err := decodeEntries(f.Pending.Entries)
		if err != nil {
			return NewInvalidInputError("load", "corrupt pending push: %v", err)
		}
		c.pending = &pendingPush{
			seqno:    f.Pending.Seqno,
			data:     f.Pending.Data,
			hashes:   f.Pending.Hashes,
			state:    s,
			resealed: f.Pending.Resealed,
		}
	}
	return nil
}
