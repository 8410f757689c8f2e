package engine

import (
	"github.com/cockroachdb/errors"

	"github.com/roach88/swarmsync/internal/ir"
)

const payloadVersion = 1

// payload is the plaintext of one config message:
//
//	{"e":{key:[seq,node,deleted,value?]},"n":namespace,"s":seqno,"v":1}
//
// encoded as canonical JSON so equal states encode to equal bytes.
type payload struct {
	ns    Namespace
	seqno int64
	state Snapshot
}

func encodePayload(p payload) ([]byte, error) {
	entries := make(ir.IRObject, len(p.state))
	for k, e := range p.state {
		arr := ir.IRArray{ir.IRInt(e.Stamp.Seq), ir.IRString(e.Stamp.Node), ir.IRBool(e.Deleted)}
		if !e.Deleted {
			arr = append(arr, e.Value)
		}
		entries[k] = arr
	}
	return ir.MarshalCanonical(ir.IRObject{
		"v": ir.IRInt(payloadVersion),
		"n": ir.IRInt(p.ns),
		"s": ir.IRInt(p.seqno),
		"e": entries,
	})
}

func decodePayload(data []byte) (payload, error) {
	v, err := ir.UnmarshalIRValue(data)
	if err != nil {
		return payload{}, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok || len(obj) != 4 {
		return payload{}, errors.New("payload is not a 4-field object")
	}
	if version, _ := ir.AsInt(obj["v"]); version != payloadVersion {
		return payload{}, errors.Newf("unsupported payload version %v", obj["v"])
	}
	ns, ok := ir.AsInt(obj["n"])
	if !ok {
		return payload{}, errors.New("payload namespace missing")
	}
	seqno, ok := ir.AsInt(obj["s"])
	if !ok || seqno < 0 {
		return payload{}, errors.New("payload seqno missing")
	}
	raw, ok := obj["e"].(ir.IRObject)
	if !ok {
		return payload{}, errors.New("payload entries missing")
	}

	state := make(Snapshot, len(raw))
	for k, rv := range raw {
		e, err := decodeEntry(rv)
		if err != nil {
			return payload{}, errors.Wrapf(err, "entry %q", k)
		}
		state[k] = e
	}
	return payload{ns: Namespace(ns), seqno: seqno, state: state}, nil
}

func decodeEntry(v ir.IRValue) (Entry, error) {
	arr, ok := v.(ir.IRArray)
	if !ok || len(arr) < 3 || len(arr) > 4 {
		return Entry{}, errors.New("entry must be a 3 or 4 element array")
	}
	seq, ok := ir.AsInt(arr[0])
	if !ok || seq <= 0 {
		return Entry{}, errors.New("entry stamp must be a positive int")
	}
	node, ok := ir.AsString(arr[1])
	if !ok || node == "" {
		return Entry{}, errors.New("entry node must be a non-empty string")
	}
	deleted, ok := ir.AsBool(arr[2])
	if !ok {
		return Entry{}, errors.New("entry deleted flag must be a bool")
	}
	e := Entry{Stamp: Stamp{Seq: seq, Node: node}, Deleted: deleted}
	switch {
	case deleted && len(arr) != 3:
		return Entry{}, errors.New("deleted entry carries a value")
	case !deleted && len(arr) != 4:
		return Entry{}, errors.New("live entry has no value")
	case !deleted:
		e.Value = arr[3]
	}
	return e, nil
}
