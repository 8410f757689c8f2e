package engine

import (
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/swarmsync/internal/ir"
)

// Schema describes the keys a domain stores.
type Schema interface {
	// Namespace is the schema's storage namespace.
	Namespace() Namespace

	// Policy returns the merge policy for a key.
	Policy(key string) Policy

	// Validate checks a value for a key. Unknown keys are an error.
	Validate(key string, v ir.IRValue) error
}

// Kind is the value type a field accepts.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindBytes
)

// Field declares one key pattern. Path segments are separated by "/" and a
// "*" segment matches any single segment.
type Field struct {
	Path   string
	Policy Policy
	Kind   Kind

	// MaxLen bounds KindString values in bytes.
	MaxLen int

	// Len, when set, is the exact decoded length of a KindBytes value.
	// A zero-length value is always accepted so fields can be cleared.
	Len int

	// Min and Max bound KindInt values when Max > Min.
	Min, Max int64
}

// FieldSchema is a Schema built from Field patterns.
type FieldSchema struct {
	ns     Namespace
	fields []Field
}

// NewSchema builds a schema. The first matching pattern wins.
func NewSchema(ns Namespace, fields ...Field) *FieldSchema {
	return &FieldSchema{ns: ns, fields: fields}
}

// Namespace implements Schema.
func (s *FieldSchema) Namespace() Namespace {
	return s.ns
}

// Policy implements Schema.
func (s *FieldSchema) Policy(key string) Policy {
	if f, ok := s.lookup(key); ok {
		return f.Policy
	}
	return LastWriterWins
}

// Validate implements Schema.
func (s *FieldSchema) Validate(key string, v ir.IRValue) error {
	f, ok := s.lookup(key)
	if !ok {
		return errors.Newf("unknown key %q", key)
	}
	switch f.Kind {
	case KindString:
		str, ok := ir.AsString(v)
		if !ok {
			return errors.Newf("%s: want string, got %T", key, v)
		}
		if f.MaxLen > 0 && len(str) > f.MaxLen {
			return errors.Newf("%s: %d bytes exceeds limit of %d", key, len(str), f.MaxLen)
		}
	case KindInt:
		n, ok := ir.AsInt(v)
		if !ok {
			return errors.Newf("%s: want int, got %T", key, v)
		}
		if f.Max > f.Min && (n < f.Min || n > f.Max) {
			return errors.Newf("%s: %d outside [%d, %d]", key, n, f.Min, f.Max)
		}
	case KindBool:
		if _, ok := ir.AsBool(v); !ok {
			return errors.Newf("%s: want bool, got %T", key, v)
		}
	case KindBytes:
		str, ok := ir.AsString(v)
		if !ok {
			return errors.Newf("%s: want hex string, got %T", key, v)
		}
		if strings.ToLower(str) != str {
			return errors.Newf("%s: hex must be lowercase", key)
		}
		b, err := hex.DecodeString(str)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		if f.Len > 0 && len(b) != 0 && len(b) != f.Len {
			return errors.Newf("%s: want %d bytes, got %d", key, f.Len, len(b))
		}
	}
	return nil
}

func (s *FieldSchema) lookup(key string) (Field, bool) {
	segs := strings.Split(key, "/")
	for _, f := range s.fields {
		if matchPath(strings.Split(f.Path, "/"), segs) {
			return f, true
		}
	}
	return Field{}, false
}

func matchPath(pattern, segs []string) bool {
	if len(pattern) != len(segs) {
		return false
	}
	for i, p := range pattern {
		if segs[i] == "" {
			return false
		}
		if p != "*" && p != segs[i] {
			return false
		}
	}
	return true
}
