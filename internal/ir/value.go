package ir

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/cockroachdb/errors"
)

// IRValue is a sealed interface over the permitted value types.
// Only IRString, IRInt, IRBool, IRArray, and IRObject implement it.
type IRValue interface {
	irValue()
}

// IRString is a string value.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps string keys to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// Bytes encodes b as a lowercase hex IRString.
func Bytes(b []byte) IRString {
	return IRString(hex.EncodeToString(b))
}

// AsString returns the string held by v.
func AsString(v IRValue) (string, bool) {
	s, ok := v.(IRString)
	return string(s), ok
}

// AsInt returns the integer held by v.
func AsInt(v IRValue) (int64, bool) {
	n, ok := v.(IRInt)
	return int64(n), ok
}

// AsBool returns the boolean held by v.
func AsBool(v IRValue) (bool, bool) {
	b, ok := v.(IRBool)
	return bool(b), ok
}

// AsBytes decodes a hex IRString.
func AsBytes(v IRValue) ([]byte, bool) {
	s, ok := v.(IRString)
	if !ok {
		return nil, false
	}
	b, err := hex.DecodeString(string(s))
	if err != nil {
		return nil, false
	}
	return b, true
}

// Equal reports whether a and b have identical canonical encodings.
func Equal(a, b IRValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ab, err := MarshalCanonical(a)
	if err != nil {
		return false
	}
	bb, err := MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Compare orders two values by their canonical encodings.
// Values that cannot be encoded sort first.
func Compare(a, b IRValue) int {
	ab, _ := MarshalCanonical(a)
	bb, _ := MarshalCanonical(b)
	return bytes.Compare(ab, bb)
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's string comparison orders by UTF-8 bytes, which differs above U+FFFF.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// UnmarshalIRValue parses JSON into an IRValue.
// Floats and null are rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode json")
	}
	if dec.More() {
		return nil, errors.New("trailing data after json value")
	}
	return fromJSON(raw)
}

func fromJSON(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, errors.New("null is forbidden")
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, errors.Newf("floats are forbidden: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, errors.Newf("number out of int64 range: %s", s)
		}
		return IRInt(n), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := fromJSON(elem)
			if err != nil {
				return nil, errors.Wrapf(err, "array[%d]", i)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := fromJSON(elem)
			if err != nil {
				return nil, errors.Wrapf(err, "object[%q]", k)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, errors.Newf("unsupported type: %T", v)
	}
}
