package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    IRValue
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"min int64", IRInt(-9223372036854775808), "-9223372036854775808"},
		{"bool true", IRBool(true), "true"},
		{"bool false", IRBool(false), "false"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"simple object", IRObject{"a": IRInt(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{"b": IRInt(1), "a": IRInt(2)},
		"a": IRInt(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting 0xD800, which sorts
	// before U+E000 in UTF-16 but after it in UTF-8.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalEscaping(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\"b\\c\n<&>\u2028\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\n<&>`+"\u2028"+`\u0001"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	result, err := MarshalCanonical(IRString("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalRejectsNil(t *testing.T) {
	_, err := MarshalCanonical(IRObject{"a": nil})
	assert.Error(t, err)
}

func TestUnmarshalIRValue(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`{"n":7,"s":"x","b":true,"a":[1,"y"]}`))
	require.NoError(t, err)

	obj, ok := v.(IRObject)
	require.True(t, ok)
	assert.Equal(t, IRInt(7), obj["n"])
	assert.Equal(t, IRString("x"), obj["s"])
	assert.Equal(t, IRBool(true), obj["b"])
	assert.Equal(t, IRArray{IRInt(1), IRString("y")}, obj["a"])
}

func TestUnmarshalIRValueRejects(t *testing.T) {
	for _, input := range []string{`1.5`, `null`, `{"a":null}`, `1e3`, `{} {}`, `{`} {
		_, err := UnmarshalIRValue([]byte(input))
		assert.Error(t, err, "input %s", input)
	}
}

func TestEqualAndBytes(t *testing.T) {
	assert.True(t, Equal(IRObject{"a": IRInt(1)}, IRObject{"a": IRInt(1)}))
	assert.False(t, Equal(IRInt(1), IRString("1")))

	b, ok := AsBytes(Bytes([]byte{0xde, 0xad}))
	require.True(t, ok)
	assert.Equal(t, []byte{0xde, 0xad}, b)

	_, ok = AsBytes(IRString("zz"))
	assert.False(t, ok)
}

func TestStateDigest(t *testing.T) {
	d1, err := StateDigest(IRObject{"x": IRInt(1), "y": IRString("a")})
	require.NoError(t, err)
	d2, err := StateDigest(IRObject{"y": IRString("a"), "x": IRInt(1)})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	assert.NotEqual(t, MessageHash([]byte("a")), MessageHash([]byte("b")))
}
