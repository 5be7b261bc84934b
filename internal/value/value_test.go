package value

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsIntegersExact(t *testing.T) {
	v, err := Parse([]byte(`{"big": 9007199254740993, "ratio": 0.25, "name": "n"}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, Int(9007199254740993), obj["big"])
	assert.Equal(t, Float(0.25), obj["ratio"])
	assert.Equal(t, String("n"), obj["name"])
}

func TestParse_NullAndNested(t *testing.T) {
	v, err := Parse([]byte(`[null, true, {"a": []}]`))
	require.NoError(t, err)

	arr := v.(Array)
	require.Len(t, arr, 3)
	assert.Equal(t, Null{}, arr[0])
	assert.Equal(t, Bool(true), arr[1])
	assert.Equal(t, Object{"a": Array{}}, arr[2])
}

func TestParse_RejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing data")
}

func TestParseObject_RejectsNonObject(t *testing.T) {
	_, err := ParseObject([]byte(`[1,2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected JSON object, got array")
}

func TestMarshalCanonical_SortsKeysAndSkipsHTMLEscape(t *testing.T) {
	obj := Object{
		"b": Int(2),
		"a": String("<tag>&"),
		"c": Array{Bool(false), Null{}},
	}

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<tag>&","b":2,"c":[false,null]}`, string(data))
}

func TestMarshalCanonical_Floats(t *testing.T) {
	tests := []struct {
		in   Float
		want string
	}{
		{2, "2"},
		{0, "0"},
		{1.5, "1.5"},
		{-0.125, "-0.125"},
		{1e21, "1e+21"},
		{1e-7, "1e-7"},
	}
	for _, tt := range tests {
		data, err := MarshalCanonical(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(data), "float %v", float64(tt.in))
	}
}

func TestMarshalCanonical_RejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(Object{"x": Float(math.Inf(1))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-finite")
}

func TestMarshalCanonical_NFCNormalizesStrings(t *testing.T) {
	decomposed := String("e\u0301")
	composed := String("\u00e9")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestEqual_IntAndIntegralFloat(t *testing.T) {
	assert.True(t, Equal(Int(3), Float(3)))
	assert.False(t, Equal(Int(3), Float(3.5)))
	assert.True(t, Equal(Object{"x": Int(1)}, Object{"x": Float(1)}))
}

func TestSortedKeys_UTF16Order(t *testing.T) {
	// U+1F600 is a surrogate pair in UTF-16 and sorts before U+FB01; UTF-8 byte order is the reverse.
	obj := Object{"\U0001F600": Int(1), "ﬁ": Int(2)}
	assert.Equal(t, []string{"\U0001F600", "ﬁ"}, obj.SortedKeys())
}

func TestFromAny_YAMLShapes(t *testing.T) {
	v, err := FromAny(map[string]any{
		"n":    3,
		"f":    1.25,
		"list": []any{"a", nil},
		"nested": map[any]any{
			"k": true,
		},
	})
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, Int(3), obj["n"])
	assert.Equal(t, Float(1.25), obj["f"])
	assert.Equal(t, Array{String("a"), Null{}}, obj["list"])
	assert.Equal(t, Object{"k": Bool(true)}, obj["nested"])
}

func TestFromAny_RejectsNonStringKeys(t *testing.T) {
	_, err := FromAny(map[any]any{1: "x"})
	require.Error(t, err)
}

func TestToAny_RoundTrip(t *testing.T) {
	orig := Object{"a": Array{Int(1), Float(2.5), String("s"), Null{}, Bool(true)}}
	back, err := FromAny(ToAny(orig))
	require.NoError(t, err)
	assert.True(t, Equal(orig, back))
}

func TestObject_JSONRoundTrip(t *testing.T) {
	orig := Object{"x": Int(1), "y": Object{"z": String("w")}}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, orig, back)
}

func TestHash_StableAndDomainSeparated(t *testing.T) {
	v := Object{"b": Int(1), "a": Int(2)}
	same := Object{"a": Int(2), "b": Int(1)}

	h1, err := Hash(DomainContent, v)
	require.NoError(t, err)
	h2, err := Hash(DomainContent, same)
	require.NoError(t, err)
	h3, err := Hash(DomainSnapshot, v)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "null", KindOf(nil))
	assert.Equal(t, "number", KindOf(Float(1)))
	assert.Equal(t, "object", KindOf(Object{}))
}
