package jsontree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeepsKeyOrder(t *testing.T) {
	v, err := Decode([]byte(`{"z": 1, "a": {"y": true, "b": null}, "m": [1, "two", {"k": 3.5}]}`))
	require.NoError(t, err)

	obj, ok := v.(*Object)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())

	inner, _ := obj.Get("a")
	assert.Equal(t, []string{"y", "b"}, inner.(*Object).Keys())

	arr, _ := obj.Get("m")
	require.Len(t, arr, 3)
	assert.Equal(t, json.Number("1"), arr.([]any)[0])
	assert.Equal(t, "two", arr.([]any)[1])
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode([]byte(`{"a": 1} {"b": 2}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"a": `))
	assert.Error(t, err)
}

func TestObjectSetAndDelete(t *testing.T) {
	obj := NewObject()
	obj.Set("a", "1")
	obj.Set("b", "2")
	obj.Set("c", "3")
	obj.Set("a", "replaced")
	assert.Equal(t, []string{"a", "b", "c"}, obj.Keys())

	v, _ := obj.String("a")
	assert.Equal(t, "replaced", v)

	obj.Delete("b")
	obj.Delete("missing")
	assert.Equal(t, []string{"a", "c"}, obj.Keys())
	assert.False(t, obj.Has("b"))
}

func TestCloneIsIndependent(t *testing.T) {
	v, err := Decode([]byte(`{"Members": [{"@odata.id": "/a"}], "Name": "x"}`))
	require.NoError(t, err)

	dup := Clone(v).(*Object)
	dup.Set("Name", "y")
	members, _ := dup.Get("Members")
	members.([]any)[0].(*Object).Set("@odata.id", "/b")

	orig := v.(*Object)
	name, _ := orig.String("Name")
	assert.Equal(t, "x", name)
	origMembers, _ := orig.Get("Members")
	id, _ := origMembers.([]any)[0].(*Object).String("@odata.id")
	assert.Equal(t, "/a", id)
}

func TestToInterface(t *testing.T) {
	v, err := Decode([]byte(`{"n": 3, "f": 1.5, "s": [{"x": "y"}]}`))
	require.NoError(t, err)

	plain := ToInterface(v)
	assert.Equal(t, map[string]any{
		"n": int64(3),
		"f": 1.5,
		"s": []any{map[string]any{"x": "y"}},
	}, plain)
}

func TestMarshalFormat(t *testing.T) {
	v, err := Decode([]byte(`{"@odata.id":"/redfish/v1","Systems":{"@odata.id":"/redfish/v1/Systems"},"List":[1,2],"Empty":{},"None":[],"Flag":false,"Nil":null}`))
	require.NoError(t, err)

	out, err := Marshal(v)
	require.NoError(t, err)

	want := "{\n" +
		"    \"@odata.id\": \"/redfish/v1\", \n" +
		"    \"Systems\": {\n" +
		"        \"@odata.id\": \"/redfish/v1/Systems\"\n" +
		"    }, \n" +
		"    \"List\": [\n" +
		"        1, \n" +
		"        2\n" +
		"    ], \n" +
		"    \"Empty\": {}, \n" +
		"    \"None\": [], \n" +
		"    \"Flag\": false, \n" +
		"    \"Nil\": null\n" +
		"}"
	assert.Equal(t, want, string(out))
}

func TestMarshalEscapesNonASCII(t *testing.T) {
	out, err := Marshal("café \"q\" \\ \n \x01 \U0001F600")
	require.NoError(t, err)
	assert.Equal(t, `"caf\u00e9 \"q\" \\ \n \u0001 \ud83d\ude00"`, string(out))
}

func TestMarshalRoundTripPreservesNumbers(t *testing.T) {
	v, err := Decode([]byte(`{"a": 1.50, "b": -0, "c": 1e3}`))
	require.NoError(t, err)
	out, err := Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"a": 1.50`)
	assert.Contains(t, string(out), `"c": 1e3`)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "object", TypeName(NewObject()))
	assert.Equal(t, "array", TypeName([]any{}))
	assert.Equal(t, "number", TypeName(json.Number("1")))
	assert.Equal(t, "null", TypeName(nil))
}
