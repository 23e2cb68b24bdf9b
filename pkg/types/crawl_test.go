package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLocal(t *testing.T) {
	cases := map[string]bool{
		"/redfish/v1/Systems":                      true,
		"/redfish/v1/Chassis/1/Power#/PowerControl": false,
		"http://bmc/redfish/v1":                    false,
		"//bmc/redfish/v1":                         false,
		"redfish/v1":                               false,
		"":                                         false,
		"/redfish/v1/Schemas/Resource_v1.xml":      true,
	}
	for uri, want := range cases {
		assert.Equal(t, want, IsLocal(uri), uri)
	}
}

func TestCanonicalKey(t *testing.T) {
	assert.Equal(t, "/redfish/v1", CanonicalKey("/redfish/v1/"))
	assert.Equal(t, "/redfish/v1", CanonicalKey("/redfish/v1"))
	assert.Equal(t, "/", CanonicalKey("/"))
	assert.Equal(t, Reference{URI: "/a/b//"}.Key(), "/a/b")
}

func TestParseODataType(t *testing.T) {
	assert.Equal(t, ODataType{Namespace: "LogEntry", Version: "v1_4_0", Name: "LogEntry"}, ParseODataType("#LogEntry.v1_4_0.LogEntry"))
	assert.Equal(t, ODataType{Namespace: "LogEntryCollection", Name: "LogEntryCollection"}, ParseODataType("#LogEntryCollection.LogEntryCollection"))
	assert.Equal(t, ODataType{}, ParseODataType(""))
	assert.Equal(t, "JsonSchemaFile", ParseODataType("#JsonSchemaFile.v1_1_0.JsonSchemaFile").Name)
}

func TestResponseOK(t *testing.T) {
	assert.True(t, (&Response{StatusCode: 200}).OK())
	assert.False(t, (&Response{StatusCode: 404}).OK())
	var nilResp *Response
	assert.False(t, nilResp.OK())
	assert.Equal(t, "", nilResp.Text())
}
