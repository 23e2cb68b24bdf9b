package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathInactiveOnLinux(t *testing.T) {
	s := New(Options{GOOS: "linux"})
	assert.False(t, s.Active())
	assert.Equal(t, "redfish/v1/Systems/1:2", s.Path("/redfish/v1/Systems/1:2"))
}

func TestPathActiveOnWindows(t *testing.T) {
	s := New(Options{GOOS: "windows"})
	assert.True(t, s.Active())
	assert.Equal(t, "redfish/v1/Registries/Base_1_0", s.Path("/redfish/v1/Registries/Base:1:0"))
}

func TestReferenceKeepsLeadingSlash(t *testing.T) {
	s := New(Options{Force: true, GOOS: "linux"})
	assert.Equal(t, "/redfish/v1/Managers/iDRAC_Embedded_1", s.Reference("/redfish/v1/Managers/iDRAC:Embedded|1"))
}

func TestSanitizeIsIdempotentAndComplete(t *testing.T) {
	inputs := []string{
		`/a:b*c?d"e<f>g|h`,
		`/redfish/v1/Systems/System.Embedded.1`,
		`::::`,
		``,
		`/x/y:z/`,
	}
	for _, forbidden := range []string{"", ":|", `:*?"<>|_`} {
		s := New(Options{Force: true, Forbidden: forbidden})
		for _, in := range inputs {
			once := s.Path(in)
			assert.Equal(t, once, s.Path(once), "input %q", in)
			assert.False(t, strings.ContainsAny(once, s.Forbidden()), "input %q -> %q", in, once)
		}
	}
}

func TestCustomForbiddenSet(t *testing.T) {
	s := New(Options{Force: true, Forbidden: "#"})
	assert.Equal(t, "a_b:c", s.Path("/a#b:c"))
}
