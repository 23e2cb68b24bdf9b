package types

import "strings"

// Well-known payload keys.
const (
	KeyID        = "@odata.id"
	KeyType      = "@odata.type"
	KeyCopyright = "@Redfish.Copyright"
	KeyMembers   = "Members"
	KeyCount     = "Members@odata.count"
	KeyNextLink  = "Members@odata.nextLink"
	KeyLocation  = "Location"
	KeyURI       = "Uri"
)

// ODataType is a parsed "#Namespace.vX_Y_Z.Type" value.
type ODataType struct {
	Namespace string
	Version   string
	Name      string
}

// ParseODataType splits an @odata.type value. Unversioned values such as
// "#LogEntryCollection.LogEntryCollection" have an empty Version.
func ParseODataType(raw string) ODataType {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if raw == "" {
		return ODataType{}
	}
	parts := strings.Split(raw, ".")
	switch len(parts) {
	case 1:
		return ODataType{Namespace: parts[0], Name: parts[0]}
	case 2:
		return ODataType{Namespace: parts[0], Name: parts[1]}
	default:
		return ODataType{
			Namespace: parts[0],
			Version:   strings.Join(parts[1:len(parts)-1], "."),
			Name:      parts[len(parts)-1],
		}
	}
}
