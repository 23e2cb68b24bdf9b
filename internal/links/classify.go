package links

import (
	"redfish-mockup-creator/pkg/jsontree"
	"redfish-mockup-creator/pkg/types"
)

// DistinguishedEntryTypes are inlined resources that are followed even when
// they carry more than an identity, so expanded log collections get walked.
var DistinguishedEntryTypes = map[string]struct{}{
	"LogEntry": {},
}

// LocationResourceTypes are the resource types whose Location[].Uri entries
// point at files worth mirroring.
var LocationResourceTypes = map[string]struct{}{
	"JsonSchemaFile":      {},
	"MessageRegistryFile": {},
}

// IsIdentityOnly reports a mapping whose only entry is @odata.id.
func IsIdentityOnly(obj *jsontree.Object) bool {
	return obj.Len() == 1 && obj.Has(types.KeyID)
}

// IsDistinguishedEntry reports a multi-entry mapping whose @odata.type names a
// distinguished type.
func IsDistinguishedEntry(obj *jsontree.Object) bool {
	if obj.Len() <= 1 {
		return false
	}
	name := TypeName(obj)
	if name == "" {
		return false
	}
	_, ok := DistinguishedEntryTypes[name]
	return ok
}

// LocationURI returns the Uri of a Location-shaped mapping when the enclosing
// resource type is one of LocationResourceTypes.
func LocationURI(key string, obj *jsontree.Object, resourceType string) (string, bool) {
	if key != types.KeyLocation {
		return "", false
	}
	if _, ok := LocationResourceTypes[resourceType]; !ok {
		return "", false
	}
	return obj.String(types.KeyURI)
}

// TypeName returns the type name from a mapping's @odata.type.
func TypeName(obj *jsontree.Object) string {
	raw, ok := obj.String(types.KeyType)
	if !ok {
		return ""
	}
	return types.ParseODataType(raw).Name
}

// IsCollection reports a resource carrying a Members sequence.
func IsCollection(obj *jsontree.Object) bool {
	v, ok := obj.Get(types.KeyMembers)
	if !ok {
		return false
	}
	_, ok = v.([]any)
	return ok
}
