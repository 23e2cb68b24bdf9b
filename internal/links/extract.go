package links

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"

	"redfish-mockup-creator/pkg/jsontree"
	"redfish-mockup-creator/pkg/types"
)

// DefaultExceptions names services known to expand log collections without
// @odata.type on the members.
var DefaultExceptions = []string{"iDRAC.Embedded.1/Logs/"}

var membersExpr = jp.MustParseString("$.Members[*]")

// Result is the output of one extraction pass.
type Result struct {
	Refs     []types.Reference
	Warnings []string
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Extractor finds navigable references inside JSON resources.
type Extractor struct {
	exceptions []string
}

// NewExtractor builds an extractor with the given exception substrings.
func NewExtractor(exceptions []string) *Extractor {
	cleaned := make([]string, 0, len(exceptions))
	for _, e := range exceptions {
		if e = strings.TrimSpace(e); e != "" {
			cleaned = append(cleaned, e)
		}
	}
	return &Extractor{exceptions: cleaned}
}

// Extract returns the references reachable from a resource. Values that are
// not a mapping carrying its own @odata.id have no references.
func (e *Extractor) Extract(value any) Result {
	obj, ok := value.(*jsontree.Object)
	if !ok {
		return Result{}
	}
	self, ok := obj.String(types.KeyID)
	if !ok {
		return Result{}
	}
	if e.isException(self) {
		return extractMembers(obj)
	}
	w := &walker{resourceType: TypeName(obj)}
	w.walk(obj)
	return w.result
}

func (e *Extractor) isException(id string) bool {
	for _, ex := range e.exceptions {
		if strings.Contains(id, ex) {
			return true
		}
	}
	return false
}

// extractMembers restricts extraction to Members entries carrying @odata.id.
func extractMembers(obj *jsontree.Object) Result {
	var res Result
	if !IsCollection(obj) {
		return res
	}
	for _, m := range membersExpr.Get(jsontree.ToInterface(obj)) {
		member, ok := m.(map[string]any)
		if !ok {
			continue
		}
		raw, ok := member[types.KeyID]
		if !ok {
			continue
		}
		res.add(raw, false)
	}
	return res
}

type walker struct {
	resourceType string
	result       Result
}

// walk visits nested values before classifying the entry that holds them.
func (w *walker) walk(obj *jsontree.Object) {
	obj.Range(func(key string, value any) bool {
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				if nested, ok := item.(*jsontree.Object); ok {
					w.walk(nested)
				}
			}
		case *jsontree.Object:
			w.walk(v)
		}
		w.classify(key, value)
		return true
	})
}

func (w *walker) classify(key string, value any) {
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if nested, ok := item.(*jsontree.Object); ok {
				w.classifyObject(key, nested)
			}
		}
	case *jsontree.Object:
		w.classifyObject(key, v)
	}
}

func (w *walker) classifyObject(key string, obj *jsontree.Object) {
	switch {
	case IsIdentityOnly(obj):
		id, _ := obj.Get(types.KeyID)
		w.result.add(id, false)
	case obj.Len() > 1 && obj.Has(types.KeyType):
		if IsDistinguishedEntry(obj) {
			id, ok := obj.Get(types.KeyID)
			if !ok {
				w.result.warnf("%s entry under %q has no %s", TypeName(obj), key, types.KeyID)
				return
			}
			w.result.add(id, false)
		}
	default:
		if uri, ok := LocationURI(key, obj, w.resourceType); ok {
			w.result.add(uri, true)
		}
	}
}

func (r *Result) add(raw any, location bool) {
	uri, ok := raw.(string)
	if !ok {
		r.warnf("reference is a %s, not a string", jsontree.TypeName(raw))
		return
	}
	if !types.IsLocal(uri) {
		r.warnf("skipping non-local reference %q", uri)
		return
	}
	r.Refs = append(r.Refs, types.Reference{URI: uri, Kind: types.KindJSON, LocationOnly: location})
}
