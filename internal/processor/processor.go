package processor

import (
	"strings"

	"redfish-mockup-creator/internal/links"
	"redfish-mockup-creator/internal/sanitize"
	"redfish-mockup-creator/pkg/jsontree"
	"redfish-mockup-creator/pkg/types"
)

// LogCollectionType is the resource type truncated by MaxLogEntries.
const LogCollectionType = "LogEntryCollection"

// Processor prepares a fetched JSON resource before it is written.
type Processor interface {
	Process(body any) Processed
}

// Processed carries the two views of a resource produced by Process.
type Processed struct {
	// Saved is the body written to index.json.
	Saved any
	// LinkSource is the body references are extracted from. It reflects log
	// truncation but not copyright injection or folder renaming.
	LinkSource any
	// Dropped counts log entries removed by truncation.
	Dropped int
}

// Options configure a ResourceProcessor.
type Options struct {
	Copyright     string
	MaxLogEntries int
	Sanitizer     *sanitize.Sanitizer
}

// ResourceProcessor applies the mockup transformations in a fixed order:
// truncation, copy for link extraction, copyright, reference renaming.
type ResourceProcessor struct {
	opts Options
}

// New constructs a processor from options.
func New(opts Options) *ResourceProcessor {
	return &ResourceProcessor{opts: opts}
}

// Process transforms body in place and returns both views of it.
func (p *ResourceProcessor) Process(body any) Processed {
	dropped := TruncateLogEntries(body, p.opts.MaxLogEntries)

	mutates := p.opts.Copyright != "" || p.opts.Sanitizer.Active()
	linkSource := body
	if mutates {
		linkSource = jsontree.Clone(body)
	}
	if p.opts.Copyright != "" {
		InjectCopyright(body, p.opts.Copyright)
	}
	if p.opts.Sanitizer.Active() {
		RewriteReferences(body, p.opts.Sanitizer)
	}
	return Processed{Saved: body, LinkSource: linkSource, Dropped: dropped}
}

// TruncateLogEntries keeps the first max members of a log entry collection,
// drops its next-page link and updates the member count. It returns the
// number of members removed.
func TruncateLogEntries(body any, max int) int {
	obj, ok := body.(*jsontree.Object)
	if !ok || max <= 0 {
		return 0
	}
	if links.TypeName(obj) != LogCollectionType {
		return 0
	}
	raw, _ := obj.Get(types.KeyMembers)
	members, ok := raw.([]any)
	if !ok || len(members) <= max {
		return 0
	}
	kept := make([]any, max)
	copy(kept, members[:max])
	obj.Set(types.KeyMembers, kept)
	obj.Delete(types.KeyNextLink)
	obj.Set(types.KeyCount, jsontree.Number(max))
	return len(members) - max
}

// InjectCopyright sets the copyright annotation on a mapping body.
func InjectCopyright(body any, copyright string) bool {
	obj, ok := body.(*jsontree.Object)
	if !ok {
		return false
	}
	obj.Set(types.KeyCopyright, copyright)
	return true
}

var referenceKeys = map[string]struct{}{
	types.KeyID:       {},
	types.KeyURI:      {},
	types.KeyNextLink: {},
}

// RewriteReferences renames every service-local reference value so it names
// the sanitized folder it was written to.
func RewriteReferences(body any, s *sanitize.Sanitizer) {
	switch v := body.(type) {
	case *jsontree.Object:
		for _, key := range v.Keys() {
			val, _ := v.Get(key)
			if str, ok := val.(string); ok {
				if _, isRef := referenceKeys[key]; isRef && strings.HasPrefix(str, "/") {
					v.Set(key, renameReference(str, s))
				}
				continue
			}
			RewriteReferences(val, s)
		}
	case []any:
		for _, item := range v {
			RewriteReferences(item, s)
		}
	}
}

func renameReference(uri string, s *sanitize.Sanitizer) string {
	path, fragment, hasFragment := strings.Cut(uri, "#")
	path = s.Reference(path)
	if hasFragment {
		return path + "#" + fragment
	}
	return path
}
