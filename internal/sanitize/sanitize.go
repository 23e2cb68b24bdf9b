package sanitize

import (
	"runtime"
	"strings"
)

// DefaultForbidden lists the characters Windows refuses in file names that
// show up in Redfish URIs.
const DefaultForbidden = `:*?"<>|`

// Replacement substitutes every forbidden character.
const Replacement = "_"

// Sanitizer maps service paths onto filesystem-safe relative paths.
type Sanitizer struct {
	active    bool
	forbidden string
	replacer  *strings.Replacer
}

// Options configure a Sanitizer.
type Options struct {
	// Force enables renaming on hosts that would accept the characters.
	Force bool
	// Forbidden overrides DefaultForbidden when non-empty.
	Forbidden string
	// GOOS overrides runtime.GOOS, used by tests.
	GOOS string
}

// New builds a Sanitizer that is active on Windows hosts or when forced.
func New(opts Options) *Sanitizer {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	forbidden := opts.Forbidden
	if forbidden == "" {
		forbidden = DefaultForbidden
	}
	forbidden = strings.ReplaceAll(forbidden, Replacement, "")

	pairs := make([]string, 0, 2*len(forbidden))
	for _, r := range forbidden {
		pairs = append(pairs, string(r), Replacement)
	}
	return &Sanitizer{
		active:    opts.Force || goos == "windows",
		forbidden: forbidden,
		replacer:  strings.NewReplacer(pairs...),
	}
}

// Active reports whether characters are being rewritten.
func (s *Sanitizer) Active() bool {
	return s != nil && s.active
}

// Forbidden returns the configured character set.
func (s *Sanitizer) Forbidden() string {
	if s == nil {
		return ""
	}
	return s.forbidden
}

// Path converts a service path into a relative output path.
func (s *Sanitizer) Path(p string) string {
	return s.Reference(strings.TrimLeft(p, "/"))
}

// Reference rewrites a reference value in place of the path, keeping any
// leading separator so saved cross-references resolve to renamed folders.
func (s *Sanitizer) Reference(uri string) string {
	if !s.Active() {
		return uri
	}
	return s.replacer.Replace(uri)
}
