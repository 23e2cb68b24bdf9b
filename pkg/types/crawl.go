package types

import (
	"net/url"
	"strings"
	"time"
)

// Kind tells the crawler how a resource is fetched and stored.
type Kind int

const (
	// KindJSON is an ordinary Redfish resource stored as index.json.
	KindJSON Kind = iota
	// KindMetadata is the $metadata document stored as index.xml.
	KindMetadata
	// KindCSDL is a schema document referenced from $metadata, stored verbatim.
	KindCSDL
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindMetadata:
		return "metadata"
	case KindCSDL:
		return "csdl"
	default:
		return "unknown"
	}
}

// Reference names a resource on the service.
type Reference struct {
	URI  string
	Kind Kind
	// LocationOnly marks a reference synthesised from a Location.Uri entry; it
	// is written to the mockup but never expanded.
	LocationOnly bool
	// Unauthenticated requests are used for the service entry points.
	Unauthenticated bool
}

// Key returns the identity used by the visited set.
func (r Reference) Key() string {
	return CanonicalKey(r.URI)
}

// CanonicalKey drops trailing slashes so /redfish/v1/ and /redfish/v1 collapse.
func CanonicalKey(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	if trimmed == "" && strings.HasPrefix(uri, "/") {
		return "/"
	}
	return trimmed
}

// IsLocal reports whether uri is a service-local absolute path: a leading
// separator, no host and no fragment.
func IsLocal(uri string) bool {
	if !strings.HasPrefix(uri, "/") || strings.HasPrefix(uri, "//") {
		return false
	}
	if strings.Contains(uri, "#") {
		return false
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return parsed.Host == "" && parsed.Scheme == ""
}

// Header is a single response header in the order the service sent it.
type Header struct {
	Name  string
	Value string
}

// Response is the outcome of one GET against the service.
type Response struct {
	URI        string
	StatusCode int
	Headers    []Header
	Body       []byte
	// JSON holds the parsed body when JSON was requested and the body parsed.
	JSON     any
	ParseErr error
	// HeaderLatency is the time until the response headers arrived; Elapsed
	// includes reading the body.
	HeaderLatency time.Duration
	Elapsed       time.Duration
	FetchedAt     time.Time
}

// Text returns the raw body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// VisitState tracks a reference through a run.
type VisitState int

const (
	StateUnvisited VisitState = iota
	StateFetching
	StateMaterialized
	StateFetchFailed
)

func (s VisitState) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateMaterialized:
		return "materialized"
	case StateFetchFailed:
		return "fetch_failed"
	default:
		return "unvisited"
	}
}
