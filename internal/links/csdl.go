package links

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"redfish-mockup-creator/pkg/types"
)

const canonicalReferenceTag = "Reference"

// uriAttributes are tried in order; the first present wins.
var uriAttributes = []string{"Uri", "uri", "URI"}

// ErrNoRootElement is returned for documents without any element.
var ErrNoRootElement = errors.New("metadata document has no root element")

// ExtractCSDL returns the service-local schema documents referenced by the
// direct children of a CSDL document's root. Relative URIs resolve against
// baseURI. Malformed XML yields an error and no references.
func ExtractCSDL(text string, baseURI string) (Result, error) {
	base, err := url.Parse(baseURI)
	if err != nil {
		return Result{}, fmt.Errorf("parse base uri %q: %w", baseURI, err)
	}

	dec := xml.NewDecoder(strings.NewReader(text))
	var (
		res     Result
		depth   int
		sawRoot bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("parse metadata: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if sawRoot {
					return Result{}, errors.New("parse metadata: multiple root elements")
				}
				sawRoot = true
			}
			if depth == 2 {
				res.inspectReference(t, base)
			}
		case xml.EndElement:
			depth--
		}
	}
	if !sawRoot {
		return Result{}, ErrNoRootElement
	}
	return res, nil
}

func (r *Result) inspectReference(el xml.StartElement, base *url.URL) {
	tag := el.Name.Local
	if !strings.Contains(strings.ToLower(tag), strings.ToLower(canonicalReferenceTag)) {
		return
	}
	if !strings.Contains(tag, canonicalReferenceTag) {
		r.warnf("$metadata tags are case-sensitive, found: %s", tag)
	}

	var (
		raw   string
		found bool
	)
	for _, name := range uriAttributes {
		if v, ok := attr(el, name); ok {
			if name != uriAttributes[0] {
				r.warnf("Uri attribute is case-sensitive, found: %s", name)
			}
			raw, found = v, true
			break
		}
	}
	if !found {
		r.warnf("%s element has no Uri attribute", tag)
		return
	}

	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		r.warnf("invalid reference uri %q: %v", raw, err)
		return
	}
	if parsed.Host != "" {
		return
	}
	resolved := base.ResolveReference(parsed)
	uri := resolved.Path
	if resolved.RawQuery != "" {
		uri += "?" + resolved.RawQuery
	}
	if !types.IsLocal(uri) {
		r.warnf("skipping reference %q", raw)
		return
	}
	r.Refs = append(r.Refs, types.Reference{URI: uri, Kind: types.KindCSDL, Unauthenticated: true})
}

func attr(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
