package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"redfish-mockup-creator/internal/links"
	"redfish-mockup-creator/internal/processor"
	"redfish-mockup-creator/internal/sanitize"
	"redfish-mockup-creator/internal/storage"
	"redfish-mockup-creator/pkg/jsontree"
	"redfish-mockup-creator/pkg/types"
)

// Artifact names inside a resource directory.
const (
	IndexJSON   = "index.json"
	IndexXML    = "index.xml"
	HeadersFile = "headers.json"
	TimeFile    = "time.json"
	ErrorFile   = "error.json"
)

var (
	errNoResponse  = errors.New("no response")
	errNotJSON     = errors.New("body is not a JSON resource")
	errBadStatus   = errors.New("unexpected status")
	errUnparseable = errors.New("unparseable JSON body")
)

// Outcome is the result of materializing one resource.
type Outcome int

const (
	OutcomeWritten Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Materialized describes what happened to a resource on disk.
type Materialized struct {
	Outcome Outcome
	// Path is the index artifact (or the CSDL file) relative to the tree root.
	Path string
	// Links are the references found in the resource. They are empty unless
	// the resource was written.
	Links links.Result
	// Written is the exact payload stored as the index artifact.
	Written []byte
	Dropped int
	Err     error
}

// MaterializerOptions configure a Materializer.
type MaterializerOptions struct {
	Headers        bool
	Time           bool
	ScrapeMetadata bool
	Processor      processor.Processor
	Sanitizer      *sanitize.Sanitizer
	Extractor      *links.Extractor
	Logger         *slog.Logger
}

// Materializer writes fetched resources into the output tree.
type Materializer struct {
	tree *storage.Tree
	opts MaterializerOptions
}

// NewMaterializer builds a materializer over tree.
func NewMaterializer(tree *storage.Tree, opts MaterializerOptions) *Materializer {
	if opts.Processor == nil {
		opts.Processor = processor.New(processor.Options{Sanitizer: opts.Sanitizer})
	}
	if opts.Extractor == nil {
		opts.Extractor = links.NewExtractor(links.DefaultExceptions)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Materializer{tree: tree, opts: opts}
}

// Locate returns the directory and index artifact for ref.
func (m *Materializer) Locate(ref types.Reference) (dir, index string) {
	rel := m.opts.Sanitizer.Path(ref.URI)
	switch ref.Kind {
	case types.KindCSDL:
		// CSDL URIs already name a file.
		return path.Dir(rel), path.Clean(rel)
	case types.KindMetadata:
		return path.Clean(rel), path.Join(rel, IndexXML)
	default:
		return path.Clean(rel), path.Join(rel, IndexJSON)
	}
}

// Materialize stores resp for ref and returns the references to follow.
func (m *Materializer) Materialize(ctx context.Context, ref types.Reference, resp *types.Response) Materialized {
	dir, index := m.Locate(ref)
	out := Materialized{Outcome: OutcomeFailed, Path: index}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	if err := m.tree.MakeDir(dir); err != nil {
		out.Err = err
		return out
	}
	exists, err := m.tree.Exists(index)
	if err != nil {
		out.Err = err
		return out
	}
	if exists {
		out.Outcome = OutcomeSkipped
		return out
	}

	if resp == nil {
		out.Err = errNoResponse
		return out
	}
	if !resp.OK() {
		out.Err = fmt.Errorf("%w %d", errBadStatus, resp.StatusCode)
		m.salvage(dir, resp)
		return out
	}

	var body []byte
	switch ref.Kind {
	case types.KindJSON:
		if resp.ParseErr != nil {
			out.Err = fmt.Errorf("%w: %w", errUnparseable, resp.ParseErr)
			m.salvage(dir, resp)
			return out
		}
		if resp.JSON == nil {
			out.Err = errNotJSON
			m.salvage(dir, resp)
			return out
		}
		processed := m.opts.Processor.Process(resp.JSON)
		out.Dropped = processed.Dropped
		if !ref.LocationOnly {
			out.Links = m.opts.Extractor.Extract(processed.LinkSource)
		}
		body, err = jsontree.Marshal(processed.Saved)
		if err != nil {
			out.Err = fmt.Errorf("encode resource: %w", err)
			m.salvage(dir, resp)
			return out
		}
	case types.KindMetadata:
		body = resp.Body
		if m.opts.ScrapeMetadata {
			result, err := links.ExtractCSDL(resp.Text(), ref.URI)
			if err != nil {
				m.opts.Logger.Error("cannot parse metadata, references not scraped", "uri", ref.URI, "error", err)
			}
			out.Links = result
		}
	default:
		body = resp.Body
	}

	// Headers and timings belong to resource folders; CSDL files share
	// their folder with siblings.
	if ref.Kind != types.KindCSDL {
		if err := m.writeSidecars(dir, resp); err != nil {
			out.Err = err
			out.Links = links.Result{}
			m.salvage(dir, resp)
			return out
		}
	}
	if err := m.tree.WriteFile(index, body); err != nil {
		out.Err = err
		out.Links = links.Result{}
		m.salvage(dir, resp)
		return out
	}
	out.Outcome = OutcomeWritten
	out.Written = body
	return out
}

func (m *Materializer) writeSidecars(dir string, resp *types.Response) error {
	if m.opts.Headers {
		data, err := jsontree.Marshal(headersDocument(resp))
		if err != nil {
			return fmt.Errorf("encode headers: %w", err)
		}
		if err := m.tree.WriteFile(path.Join(dir, HeadersFile), data); err != nil {
			return err
		}
	}
	if m.opts.Time {
		doc := jsontree.NewObject()
		doc.Set("GET_Time", fmt.Sprintf("%.2f", resp.Elapsed.Seconds()))
		if m.opts.Headers {
			doc.Set("HEAD_Time", fmt.Sprintf("%.2f", resp.HeaderLatency.Seconds()))
		}
		data, err := jsontree.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode timings: %w", err)
		}
		if err := m.tree.WriteFile(path.Join(dir, TimeFile), data); err != nil {
			return err
		}
	}
	return nil
}

func headersDocument(resp *types.Response) *jsontree.Object {
	doc := jsontree.NewObject()
	doc.Set("GET", headerObject(resp.Headers))
	return doc
}

// headerObject keeps header order; repeated names are folded into one value.
func headerObject(headers []types.Header) *jsontree.Object {
	obj := jsontree.NewObject()
	for _, h := range headers {
		if prev, ok := obj.String(h.Name); ok {
			obj.Set(h.Name, prev+", "+h.Value)
			continue
		}
		obj.Set(h.Name, h.Value)
	}
	return obj
}

// salvage keeps whatever the service answered next to the failed resource.
func (m *Materializer) salvage(dir string, resp *types.Response) {
	doc := jsontree.NewObject()
	doc.Set("StatusCode", jsontree.Number(resp.StatusCode))
	doc.Set("Headers", headerObject(resp.Headers))
	doc.Set("Body", resp.Text())
	data, err := jsontree.Marshal(doc)
	if err == nil {
		err = m.tree.WriteFile(path.Join(dir, ErrorFile), data)
	}
	if err != nil {
		m.opts.Logger.Warn("cannot save error response", "dir", dir, "error", err)
	}
}
