package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"redfish-mockup-creator/internal/config"
	"redfish-mockup-creator/internal/links"
	"redfish-mockup-creator/internal/processor"
	"redfish-mockup-creator/internal/redfish"
	"redfish-mockup-creator/internal/report"
	"redfish-mockup-creator/internal/sanitize"
	"redfish-mockup-creator/internal/stats"
	"redfish-mockup-creator/internal/storage"
	"redfish-mockup-creator/pkg/jsontree"
	"redfish-mockup-creator/pkg/types"
)

// Program identifies the tool in the README.
const Program = "redfishMockupCreate"

// Version is overridden at link time.
var Version = "1.2.0"

// Service entry points.
const (
	VersionsURI     = "/redfish"
	DefaultRootURI  = "/redfish/v1/"
	ServiceDocument = "odata"
	MetadataDoc     = "$metadata"
	sessionsSuffix  = "SessionService/Sessions"
)

// Fatal setup errors returned by Run.
var (
	ErrRootUnreachable = errors.New("cannot read root service")
	ErrReadme          = errors.New("cannot write README")
)

// Deps lets callers replace collaborators, mostly for tests.
type Deps struct {
	Transport redfish.Transport
	Tree      *storage.Tree
	Catalog   storage.Recorder
	Logger    *slog.Logger
	// Out receives the console summary table; nil disables it.
	Out io.Writer
	Now func() time.Time
}

// Engine walks a Redfish service and mirrors it into a mockup tree.
type Engine struct {
	cfg       config.Config
	transport redfish.Transport
	tree      *storage.Tree
	catalog   storage.Recorder
	logger    *slog.Logger
	out       io.Writer
	now       func() time.Time

	sanitizer *sanitize.Sanitizer
	processor processor.Processor
	extractor *links.Extractor
	footprint *Footprint
	ledger    *stats.Ledger
	counts    report.Counts

	materializer *Materializer

	closers   []func() error
	closeOnce sync.Once
}

// NewEngine builds an engine from configuration with the real HTTP client and
// the configured catalog.
func NewEngine(ctx context.Context, cfg config.Config) (*Engine, error) {
	logger, err := BuildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	client, err := redfish.NewClient(redfish.Options{
		Host:         cfg.Service.Host,
		Secure:       cfg.Service.Secure,
		User:         cfg.Service.User,
		Password:     cfg.Service.Password,
		Auth:         cfg.Service.Auth,
		VerifyTLS:    cfg.Service.VerifyTLS,
		UserAgent:    cfg.Transport.UserAgent,
		Headers:      cfg.Transport.Headers,
		Timeout:      cfg.Transport.Timeout.Duration,
		MaxRetries:   cfg.Transport.MaxRetries,
		RetryBackoff: cfg.Transport.RetryBackoff.Duration,
		MaxBodyBytes: cfg.Transport.MaxBodyBytes,
		ProxyURL:     cfg.Transport.ProxyURL,
		Pacing: redfish.PacerSettings{
			Requests: cfg.Transport.RateLimit.Requests,
			Window:   cfg.Transport.RateLimit.Window.Duration,
			Delay:    cfg.Transport.RateLimit.Delay.Duration,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("redfish client: %w", err)
	}

	deps := Deps{Transport: client, Logger: logger}
	if !cfg.Logging.Quiet {
		deps.Out = os.Stdout
	}
	var closers []func() error
	if cfg.Catalog.Enabled() {
		catalog, err := storage.OpenCatalog(ctx, cfg.Catalog)
		if err != nil {
			return nil, err
		}
		logger.Info("catalog enabled", "driver", cfg.Catalog.Driver, "run_id", catalog.RunID())
		deps.Catalog = catalog
		closers = append(closers, catalog.Close)
	}

	e, err := New(cfg, deps)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}
	e.closers = append(e.closers, closers...)
	return e, nil
}

// New builds an engine around the given collaborators. A nil Tree is
// prepared from cfg.Mockup.Dir when Run starts.
func New(cfg config.Config, deps Deps) (*Engine, error) {
	if deps.Transport == nil {
		return nil, errors.New("transport is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	sanitizer := sanitize.New(sanitize.Options{
		Force:     cfg.Mockup.ForceFolderRename,
		Forbidden: cfg.Mockup.ForbiddenChars,
	})
	return &Engine{
		cfg:       cfg,
		transport: deps.Transport,
		tree:      deps.Tree,
		catalog:   deps.Catalog,
		logger:    logger,
		out:       deps.Out,
		now:       now,
		sanitizer: sanitizer,
		processor: processor.New(processor.Options{
			Copyright:     cfg.Mockup.Copyright,
			MaxLogEntries: cfg.Mockup.MaxLogEntries,
			Sanitizer:     sanitizer,
		}),
		extractor: links.NewExtractor(cfg.Mockup.ExceptionList),
		footprint: NewFootprint(),
		ledger:    stats.NewLedger(),
	}, nil
}

// Run creates the mockup. Returned errors are fatal; per-resource problems
// are logged and the walk continues.
func (e *Engine) Run(ctx context.Context) error {
	defer e.Close()

	if e.tree == nil {
		tree, err := storage.PrepareRoot(e.cfg.Mockup.Dir)
		if err != nil {
			return err
		}
		e.tree = tree
	}
	e.materializer = NewMaterializer(e.tree, MaterializerOptions{
		Headers:        e.cfg.Mockup.Headers,
		Time:           e.cfg.Mockup.Time,
		ScrapeMetadata: e.cfg.Mockup.ScrapeMetadata,
		Processor:      e.processor,
		Sanitizer:      e.sanitizer,
		Extractor:      e.extractor,
		Logger:         e.logger,
	})

	e.logger.Info("starting mockup creation",
		"rhost", e.cfg.Service.Host,
		"dir", e.tree.Root(),
		"description", e.cfg.Mockup.Description,
	)
	if err := e.writeReadme(); err != nil {
		return err
	}

	rootURI := e.fetchVersions(ctx)
	e.visitSeed(ctx, types.Reference{URI: rootURI + ServiceDocument, Unauthenticated: true})
	e.visitSeed(ctx, types.Reference{URI: rootURI + MetadataDoc, Kind: types.KindMetadata, Unauthenticated: true})

	children, sessions, err := e.fetchRoot(ctx, rootURI)
	if err != nil {
		return err
	}
	if err := e.transport.Login(ctx, sessions); err != nil {
		return err
	}
	defer func() {
		if err := e.transport.Logout(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("logout failed", "error", err)
		}
	}()

	e.logger.Info("creating resources under root service")
	for _, ref := range children {
		e.visit(ctx, ref)
	}
	if err := ctx.Err(); err != nil {
		e.logger.Warn("context cancelled, mockup is incomplete")
		return err
	}

	if err := e.finish(); err != nil {
		return err
	}
	e.logger.Info("completed creating mockup", "resources", e.footprint.Len())
	return nil
}

// Close releases resources owned by the engine.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		for _, closer := range e.closers {
			if cerr := closer(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	})
	return err
}

// Ledger exposes the response times recorded so far.
func (e *Engine) Ledger() *stats.Ledger {
	return e.ledger
}

// Footprint exposes the visited set.
func (e *Engine) Footprint() *Footprint {
	return e.footprint
}

// Counts returns the materialization tally.
func (e *Engine) Counts() report.Counts {
	return e.counts
}

func (e *Engine) writeReadme() error {
	data := report.README(report.Header{
		Program:     Program,
		Version:     Version,
		Created:     e.now(),
		Host:        e.cfg.Service.Host,
		User:        e.cfg.Service.User,
		Description: e.cfg.Mockup.Description,
		CommandLine: e.cfg.Mockup.CommandLine,
	})
	if err := e.tree.WriteFile(report.ReadmeName, data); err != nil {
		return fmt.Errorf("%w: %w", ErrReadme, err)
	}
	return nil
}

// fetchVersions mirrors the versions document and returns the root service
// path it advertises. A service without one still gets the standard document.
func (e *Engine) fetchVersions(ctx context.Context) string {
	ref := types.Reference{URI: VersionsURI, Unauthenticated: true}
	e.footprint.Claim(ref)

	resp, err := e.transport.Get(ctx, ref.URI, redfish.GetOptions{Unauthenticated: true})
	if err == nil {
		e.ledger.Record(ref.URI, resp.Elapsed, len(resp.Body))
	}
	if err == nil && resp.OK() && resp.JSON != nil {
		root := rootFromVersions(resp.JSON)
		e.store(ctx, ref, resp)
		return root
	}
	if err == nil {
		err = fmt.Errorf("status %d", resp.StatusCode)
	}
	e.logger.Warn("cannot read versions document, using defaults", "uri", ref.URI, "error", err)
	e.footprint.MarkFailed(ref)

	doc := jsontree.NewObject()
	doc.Set("v1", DefaultRootURI)
	data, _ := jsontree.Marshal(doc)
	_, index := e.materializer.Locate(ref)
	if werr := e.tree.WriteFile(index, data); werr != nil {
		e.logger.Error("cannot write versions document", "error", werr)
	}
	return DefaultRootURI
}

func rootFromVersions(v any) string {
	obj, ok := v.(*jsontree.Object)
	if !ok {
		return DefaultRootURI
	}
	root, ok := obj.String("v1")
	if !ok || !types.IsLocal(root) {
		return DefaultRootURI
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root
}

// fetchRoot reads the root resource. Failure here ends the run.
func (e *Engine) fetchRoot(ctx context.Context, rootURI string) ([]types.Reference, string, error) {
	ref := types.Reference{URI: rootURI, Unauthenticated: true}
	e.footprint.Claim(ref)
	e.logger.Info("creating root resource", "uri", rootURI)

	resp, err := e.transport.Get(ctx, rootURI, redfish.GetOptions{Unauthenticated: true})
	if err != nil {
		e.footprint.MarkFailed(ref)
		return nil, "", fmt.Errorf("%w: GET %s: %w", ErrRootUnreachable, rootURI, err)
	}
	e.ledger.Record(ref.URI, resp.Elapsed, len(resp.Body))
	if !resp.OK() || resp.JSON == nil {
		e.footprint.MarkFailed(ref)
		return nil, "", fmt.Errorf("%w: GET %s returned %d", ErrRootUnreachable, rootURI, resp.StatusCode)
	}
	sessions := sessionsURI(resp.JSON, rootURI)
	result := e.store(ctx, ref, resp)
	return result.Links.Refs, sessions, nil
}

// sessionsURI prefers the link advertised by the root resource.
func sessionsURI(root any, rootURI string) string {
	if obj, ok := root.(*jsontree.Object); ok {
		if raw, ok := obj.Get("Links"); ok {
			if linksObj, ok := raw.(*jsontree.Object); ok {
				if raw, ok := linksObj.Get("Sessions"); ok {
					if s, ok := raw.(*jsontree.Object); ok {
						if id, ok := s.String(types.KeyID); ok && types.IsLocal(id) {
							return id
						}
					}
				}
			}
		}
	}
	return rootURI + sessionsSuffix
}

// visitSeed fetches a service entry point. Only the metadata document
// contributes further references, and those are never expanded.
func (e *Engine) visitSeed(ctx context.Context, ref types.Reference) {
	if !e.footprint.Claim(ref) {
		return
	}
	e.logger.Info("creating resource", "uri", ref.URI)
	result, ok := e.fetchAndStore(ctx, ref)
	if !ok || ref.Kind != types.KindMetadata {
		return
	}
	for _, child := range result.Links.Refs {
		if ctx.Err() != nil {
			return
		}
		if !e.footprint.Claim(child) {
			continue
		}
		e.logger.Info("creating service xml", "uri", child.URI)
		e.fetchAndStore(ctx, child)
	}
}

// visit walks ref depth first. The payload is released before recursing.
func (e *Engine) visit(ctx context.Context, ref types.Reference) {
	if ctx.Err() != nil {
		return
	}
	if !e.footprint.Claim(ref) {
		e.logger.Debug("skipping already processed resource", "uri", ref.URI)
		return
	}
	for _, child := range e.expand(ctx, ref) {
		e.visit(ctx, child)
	}
}

// expand materializes ref and returns the references to walk next.
func (e *Engine) expand(ctx context.Context, ref types.Reference) []types.Reference {
	e.logger.Info("creating resource", "uri", ref.URI)
	result, ok := e.fetchAndStore(ctx, ref)
	if !ok || result.Outcome != OutcomeWritten {
		return nil
	}
	if ref.LocationOnly {
		e.logger.Debug("skip parsing of location reference", "uri", ref.URI)
		return nil
	}
	return result.Links.Refs
}

func (e *Engine) fetchAndStore(ctx context.Context, ref types.Reference) (Materialized, bool) {
	opts := redfish.GetOptions{
		XML:             ref.Kind != types.KindJSON,
		Unauthenticated: ref.Unauthenticated,
	}
	resp, err := e.transport.Get(ctx, ref.URI, opts)
	if err != nil {
		e.footprint.MarkFailed(ref)
		e.counts.Failed++
		e.logger.Error("error reading resource, continuing", "uri", ref.URI, "error", err)
		_, index := e.materializer.Locate(ref)
		e.recordCatalog(ctx, ref, nil, Materialized{Outcome: OutcomeFailed, Path: index})
		return Materialized{}, false
	}
	e.ledger.Record(ref.URI, resp.Elapsed, len(resp.Body))
	return e.store(ctx, ref, resp), true
}

func (e *Engine) store(ctx context.Context, ref types.Reference, resp *types.Response) Materialized {
	result := e.materializer.Materialize(ctx, ref, resp)
	switch result.Outcome {
	case OutcomeWritten:
		e.counts.Written++
		e.footprint.MarkMaterialized(ref)
	case OutcomeSkipped:
		e.counts.Skipped++
		e.footprint.MarkMaterialized(ref)
		e.logger.Debug("index already present", "uri", ref.URI, "path", result.Path)
	default:
		e.counts.Failed++
		e.footprint.MarkFailed(ref)
		e.logger.Error("error storing resource, continuing", "uri", ref.URI, "status", resp.StatusCode, "error", result.Err)
	}
	if result.Dropped > 0 {
		e.logger.Info("truncated log entries", "uri", ref.URI, "dropped", result.Dropped)
	}
	for _, w := range result.Links.Warnings {
		e.logger.Warn(w, "uri", ref.URI)
	}
	e.recordCatalog(ctx, ref, resp, result)
	return result
}

func (e *Engine) recordCatalog(ctx context.Context, ref types.Reference, resp *types.Response, result Materialized) {
	if e.catalog == nil {
		return
	}
	entry := storage.CatalogEntry{
		URI:         ref.URI,
		Path:        result.Path,
		Kind:        ref.Kind.String(),
		Outcome:     result.Outcome.String(),
		RetrievedAt: e.now(),
	}
	if resp != nil {
		entry.StatusCode = resp.StatusCode
		entry.Elapsed = resp.Elapsed
		entry.Bytes = len(resp.Body)
		entry.RetrievedAt = resp.FetchedAt
	}
	if len(result.Written) > 0 {
		fp, err := storage.Fingerprint(result.Written)
		if err != nil {
			e.logger.Warn("fingerprint failed", "uri", ref.URI, "error", err)
		}
		entry.Fingerprint = fp
	}
	if err := e.catalog.Record(ctx, entry); err != nil {
		e.logger.Warn("catalog write failed", "uri", ref.URI, "error", err)
	}
}

func (e *Engine) finish() error {
	summary, ok := e.ledger.Summary()
	if e.cfg.Mockup.Time && ok {
		if err := e.tree.AppendFile(report.ReadmeName, report.SummaryLines(summary)); err != nil {
			return fmt.Errorf("append summary: %w", err)
		}
	}
	if e.out != nil {
		report.WriteTable(e.out, e.counts, summary, ok)
	}
	return nil
}

// BuildLogger creates the run logger from configuration.
func BuildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}
