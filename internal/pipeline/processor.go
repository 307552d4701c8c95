// Package pipeline runs a content spec through parse, validation, resolution
// and post-processing against one backend.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/cspec/api"
	"github.com/agentic-research/cspec/internal/ctxlog"
	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/graph"
	"github.com/agentic-research/cspec/internal/parser"
	"github.com/agentic-research/cspec/internal/resolve"
	"github.com/agentic-research/cspec/internal/store"
	"github.com/agentic-research/cspec/internal/validate"
	"github.com/agentic-research/cspec/internal/writeback"
)

// Options configures a Processor.
type Options struct {
	Parser     parser.Config
	Validation validate.Config
	// CacheSize bounds each of the per-run directory caches. Zero uses
	// store.DefaultCacheSize.
	CacheSize int
}

// Result is everything one run produced. Spec and Log are always set; Text and
// Checksum only after a successful Process.
type Result struct {
	Parsed   bool
	Spec     *graph.ContentSpec
	Log      *diag.Log
	Text     string
	Checksum string
}

// Processor holds no per-run state. Each call builds its own log, cache and pool.
type Processor struct {
	opts Options
	dir  api.EntityDirectory
	svc  api.PersistenceService
}

// New returns a processor reading from dir and writing through svc. svc may be
// nil for a processor that only validates.
func New(opts Options, dir api.EntityDirectory, svc api.PersistenceService) *Processor {
	return &Processor{opts: opts, dir: dir, svc: svc}
}

// NewWithBackend is New with one collaborator for both paths.
func NewWithBackend(opts Options, b api.Backend) *Processor {
	return New(opts, b, b)
}

// Validate parses text and runs both validation passes. A failed parse stops
// here unless Permissive is set, in which case validation still runs so the log
// holds every problem, but the parse failure is still returned.
func (p *Processor) Validate(ctx context.Context, text string) (*Result, error) {
	res, _, err := p.validate(ctx, text)
	return res, err
}

func (p *Processor) validate(ctx context.Context, text string) (*Result, *store.CachedDirectory, error) {
	logger := ctxlog.FromContext(ctx)
	res := &Result{Log: &diag.Log{}}

	spec, ok := parser.Parse(ctx, text, p.opts.Parser, res.Log)
	res.Spec, res.Parsed = spec, ok
	if !ok && !p.opts.Validation.Permissive {
		return res, nil, res.Log.Err(diag.KindParse)
	}
	if err := ctx.Err(); err != nil {
		return res, nil, err
	}

	var dir api.EntityDirectory
	var cache *store.CachedDirectory
	if p.dir != nil {
		c, err := store.NewCachedDirectory(p.dir, p.opts.CacheSize)
		if err != nil {
			return res, nil, fmt.Errorf("create directory cache: %w", err)
		}
		dir, cache = c, c
	}

	v := validate.New(p.opts.Validation, dir, res.Log)
	if !v.PrePass(ctx, spec) {
		return res, cache, errors.Join(res.Log.Err(diag.KindParse), res.Log.Err(diag.KindStructural))
	}
	if err := ctx.Err(); err != nil {
		return res, cache, err
	}
	if !v.PostPass(ctx, spec) {
		return res, cache, errors.Join(res.Log.Err(diag.KindParse), res.Log.Err(diag.KindReferential))
	}
	if err := ctx.Err(); err != nil {
		return res, cache, err
	}
	if !ok {
		return res, cache, res.Log.Err(diag.KindParse)
	}

	logger.Debug("Content spec validated.", "topics", len(spec.Topics()), "warnings", res.Log.Count(diag.SeverityWarning))
	return res, cache, nil
}

// Process runs the whole pipeline. On success the returned Result carries the
// checksummed text, and every new, cloned and changed topic has been written.
// Cancellation is honoured between stages but never while the pool commits.
func (p *Processor) Process(ctx context.Context, text string) (*Result, error) {
	if p.dir == nil || p.svc == nil {
		return nil, errors.New("processing needs both an entity directory and a persistence service")
	}
	logger := ctxlog.FromContext(ctx)

	res, cache, err := p.validate(ctx, text)
	if err != nil {
		return res, err
	}
	// remote state may have moved since validation
	cache.Purge()

	r := resolve.New(cache, res.Log)
	pool, err := r.Build(ctx, res.Spec, p.svc)
	if err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if err := pool.Commit(ctx); err != nil {
		res.Log.Errorf(diag.KindPersistence, 0, "%v", err)
		return res, err
	}
	if err := r.Apply(res.Spec, pool); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	out, err := writeback.Process(ctx, res.Spec)
	if err != nil {
		return res, fmt.Errorf("post-process: %w", err)
	}
	if err := writeback.VerifyResolved(ctx, out.Text, p.opts.Parser); err != nil {
		return res, fmt.Errorf("post-process: %w", err)
	}

	res.Text, res.Checksum = out.Text, out.Checksum
	logger.Debug("Content spec processed.", "staged", pool.Len(), "checksum", out.Checksum)
	return res, nil
}
