// Package validate checks a parsed content spec in two ordered passes.
//
// The pre-pass is structural and never leaves the process. The post-pass is
// referential and consults an api.EntityDirectory. Both passes record every
// problem they find into the shared diagnostics log instead of stopping early.
// The validator only reads remote state; the only mutation it performs is on
// the document itself (implicit relationships, duplicate suffixes, target ids).
package validate

import (
	"context"

	"github.com/agentic-research/cspec/api"
	"github.com/agentic-research/cspec/internal/ctxlog"
	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/graph"
)

// Config controls validation policy.
type Config struct {
	// Permissive downgrades unresolved relationship targets to warnings.
	Permissive bool
	// AllowEmptyLevels accepts levels with no topics or levels below them.
	AllowEmptyLevels bool
	// AllowDuplicateLevelTitles suffixes colliding sibling levels instead of
	// rejecting them.
	AllowDuplicateLevelTitles bool
}

// Validator runs the two passes for one pipeline run.
type Validator struct {
	cfg Config
	dir api.EntityDirectory
	log *diag.Log
}

// New returns a validator. dir may be nil when only PrePass is used. Every
// lookup goes to dir; pass a store.CachedDirectory to share answers across a run.
func New(cfg Config, dir api.EntityDirectory, log *diag.Log) *Validator {
	return &Validator{cfg: cfg, dir: dir, log: log}
}

// Validate runs PrePass and, when it succeeds, PostPass.
func (v *Validator) Validate(ctx context.Context, spec *graph.ContentSpec) bool {
	if !v.PrePass(ctx, spec) {
		return false
	}
	return v.PostPass(ctx, spec)
}

// countErrors runs fn and reports how many errors it added to the log.
func (v *Validator) countErrors(fn func()) int {
	before := v.log.Count(diag.SeverityError)
	fn()
	return v.log.Count(diag.SeverityError) - before
}

// PrePass runs the structural checks. It returns true when no error was recorded.
func (v *Validator) PrePass(ctx context.Context, spec *graph.ContentSpec) bool {
	logger := ctxlog.FromContext(ctx)
	n := v.countErrors(func() {
		s := &structure{cfg: v.cfg, log: v.log, spec: spec}
		s.run()
	})
	logger.Debug("Structural validation finished.", "errors", n)
	return n == 0
}

// PostPass runs the referential checks against the entity directory.
func (v *Validator) PostPass(ctx context.Context, spec *graph.ContentSpec) bool {
	logger := ctxlog.FromContext(ctx)
	n := v.countErrors(func() {
		r := &references{cfg: v.cfg, dir: v.dir, log: v.log, spec: spec}
		r.run(ctx)
	})
	logger.Debug("Referential validation finished.", "errors", n)
	return n == 0
}
