package writeback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/graph"
	"github.com/agentic-research/cspec/internal/parser"
)

// ErrUnresolved is returned by VerifyResolved when output still contains
// placeholder identifiers.
var ErrUnresolved = errors.New("post-processed text contains unresolved topics")

// UnresolvedError lists the placeholder topics found in post-processed text.
type UnresolvedError struct {
	Topics []UnresolvedTopic
}

// UnresolvedTopic is one placeholder left in the text.
type UnresolvedTopic struct {
	Line int
	Tag  string
}

func (e *UnresolvedError) Error() string {
	parts := make([]string, 0, len(e.Topics))
	for _, t := range e.Topics {
		parts = append(parts, fmt.Sprintf("line %d: %s", t.Line, t.Tag))
	}
	return fmt.Sprintf("%s: %s", ErrUnresolved, strings.Join(parts, ", "))
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }

// VerifyResolved reparses text and checks that every topic reference is an
// existing topic. Parse failures are returned wrapped in diag.ErrParse.
func VerifyResolved(ctx context.Context, text string, cfg parser.Config) error {
	var log diag.Log
	spec, ok := parser.Parse(ctx, text, cfg, &log)
	if !ok {
		return fmt.Errorf("%w: %v", diag.ErrParse, log.Entries())
	}

	var unresolved []UnresolvedTopic
	for _, t := range spec.Topics() {
		if t.Identity.Kind != graph.IdentityExisting {
			unresolved = append(unresolved, UnresolvedTopic{Line: t.Line(), Tag: t.IdentityTag()})
		}
	}
	if len(unresolved) > 0 {
		return &UnresolvedError{Topics: unresolved}
	}
	return nil
}
