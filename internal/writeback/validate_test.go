package writeback

import (
	"context"
	"errors"
	"testing"

	"github.com/agentic-research/cspec/internal/diag"
	"github.com/agentic-research/cspec/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyResolved_Clean(t *testing.T) {
	err := VerifyResolved(context.Background(), "CHECKSUM=abc\nChapter: A [1]\n  Foo [1001]\n", parser.Config{})
	assert.NoError(t, err)
}

func TestVerifyResolved_Placeholders(t *testing.T) {
	err := VerifyResolved(context.Background(), "Chapter: A\n  Foo [N1, type=Task]\n  Bar [12]\n  Baz [XC4]\n", parser.Config{})
	require.ErrorIs(t, err, ErrUnresolved)

	var ue *UnresolvedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, []UnresolvedTopic{{Line: 2, Tag: "N1"}, {Line: 4, Tag: "XC4"}}, ue.Topics)
	assert.Contains(t, err.Error(), "line 2: N1")
}

func TestVerifyResolved_ParseFailure(t *testing.T) {
	err := VerifyResolved(context.Background(), "Chapter: A\n  Foo [1\n", parser.Config{})
	assert.ErrorIs(t, err, diag.ErrParse)
}
