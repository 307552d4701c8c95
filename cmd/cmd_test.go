package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentic-research/cspec/internal/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedJSON = `{
  "tags": [
    {"name": "Concept", "category": "Type"},
    {"name": "a"},
    {"name": "b"}
  ],
  "topics": [{"title": "Intro", "type": "Concept"}]
}`

// run executes the root command with fresh flag values.
func run(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	configPath, dbPath, logLevel, pushOutput = "", "", "", ""
	permissive = false

	var out, errb bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errb)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err = rootCmd.ExecuteContext(context.Background())
	return out.String(), errb.String(), err
}

// workspace seeds a fresh store and returns its path and the directory holding it.
func workspace(t *testing.T) (dir, db string) {
	t.Helper()
	dir = t.TempDir()
	db = filepath.Join(dir, "cspec.db")
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(seedJSON), 0o644))

	out, _, err := run(t, "", "seed", seed, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 3 tags and 1 topics")
	return dir, db
}

func TestValidateCommand(t *testing.T) {
	dir, db := workspace(t)
	spec := filepath.Join(dir, "book.cspec")
	require.NoError(t, os.WriteFile(spec, []byte("Chapter: Intro [1]\n  Concept: Foo [N, tags=[a,b]]\n"), 0o644))

	out, _, err := run(t, "", "validate", spec, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "valid (2 topics, 0 warnings)")

	require.NoError(t, os.WriteFile(spec, []byte("Chapter: Intro [1]\n  Concept: Foo [N, tags=[a,zzz]]\n"), 0o644))
	_, stderr, err := run(t, "", "validate", spec, "--db", db)
	require.ErrorIs(t, err, diag.ErrReferential)
	assert.Contains(t, stderr, spec+`: ERROR line 2: tag "zzz" does not exist`)
}

func TestPushCommand_InPlace(t *testing.T) {
	dir, db := workspace(t)
	spec := filepath.Join(dir, "book.cspec")
	require.NoError(t, os.WriteFile(spec, []byte("Chapter: Intro [1]\n  Concept: Foo [N, tags=[a,b]]\n"), 0o644))

	out, _, err := run(t, "", "push", spec, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "pushed, checksum ")

	got, err := os.ReadFile(spec)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(got), "CHECKSUM="))
	assert.True(t, strings.HasSuffix(string(got), "Chapter: Intro [1]\n  Concept: Foo [2]\n"))

	// the resolved file validates and pushes again without creating anything
	_, _, err = run(t, "", "push", spec, "--db", db)
	require.NoError(t, err)
	again, err := os.ReadFile(spec)
	require.NoError(t, err)
	assert.Equal(t, string(got), string(again))
}

func TestPushCommand_StdinToStdout(t *testing.T) {
	_, db := workspace(t)

	out, _, err := run(t, "Chapter: Intro [1]\n  Concept: Foo [N]\n", "push", "-", "-o", "-", "--db", db)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "CHECKSUM="))
	assert.True(t, strings.HasSuffix(out, "  Concept: Foo [2]\n"))
}

func TestPushCommand_FailureWritesNothing(t *testing.T) {
	dir, db := workspace(t)
	spec := filepath.Join(dir, "book.cspec")
	text := "Chapter: Intro [1]\n  Foo [N]\n"
	require.NoError(t, os.WriteFile(spec, []byte(text), 0o644))

	_, stderr, err := run(t, "", "push", spec, "--db", db)
	require.ErrorIs(t, err, diag.ErrStructural)
	assert.Contains(t, stderr, "line 2")

	got, err := os.ReadFile(spec)
	require.NoError(t, err)
	assert.Equal(t, text, string(got))
}
