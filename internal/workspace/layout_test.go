package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	t.Parallel()

	l := New("/data")
	assert.Equal(t, "/data/submissions/101/42", l.SubmissionDir("101", "42"))
	assert.Equal(t, "/data/final/101/42.pdf", l.DocumentPath("101", "42"))
	assert.Equal(t, "/data/locks/101.lock", l.LockPath("101"))
}

func TestLayoutKeepsRewrittenIDsDistinct(t *testing.T) {
	t.Parallel()

	l := New("/data")
	slash := l.SubmissionDir("A1", "a/b")
	space := l.SubmissionDir("A1", "a b")

	assert.NotEqual(t, slash, space)
	assert.Equal(t, "/data/submissions/A1", filepath.Dir(slash))
	assert.Regexp(t, `^a_b-[0-9a-f]{8}$`, filepath.Base(slash))
	assert.Regexp(t, `^a_b-[0-9a-f]{8}$`, filepath.Base(space))
	assert.Equal(t, slash, l.SubmissionDir("A1", "a/b"))

	doc := l.DocumentPath("..", "x")
	assert.Regexp(t, `^/data/final/_-[0-9a-f]{8}/x\.pdf$`, doc)
	assert.NotEqual(t, l.DocumentPath("", "x"), doc)
}

func TestCleanupRemovesAssignmentFiles(t *testing.T) {
	t.Parallel()

	l := New(t.TempDir())
	doc := l.DocumentPath("7", "1")
	require.NoError(t, os.MkdirAll(filepath.Dir(doc), 0o755))
	require.NoError(t, os.WriteFile(doc, []byte("pdf"), 0o644))
	require.NoError(t, os.MkdirAll(l.SubmissionDir("7", "1"), 0o755))
	other := l.DocumentPath("8", "1")
	require.NoError(t, os.MkdirAll(filepath.Dir(other), 0o755))
	require.NoError(t, os.WriteFile(other, []byte("pdf"), 0o644))

	require.NoError(t, l.Cleanup("7"))

	assert.NoFileExists(t, doc)
	assert.NoDirExists(t, l.SubmissionDir("7", "1"))
	assert.FileExists(t, other)
}
