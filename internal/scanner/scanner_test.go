package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/queryforge/internal/grammar"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScan_MatchesBasenameGlobAcrossSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.js", "let x = 1;")
	writeFile(t, dir, "nested/b.js", "let y = 2;")
	writeFile(t, dir, "nested/c.txt", "not code")

	files, err := Scan(dir, "*.js")
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Equal(t, grammar.JavaScript, f.Language)
	}
}

func TestScan_IgnoresFilesWithUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "readme.md", "# hi")

	files, err := Scan(dir, "*")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestScan_PathPatternWithSeparatorDoesNotFallBackToBasename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/main.go", "package main")
	writeFile(t, dir, "other/main.go", "package main")

	files, err := Scan(dir, "**/src/*.go")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Path, "src")
}
