// Package scanner walks a filesystem glob, for the CLI's batch-query mode,
// matching patterns with doublestar (the teacher's own glob matcher,
// chosen there for robust "**" support over filepath.Match's more limited
// syntax).
package scanner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oxhq/queryforge/internal/grammar"
)

// File is one matched file, with its inferred language.
type File struct {
	Path     string
	Language grammar.Language
}

// Scan walks root and returns every file whose path matches pattern and
// whose extension resolves to a supported language. A pattern without a
// path separator is matched against each file's basename, mirroring the
// teacher's fallback from full-path to basename matching.
func Scan(root, pattern string) ([]File, error) {
	var out []File
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !matches(path, pattern) {
			return nil
		}
		lang, ok := grammar.ForFile(path)
		if !ok {
			return nil
		}
		out = append(out, File{Path: path, Language: lang})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanner: walking %s: %w", root, err)
	}
	return out, nil
}

func matches(path, pattern string) bool {
	if ok, err := doublestar.PathMatch(pattern, path); err == nil && ok {
		return true
	}
	if containsSep(pattern) {
		return false
	}
	base := filepath.Base(path)
	ok, err := doublestar.PathMatch(pattern, base)
	return err == nil && ok
}

func containsSep(pattern string) bool {
	for _, r := range pattern {
		if r == '/' {
			return true
		}
	}
	return false
}
