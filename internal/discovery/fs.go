package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoPipelines indicates that no pipeline definitions were found during discovery.
var ErrNoPipelines = errors.New("no pipeline definitions discovered")

// DefaultPatterns are the slash-separated globs searched when no explicit paths are given.
var DefaultPatterns = []string{
	".github/workflows/*.yml",
	".github/workflows/*.yaml",
	"**/.gitlab-ci.yml",
	"**/Jenkinsfile",
	"**/*.groovy",
}

// skipDirs are never descended into by ** patterns.
var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"vendor":       {},
}

// Pipelines returns pipeline definition paths. If explicit paths are provided
// they are validated and returned in the order given; entries containing glob
// syntax are expanded. Otherwise DefaultPatterns are searched under root and
// results are sorted lexicographically.
func Pipelines(root string, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return resolveExplicit(root, explicit)
	}

	matches, err := globAll(root, DefaultPatterns)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoPipelines
	}
	return matches, nil
}

func globAll(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		found, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range found {
			if skipped(m) {
				continue
			}
			seen[filepath.FromSlash(m)] = struct{}{}
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func skipped(path string) bool {
	for _, part := range strings.Split(path, "/") {
		if _, ok := skipDirs[part]; ok {
			return true
		}
	}
	return false
}

func resolveExplicit(root string, explicit []string) ([]string, error) {
	seen := make(map[string]struct{})
	resolved := make([]string, 0, len(explicit))
	add := func(rel string) {
		if _, ok := seen[rel]; ok {
			return
		}
		seen[rel] = struct{}{}
		resolved = append(resolved, rel)
	}

	for _, input := range explicit {
		if !filepath.IsAbs(input) && hasMeta(input) {
			found, err := globAll(root, []string{filepath.ToSlash(input)})
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("pattern %q matched no files", input)
			}
			for _, f := range found {
				add(f)
			}
			continue
		}

		cleaned := input
		if !filepath.IsAbs(cleaned) {
			cleaned = filepath.Join(root, cleaned)
		}
		info, err := os.Stat(cleaned)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("pipeline %q not found", input)
			}
			return nil, fmt.Errorf("stat %q: %w", input, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("pipeline %q is a directory", input)
		}
		add(mustRelOrClean(root, cleaned))
	}
	if len(resolved) == 0 {
		return nil, ErrNoPipelines
	}
	return resolved, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

func mustRelOrClean(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Clean(path)
	}
	rel = filepath.Clean(rel)
	if rel == "." || strings.HasPrefix(rel, "..") {
		return filepath.Clean(path)
	}
	return rel
}
