// Package detect classifies pipeline definitions by filename and content.
package detect

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bgricker/pipeviz/internal/pipeline"
)

var (
	// topLevelKeyRegex matches an unindented YAML mapping key.
	topLevelKeyRegex = regexp.MustCompile(`(?m)^([A-Za-z0-9_.\-]+)\s*:`)
	jenkinsRegex     = regexp.MustCompile(`^(pipeline|node)\s*(\(|\{)`)
)

// Detect returns the format of a pipeline definition. A non-empty hint always
// wins over the filename and content heuristics.
func Detect(filename, content, hint string) (pipeline.Format, error) {
	if strings.TrimSpace(hint) != "" {
		return pipeline.ParseFormat(hint)
	}

	var base string
	if filename != "" {
		base = filepath.Base(filename)
	}
	ext := strings.ToLower(filepath.Ext(base))
	switch {
	case ext == ".groovy", strings.HasPrefix(base, "Jenkinsfile"):
		return pipeline.FormatJenkins, nil
	case ext == ".yml", ext == ".yaml":
		if format, ok := detectYAML(base, content); ok {
			return format, nil
		}
	case ext == "":
		if looksLikeJenkins(content) {
			return pipeline.FormatJenkins, nil
		}
		if format, ok := detectYAML(base, content); ok {
			return format, nil
		}
	}
	return "", fmt.Errorf("%w: cannot classify %q", pipeline.ErrUnknownFormat, filename)
}

func detectYAML(base, content string) (pipeline.Format, bool) {
	keys := topLevelKeys(content)
	_, hasStages := keys["stages"]
	_, hasJobs := keys["jobs"]
	_, hasInclude := keys["include"]

	switch {
	case strings.Contains(strings.ToLower(base), "gitlab"):
		return pipeline.FormatGitLabCI, true
	case hasStages && (hasInclude || strings.Contains(content, "gitlab-ci")):
		return pipeline.FormatGitLabCI, true
	case hasStages && !hasJobs:
		// GitHub workflows have no top-level stages key.
		return pipeline.FormatGitLabCI, true
	case hasJobs:
		return pipeline.FormatGitHubActions, true
	}
	return "", false
}

func topLevelKeys(content string) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, m := range topLevelKeyRegex.FindAllStringSubmatch(content, -1) {
		keys[m[1]] = struct{}{}
	}
	return keys
}

func looksLikeJenkins(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#!") || strings.HasPrefix(line, "@Library") {
			continue
		}
		return jenkinsRegex.MatchString(line)
	}
	return false
}
