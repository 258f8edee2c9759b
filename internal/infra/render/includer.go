// Package render expands {{path.md}} include directives in markdown
// documents against a fixed document root.
package render

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var includePattern = regexp.MustCompile(`\{\{([^}]+\.md)\}\}`)

// Includer recursively renders markdown files, replacing include
// directives with the rendered contents of the referenced file.
type Includer struct {
	root   string
	logger *slog.Logger
}

// NewIncluder creates an Includer rooted at dir. All include paths are
// resolved relative to dir regardless of the including file's location.
func NewIncluder(dir string, logger *slog.Logger) *Includer {
	return &Includer{root: dir, logger: logger}
}

// Render renders the file at path (relative to the root). A missing or
// unreadable top-level file renders as the empty string.
func (inc *Includer) Render(path string) string {
	out, err := inc.render(path, nil)
	if err != nil {
		inc.logger.Warn("template render failed", "path", path, "error", err)
		return ""
	}
	return out
}

// render resolves one file. chain holds the paths already being rendered
// on this branch; it is copied per recursion so concurrent renders never
// share state. A cycle renders as the empty string, a missing inner
// reference keeps its placeholder (handled by the caller).
func (inc *Includer) render(path string, chain []string) (string, error) {
	resolved := filepath.Clean(path)
	for _, seen := range chain {
		if seen == resolved {
			inc.logger.Warn("include cycle detected",
				"chain", strings.Join(append(append([]string{}, chain...), resolved), " -> "))
			return "", nil
		}
	}

	data, err := os.ReadFile(filepath.Join(inc.root, resolved))
	if err != nil {
		return "", err
	}

	next := append(append([]string{}, chain...), resolved)
	out := includePattern.ReplaceAllStringFunc(string(data), func(match string) string {
		inner := includePattern.FindStringSubmatch(match)[1]
		rendered, err := inc.render(inner, next)
		if err != nil {
			return match
		}
		return rendered
	})
	return out, nil
}
