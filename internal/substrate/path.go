package substrate

import (
	"path/filepath"
	"strings"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// ResolvePath canonicalizes path against /app/<containerDir>/ and fails
// with CodePathEscape if the result leaves that prefix (spec.md §4.A "Path
// containment", invariant 4).
func ResolvePath(containerDir, path string) (string, error) {
	root := filepath.Join("/app", containerDir)
	joined := filepath.Join(root, path)
	canonical := filepath.Clean(joined)

	if canonical != root && !strings.HasPrefix(canonical, root+string(filepath.Separator)) {
		return "", orcherr.UserError(orcherr.CodePathEscape, "path escapes container directory: "+path)
	}

	return canonical, nil
}
