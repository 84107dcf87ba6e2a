package cluster

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// File operations route through the file-manager pod via exec, since the
// control plane itself has no mount of the shared claim. Every path is
// resolved through substrate.ResolvePath before it reaches a shell command.

const fileOpTimeout = 30 * time.Second

func containerPath(containerDir, canonical string) (string, error) {
	rel, err := substrate.ResolvePath(containerDir, canonical)
	return rel, err
}

func (d *Driver) ReadFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) ([]byte, error) {
	full, err := containerPath(containerDir, path)
	if err != nil {
		return nil, err
	}
	res, err := d.execInFileManager(ctx, string(space), []string{"cat", full}, fileOpTimeout)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, orcherr.UserError(orcherr.CodeNotFound, "file not found: "+path)
	}
	return []byte(res.Stdout), nil
}

func (d *Driver) WriteFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string, content []byte) error {
	full, err := containerPath(containerDir, path)
	if err != nil {
		return err
	}
	if _, err := d.execInFileManager(ctx, string(space), []string{"mkdir", "-p", parentDir(full)}, fileOpTimeout); err != nil {
		return err
	}
	res, err := d.writeViaStdin(ctx, string(space), full, content)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return orcherr.PermanentError(orcherr.CodeInternal, "write file: "+res.Stderr, nil)
	}
	return nil
}

func (d *Driver) DeleteFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) error {
	full, err := containerPath(containerDir, path)
	if err != nil {
		return err
	}
	res, err := d.execInFileManager(ctx, string(space), []string{"rm", "-rf", full}, fileOpTimeout)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return orcherr.PermanentError(orcherr.CodeInternal, "delete file: "+res.Stderr, nil)
	}
	return nil
}

func (d *Driver) ListDir(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) ([]string, error) {
	full, err := containerPath(containerDir, path)
	if err != nil {
		return nil, err
	}
	res, err := d.execInFileManager(ctx, string(space), []string{"ls", "-1A", full}, fileOpTimeout)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list directory: "+res.Stderr, nil)
	}
	return splitNonEmptyLines(res.Stdout), nil
}

func (d *Driver) Glob(ctx context.Context, space substrate.SpaceHandle, containerDir, pattern string) ([]string, error) {
	root, err := containerPath(containerDir, ".")
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf("cd %s && for f in %s; do [ -e \"$f\" ] && echo \"$f\"; done", shellQuote(root), pattern)
	res, err := d.execInFileManager(ctx, string(space), []string{"sh", "-c", script}, fileOpTimeout)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(res.Stdout), nil
}

func (d *Driver) Grep(ctx context.Context, space substrate.SpaceHandle, containerDir, pattern string) ([]substrate.GrepMatch, error) {
	root, err := containerPath(containerDir, ".")
	if err != nil {
		return nil, err
	}
	res, err := d.execInFileManager(ctx, string(space), []string{
		"grep", "-rn", "--exclude-dir=node_modules", "--exclude-dir=.git", "--", pattern, root,
	}, fileOpTimeout)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 && res.ExitCode != 1 {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "grep: "+res.Stderr, nil)
	}

	var matches []substrate.GrepMatch
	for _, line := range splitNonEmptyLines(res.Stdout) {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		lineNum, convErr := strconv.Atoi(parts[1])
		if convErr != nil {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(parts[0], root), "/")
		matches = append(matches, substrate.GrepMatch{Path: rel, Line: lineNum, Text: parts[2]})
	}
	return matches, nil
}

// writeViaStdin pipes content into the file-manager pod over the exec
// stream's stdin, since PodExecOptions has no separate "upload" verb.
func (d *Driver) writeViaStdin(ctx context.Context, ns, full string, content []byte) (substrate.ExecResult, error) {
	pod, err := d.firstPodForDeployment(ctx, ns, "file-manager")
	if err != nil {
		return substrate.ExecResult{}, err
	}
	execCtx, cancel := context.WithTimeout(ctx, fileOpTimeout)
	defer cancel()
	return d.execInPodWithStdin(execCtx, ns, pod, []string{"sh", "-c", "cat > " + shellQuote(full)}, bytes.NewReader(content))
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
