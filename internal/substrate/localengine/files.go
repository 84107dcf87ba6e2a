package localengine

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// File operations run directly against the bind-mounted space directory,
// since the local engine has no separate file-manager process (see
// EnsureFileManager). Every path is resolved through substrate.ResolvePath
// before touching disk.

func (d *Driver) resolve(space substrate.SpaceHandle, containerDir, path string) (string, error) {
	canonical, err := substrate.ResolvePath(containerDir, path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(filepath.Join("/app", containerDir), canonical)
	if err != nil {
		return "", orcherr.PermanentError(orcherr.CodeInternal, "resolve relative path", err)
	}
	return filepath.Join(d.spaceDir(space), containerDir, rel), nil
}

func (d *Driver) ReadFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) ([]byte, error) {
	full, err := d.resolve(space, containerDir, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, orcherr.UserError(orcherr.CodeNotFound, "file not found: "+path)
	}
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "read file", err)
	}
	return data, nil
}

func (d *Driver) WriteFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string, content []byte) error {
	full, err := d.resolve(space, containerDir, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "create parent directories", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "write file", err)
	}
	return nil
}

func (d *Driver) DeleteFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) error {
	full, err := d.resolve(space, containerDir, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return orcherr.UserError(orcherr.CodeNotFound, "file not found: "+path)
		}
		return orcherr.PermanentError(orcherr.CodeInternal, "delete file", err)
	}
	return nil
}

func (d *Driver) ListDir(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) ([]string, error) {
	full, err := d.resolve(space, containerDir, path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "list directory", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (d *Driver) Glob(ctx context.Context, space substrate.SpaceHandle, containerDir, pattern string) ([]string, error) {
	root := filepath.Join(d.spaceDir(space), containerDir)
	full := filepath.Join(root, pattern)
	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid glob pattern: "+pattern)
	}
	results := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(root, m)
		if err != nil {
			continue
		}
		results = append(results, rel)
	}
	return results, nil
}

func (d *Driver) Grep(ctx context.Context, space substrate.SpaceHandle, containerDir, pattern string) ([]substrate.GrepMatch, error) {
	root := filepath.Join(d.spaceDir(space), containerDir)
	var matches []substrate.GrepMatch

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			if part == "node_modules" || part == ".git" {
				return nil
			}
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			if strings.Contains(scanner.Text(), pattern) {
				matches = append(matches, substrate.GrepMatch{Path: rel, Line: line, Text: scanner.Text()})
			}
		}
		return nil
	})
	if err != nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "grep", err)
	}

	return matches, nil
}
