package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// TodoItem is one entry in the agent's per-project planning scratchpad.
type TodoItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *Registry) dispatchPatchFile(ctx context.Context, space substrate.SpaceHandle, containerDir string, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Path string `json:"path"`
		Diff string `json:"diff"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Path == "" {
		return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid patch_file params")
	}

	original, err := r.driver.ReadFile(ctx, space, containerDir, p.Path)
	if err != nil {
		return nil, err
	}

	patched, err := applyUnifiedDiff(string(original), p.Diff)
	if err != nil {
		return nil, orcherr.UserError(orcherr.CodeInvalidInput, "patch_file: "+err.Error())
	}

	if err := r.driver.WriteFile(ctx, space, containerDir, p.Path, []byte(patched)); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]bool{"patched": true})
}

// applyUnifiedDiff applies a single-file unified diff (one or more @@
// hunks) to original text, rejecting on any hunk whose context or removed
// lines don't match exactly — spec.md §4.D "rejects on hunk mismatch".
func applyUnifiedDiff(original, diff string) (string, error) {
	origLines := splitLines(original)
	var out []string
	origIdx := 0

	scanner := bufio.NewScanner(strings.NewReader(diff))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var hunkStart int
	inHunk := false

	flushUpTo := func(target int) error {
		if target < origIdx {
			return io.ErrUnexpectedEOF
		}
		out = append(out, origLines[origIdx:target]...)
		origIdx = target
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++"):
			continue
		case strings.HasPrefix(line, "@@"):
			start, err := parseHunkOrigStart(line)
			if err != nil {
				return "", err
			}
			if err := flushUpTo(start); err != nil {
				return "", err
			}
			hunkStart = start
			inHunk = true
		case inHunk && strings.HasPrefix(line, "-"):
			if origIdx >= len(origLines) || origLines[origIdx] != line[1:] {
				return "", errHunkMismatch(hunkStart)
			}
			origIdx++
		case inHunk && strings.HasPrefix(line, "+"):
			out = append(out, line[1:])
		case inHunk && strings.HasPrefix(line, " "):
			if origIdx >= len(origLines) || origLines[origIdx] != line[1:] {
				return "", errHunkMismatch(hunkStart)
			}
			out = append(out, origLines[origIdx])
			origIdx++
		}
	}
	out = append(out, origLines[origIdx:]...)
	return strings.Join(out, "\n"), nil
}

func errHunkMismatch(line int) error {
	return orcherr.UserErrorf(orcherr.CodeInvalidInput, "hunk context mismatch near original line %d", line)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// parseHunkOrigStart extracts the 0-based original-file start line from a
// "@@ -a,b +c,d @@" header.
func parseHunkOrigStart(header string) (int, error) {
	parts := strings.Fields(header)
	for _, part := range parts {
		if strings.HasPrefix(part, "-") {
			nums := strings.TrimPrefix(part, "-")
			nums = strings.SplitN(nums, ",", 2)[0]
			n := 0
			for _, c := range nums {
				if c < '0' || c > '9' {
					return 0, orcherr.UserError(orcherr.CodeInvalidInput, "malformed hunk header")
				}
				n = n*10 + int(c-'0')
			}
			if n > 0 {
				n--
			}
			return n, nil
		}
	}
	return 0, orcherr.UserError(orcherr.CodeInvalidInput, "malformed hunk header")
}

func (r *Registry) dispatchMultiEdit(ctx context.Context, space substrate.SpaceHandle, containerDir string, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Path  string `json:"path"`
		Edits []struct {
			Search  string `json:"search"`
			Replace string `json:"replace"`
		} `json:"edits"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Path == "" || len(p.Edits) == 0 {
		return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid multi_edit params")
	}

	original, err := r.driver.ReadFile(ctx, space, containerDir, p.Path)
	if err != nil {
		return nil, err
	}

	content := string(original)
	for i, e := range p.Edits {
		if !strings.Contains(content, e.Search) {
			return nil, orcherr.UserErrorf(orcherr.CodeInvalidInput, "multi_edit: search text not found for edit %d", i)
		}
		content = strings.Replace(content, e.Search, e.Replace, 1)
	}

	if err := r.driver.WriteFile(ctx, space, containerDir, p.Path, []byte(content)); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]bool{"edited": true})
}

func (r *Registry) dispatchShellSession(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		SessionID string `json:"session_id"`
		Input     string `json:"input"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.SessionID == "" {
		return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid shell_session params")
	}
	if r.shellWrite == nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "shell_session not wired to a terminal hub", nil)
	}
	if err := r.shellWrite(ctx, p.SessionID, []byte(p.Input)); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]bool{"sent": true})
}

func (r *Registry) dispatchFetch(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		URL     string            `json:"url"`
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.URL == "" {
		return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid fetch params")
	}

	u, err := url.Parse(p.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, orcherr.UserError(orcherr.CodeInvalidInput, "fetch: unsupported URL")
	}
	if len(r.allowlist) > 0 && !r.allowlist[u.Hostname()] {
		return nil, orcherr.UserError(orcherr.CodeForbidden, "fetch: host not in allowlist: "+u.Hostname())
	}

	method := p.Method
	if method == "" {
		method = http.MethodGet
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, method, p.URL, nil)
	if err != nil {
		return nil, orcherr.UserError(orcherr.CodeInvalidInput, "fetch: "+err.Error())
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, orcherr.TransientError(orcherr.CodeInternal, "fetch: "+err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, orcherr.TransientError(orcherr.CodeInternal, "fetch: reading response: "+err.Error(), err)
	}

	return json.Marshal(map[string]any{
		"status": resp.StatusCode,
		"body":   string(body),
	})
}

func (r *Registry) dispatchTodos(projectID string, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Op   string `json:"op"`
		Item string `json:"item"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, orcherr.UserError(orcherr.CodeInvalidInput, "invalid todos params")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch p.Op {
	case "add":
		item := TodoItem{ID: p.ID, Text: p.Item, CreatedAt: time.Now()}
		if item.ID == "" {
			item.ID = time.Now().Format("20060102T150405.000000000")
		}
		r.todos[projectID] = append(r.todos[projectID], item)
	case "complete":
		for i := range r.todos[projectID] {
			if r.todos[projectID][i].ID == p.ID {
				r.todos[projectID][i].Done = true
			}
		}
	case "clear":
		delete(r.todos, projectID)
	case "list":
		// fall through to return below
	default:
		return nil, orcherr.UserError(orcherr.CodeInvalidInput, "todos: unknown op "+p.Op)
	}

	return json.Marshal(r.todos[projectID])
}

func (r *Registry) dispatchMetadata(ctx context.Context, target Target, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Query string `json:"query"`
	}
	json.Unmarshal(params, &p)

	if r.metadata == nil {
		return nil, orcherr.PermanentError(orcherr.CodeInternal, "metadata tool not wired to the store", nil)
	}
	return r.metadata(ctx, target.ProjectID, target.ContainerID, p.Query)
}
