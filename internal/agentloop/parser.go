package agentloop

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParsedCall is one tool invocation extracted from a model response. Err is
// set when the call's markup was malformed; Name/Parameters are best-effort
// in that case so the synthetic parse_error result can reference them.
type ParsedCall struct {
	Name       string
	Parameters json.RawMessage
	Err        error
}

// ParsedResponse is the parser contract's output (spec.md §4.E): an
// optional reasoning block, zero or more tool calls, a completion signal,
// and the user-visible text with tool markup stripped.
type ParsedResponse struct {
	Thought    string
	ToolCalls  []ParsedCall
	Text       string
	IsComplete bool
}

var (
	thinkingRe = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)
	toolRe     = regexp.MustCompile(`(?s)<tool\s+name="([^"]*)"\s*>(.*?)</tool>`)
	paramRe    = regexp.MustCompile(`<param\s+name="([^"]*)"\s+value="([^"]*)"\s*/>`)
	doneRe     = regexp.MustCompile(`<done\s*/>`)
)

// Parse reads a model's accumulated text response and extracts the
// reasoning block, tool calls, completion marker, and stripped
// user-visible text. It never returns an error: malformed tool calls are
// captured per-call in ParsedCall.Err so the caller can surface a
// synthetic parse_error result and let the model self-correct.
func Parse(raw string) ParsedResponse {
	var resp ParsedResponse

	if m := thinkingRe.FindStringSubmatch(raw); m != nil {
		resp.Thought = strings.TrimSpace(m[1])
	}

	resp.IsComplete = doneRe.MatchString(raw)

	stripped := raw
	for _, m := range toolRe.FindAllStringSubmatch(raw, -1) {
		full, name, body := m[0], m[1], m[2]
		stripped = strings.Replace(stripped, full, "", 1)
		resp.ToolCalls = append(resp.ToolCalls, parseCall(name, body))
	}

	stripped = thinkingRe.ReplaceAllString(stripped, "")
	stripped = doneRe.ReplaceAllString(stripped, "")
	resp.Text = strings.TrimSpace(stripped)

	return resp
}

func parseCall(name, body string) ParsedCall {
	if name == "" {
		return ParsedCall{Name: name, Err: errMalformed("tool call missing a name")}
	}

	params := make(map[string]string)
	for _, pm := range paramRe.FindAllStringSubmatch(body, -1) {
		params[pm[1]] = pm[2]
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return ParsedCall{Name: name, Err: errMalformed("tool call parameters could not be encoded")}
	}
	return ParsedCall{Name: name, Parameters: encoded}
}

type malformedErr string

func (e malformedErr) Error() string { return string(e) }

func errMalformed(msg string) error { return malformedErr(msg) }
