package tools

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

// blockedBinaries refuses invocation of any of these binaries by name,
// wherever they appear in argv (spec.md §4.D command blocklist).
var blockedBinaries = []string{
	"sudo", "mount", "umount", "systemctl", "reboot", "shutdown", "halt", "eval", "exec",
}

// dangerousPatterns matches command substitution, recursive root deletion,
// and writes into system paths — screened against the joined command text
// rather than argv position, since these are dangerous in any position.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-[a-zA-Z]*r[a-zA-Z]*f?\s+/\s*$`),
	regexp.MustCompile(`rm\s+-[a-zA-Z]*f[a-zA-Z]*r?\s+/\s*$`),
	regexp.MustCompile(`\$\(`),
	regexp.MustCompile("`"),
	regexp.MustCompile(`>\s*/etc/`),
	regexp.MustCompile(`>\s*/boot/`),
	regexp.MustCompile(`chmod\s+777\s+/\s*$`),
	regexp.MustCompile(`:\(\)\s*\{`), // fork bomb
}

// CommandValidator screens bash/shell_session tool call parameters against
// the blocklist before they ever reach a Substrate Driver.
type CommandValidator struct{}

// NewCommandValidator builds a CommandValidator. It carries no state: the
// blocklist and pattern set above are fixed at compile time.
func NewCommandValidator() *CommandValidator { return &CommandValidator{} }

// Screen returns a BlockedCommand error if params (a bash call's argv or a
// shell_session call's input) matches the blocklist, or nil if the command
// may proceed to the approval/execution pipeline.
func (v *CommandValidator) Screen(params json.RawMessage) error {
	text := extractCommandText(params)
	if text == "" {
		return nil
	}

	lower := strings.ToLower(text)
	for _, bin := range blockedBinaries {
		if matchesWord(lower, bin) {
			return orcherr.UserErrorf(orcherr.CodeBlockedCommand, "command references blocked binary %q", bin)
		}
	}
	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(text) {
			return orcherr.UserErrorf(orcherr.CodeBlockedCommand, "command matches a blocked pattern: %s", pattern.String())
		}
	}
	return nil
}

// matchesWord reports whether word appears in text as a standalone token,
// not as a substring of a longer word (e.g. "sudoku" should not match
// "sudo").
func matchesWord(text, word string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], word)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(word)
		before := byte(' ')
		if start > 0 {
			before = text[start-1]
		}
		after := byte(' ')
		if end < len(text) {
			after = text[end]
		}
		if !isWordChar(before) && !isWordChar(after) {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func extractCommandText(params json.RawMessage) string {
	var bashParams struct {
		Argv []string `json:"argv"`
	}
	if err := json.Unmarshal(params, &bashParams); err == nil && len(bashParams.Argv) > 0 {
		return strings.Join(bashParams.Argv, " ")
	}

	var shellParams struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal(params, &shellParams); err == nil && shellParams.Input != "" {
		return shellParams.Input
	}
	return ""
}
