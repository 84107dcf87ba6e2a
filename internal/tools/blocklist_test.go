package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

func bashParams(argv ...string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"argv": argv})
	return b
}

func shellParams(input string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"session_id": "s1", "input": input})
	return b
}

func TestScreen_BlocksKnownBinary(t *testing.T) {
	v := NewCommandValidator()
	err := v.Screen(bashParams("sudo", "apt-get", "install", "x"))
	require.Error(t, err)
	oErr, ok := err.(*orcherr.Error)
	require.True(t, ok)
	assert.Equal(t, orcherr.CodeBlockedCommand, oErr.Code)
}

func TestScreen_DoesNotFalsePositiveOnSubstring(t *testing.T) {
	v := NewCommandValidator()
	err := v.Screen(bashParams("echo", "sudoku"))
	assert.NoError(t, err)
}

func TestScreen_BlocksRecursiveRootDelete(t *testing.T) {
	v := NewCommandValidator()
	err := v.Screen(bashParams("rm", "-rf", "/"))
	require.Error(t, err)
}

func TestScreen_AllowsRecursiveDeleteOfSubdir(t *testing.T) {
	v := NewCommandValidator()
	err := v.Screen(bashParams("rm", "-rf", "/app/build"))
	assert.NoError(t, err)
}

func TestScreen_BlocksCommandSubstitution(t *testing.T) {
	v := NewCommandValidator()
	err := v.Screen(shellParams("echo $(cat /etc/shadow)"))
	require.Error(t, err)
}

func TestScreen_BlocksBacktickSubstitution(t *testing.T) {
	v := NewCommandValidator()
	err := v.Screen(shellParams("echo `whoami`"))
	require.Error(t, err)
}

func TestScreen_BlocksSystemPathWrite(t *testing.T) {
	v := NewCommandValidator()
	err := v.Screen(shellParams("echo evil > /etc/passwd"))
	require.Error(t, err)
}

func TestScreen_AllowsOrdinaryCommand(t *testing.T) {
	v := NewCommandValidator()
	err := v.Screen(bashParams("npm", "run", "build"))
	assert.NoError(t, err)
}

func TestMatchesWord_TokenBoundaries(t *testing.T) {
	assert.True(t, matchesWord("run sudo now", "sudo"))
	assert.False(t, matchesWord("run sudoku now", "sudo"))
	assert.True(t, matchesWord("sudo", "sudo"))
	assert.False(t, matchesWord("unsudoed", "sudo"))
}
