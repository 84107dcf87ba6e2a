package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesslate/studio-orchestrator/internal/models"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

type fakeDriver struct {
	files map[string]string
}

func newFakeDriver() *fakeDriver { return &fakeDriver{files: map[string]string{}} }

func (f *fakeDriver) Substrate() string { return "fake" }
func (f *fakeDriver) EnsureProjectSpace(ctx context.Context, projectID string) (substrate.SpaceHandle, error) {
	return "space", nil
}
func (f *fakeDriver) EnsureFileManager(ctx context.Context, space substrate.SpaceHandle) error { return nil }
func (f *fakeDriver) MaterializeTemplate(ctx context.Context, space substrate.SpaceHandle, containerDir string, source substrate.TemplateSource) error {
	return nil
}
func (f *fakeDriver) StartContainer(ctx context.Context, space substrate.SpaceHandle, spec substrate.ContainerSpec) (string, error) {
	return "http://fake", nil
}
func (f *fakeDriver) StopContainer(ctx context.Context, space substrate.SpaceHandle, containerID string) error {
	return nil
}
func (f *fakeDriver) ReadFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) ([]byte, error) {
	content, ok := f.files[containerDir+"/"+path]
	if !ok {
		return nil, orcherr.UserError(orcherr.CodeNotFound, "not found")
	}
	return []byte(content), nil
}
func (f *fakeDriver) WriteFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string, content []byte) error {
	f.files[containerDir+"/"+path] = string(content)
	return nil
}
func (f *fakeDriver) DeleteFile(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) error {
	delete(f.files, containerDir+"/"+path)
	return nil
}
func (f *fakeDriver) ListDir(ctx context.Context, space substrate.SpaceHandle, containerDir, path string) ([]string, error) {
	return nil, nil
}
func (f *fakeDriver) Glob(ctx context.Context, space substrate.SpaceHandle, containerDir, pattern string) ([]string, error) {
	return nil, nil
}
func (f *fakeDriver) Grep(ctx context.Context, space substrate.SpaceHandle, containerDir, pattern string) ([]substrate.GrepMatch, error) {
	return nil, nil
}
func (f *fakeDriver) ExecCommand(ctx context.Context, space substrate.SpaceHandle, containerID string, argv []string, timeout time.Duration) (substrate.ExecResult, error) {
	return substrate.ExecResult{Stdout: "ok"}, nil
}
func (f *fakeDriver) OpenTerminal(ctx context.Context, space substrate.SpaceHandle, containerID string) (substrate.TerminalStream, error) {
	return nil, nil
}
func (f *fakeDriver) Hibernate(ctx context.Context, space substrate.SpaceHandle, projectID string) (string, error) {
	return "", nil
}
func (f *fakeDriver) Restore(ctx context.Context, projectID, archiveKey string) (substrate.SpaceHandle, error) {
	return "", nil
}

func fixedLookup(status string) ContainerLookup {
	return func(ctx context.Context, projectID, containerID string) (string, substrate.SpaceHandle, string, error) {
		return status, "space", "frontend", nil
	}
}

func newTestRegistry(driver *fakeDriver, status string) *Registry {
	return New(Options{Driver: driver, Lookup: fixedLookup(status)})
}

func TestPlan_UnknownTool(t *testing.T) {
	r := newTestRegistry(newFakeDriver(), models.ContainerRunning)
	p := r.Plan(context.Background(), Call{Name: "nonsense"}, Target{ProjectID: "p1", ContainerID: "c1"}, EditModeAsk)
	assert.Equal(t, DecisionRefused, p.Decision)
}

func TestPlan_ReadFileNeverNeedsApproval(t *testing.T) {
	r := newTestRegistry(newFakeDriver(), models.ContainerRunning)
	p := r.Plan(context.Background(), Call{Name: ReadFile, Parameters: json.RawMessage(`{"path":"a.txt"}`)}, Target{ProjectID: "p1", ContainerID: "c1"}, EditModeAsk)
	assert.Equal(t, DecisionExecute, p.Decision)
}

func TestPlan_WriteFileNeedsApprovalUnlessAllow(t *testing.T) {
	r := newTestRegistry(newFakeDriver(), models.ContainerRunning)
	target := Target{ProjectID: "p1", ContainerID: "c1"}
	params := json.RawMessage(`{"path":"a.txt","content":"hi"}`)

	ask := r.Plan(context.Background(), Call{Name: WriteFile, Parameters: params}, target, EditModeAsk)
	assert.Equal(t, DecisionNeedsApproval, ask.Decision)

	allow := r.Plan(context.Background(), Call{Name: WriteFile, Parameters: params}, target, EditModeAllow)
	assert.Equal(t, DecisionExecute, allow.Decision)
}

func TestPlan_DeleteFileAlwaysNeedsApproval(t *testing.T) {
	r := newTestRegistry(newFakeDriver(), models.ContainerRunning)
	target := Target{ProjectID: "p1", ContainerID: "c1"}
	p := r.Plan(context.Background(), Call{Name: DeleteFile, Parameters: json.RawMessage(`{"path":"a.txt"}`)}, target, EditModeAllow)
	assert.Equal(t, DecisionNeedsApproval, p.Decision)
}

func TestPlan_BashRequiresRunningContainer(t *testing.T) {
	r := newTestRegistry(newFakeDriver(), models.ContainerStopped)
	p := r.Plan(context.Background(), Call{Name: Bash, Parameters: json.RawMessage(`{"argv":["ls"]}`)}, Target{ProjectID: "p1", ContainerID: "c1"}, EditModeAllow)
	assert.Equal(t, DecisionRefused, p.Decision)
}

func TestPlan_BashBlockedCommand(t *testing.T) {
	r := newTestRegistry(newFakeDriver(), models.ContainerRunning)
	p := r.Plan(context.Background(), Call{Name: Bash, Parameters: json.RawMessage(`{"argv":["sudo","rm","-rf","/"]}`)}, Target{ProjectID: "p1", ContainerID: "c1"}, EditModeAllow)
	require.Equal(t, DecisionRefused, p.Decision)
	oErr, ok := p.RefuseError.(*orcherr.Error)
	require.True(t, ok)
	assert.Equal(t, orcherr.CodeBlockedCommand, oErr.Code)
}

func TestExecute_WriteThenReadFile(t *testing.T) {
	driver := newFakeDriver()
	r := newTestRegistry(driver, models.ContainerRunning)
	target := Target{ProjectID: "p1", ContainerID: "c1"}

	writeRes := r.Execute(context.Background(), "user-1", Call{
		Name: WriteFile, Parameters: json.RawMessage(`{"path":"a.txt","content":"hello"}`),
	}, target)
	require.True(t, writeRes.Success)

	readRes := r.Execute(context.Background(), "user-1", Call{
		Name: ReadFile, Parameters: json.RawMessage(`{"path":"a.txt"}`),
	}, target)
	require.True(t, readRes.Success)
	var payload struct{ Content string `json:"content"` }
	require.NoError(t, json.Unmarshal(readRes.Payload, &payload))
	assert.Equal(t, "hello", payload.Content)
}

func TestExecute_MultiEdit(t *testing.T) {
	driver := newFakeDriver()
	driver.files["frontend/a.txt"] = "foo bar baz"
	r := newTestRegistry(driver, models.ContainerRunning)
	target := Target{ProjectID: "p1", ContainerID: "c1"}

	res := r.Execute(context.Background(), "user-1", Call{
		Name: MultiEdit,
		Parameters: json.RawMessage(`{"path":"a.txt","edits":[{"search":"foo","replace":"FOO"},{"search":"baz","replace":"BAZ"}]}`),
	}, target)
	require.True(t, res.Success)
	assert.Equal(t, "FOO bar BAZ", driver.files["frontend/a.txt"])
}

func TestExecute_MultiEditMissingSearchFails(t *testing.T) {
	driver := newFakeDriver()
	driver.files["frontend/a.txt"] = "foo bar"
	r := newTestRegistry(driver, models.ContainerRunning)
	target := Target{ProjectID: "p1", ContainerID: "c1"}

	res := r.Execute(context.Background(), "user-1", Call{
		Name:       MultiEdit,
		Parameters: json.RawMessage(`{"path":"a.txt","edits":[{"search":"missing","replace":"x"}]}`),
	}, target)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestExecute_Todos(t *testing.T) {
	r := newTestRegistry(newFakeDriver(), models.ContainerRunning)
	target := Target{ProjectID: "p1"}

	addRes := r.Execute(context.Background(), "user-1", Call{
		Name: Todos, Parameters: json.RawMessage(`{"op":"add","id":"t1","item":"write tests"}`),
	}, target)
	require.True(t, addRes.Success)

	listRes := r.Execute(context.Background(), "user-1", Call{
		Name: Todos, Parameters: json.RawMessage(`{"op":"list"}`),
	}, target)
	require.True(t, listRes.Success)
	var items []TodoItem
	require.NoError(t, json.Unmarshal(listRes.Payload, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "write tests", items[0].Text)
}

func TestAllow_RateLimitsPerUser(t *testing.T) {
	r := newTestRegistry(newFakeDriver(), models.ContainerRunning)
	allowed := 0
	for i := 0; i < invocationsPerMinute+5; i++ {
		if r.Allow("user-1") {
			allowed++
		}
	}
	assert.LessOrEqual(t, allowed, invocationsPerMinute)
	assert.Greater(t, allowed, 0)
}
