package localengine

import (
	"context"

	"github.com/docker/docker/api/types"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// terminal adapts a Docker exec's hijacked connection to substrate.TerminalStream.
type terminal struct {
	cli    clientExecResizer
	execID string
	resp   types.HijackedResponse
}

// clientExecResizer narrows the Docker client to the one call Resize needs.
type clientExecResizer interface {
	ContainerExecResize(ctx context.Context, execID string, options types.ResizeOptions) error
}

func (t *terminal) Write(p []byte) (int, error) { return t.resp.Conn.Write(p) }
func (t *terminal) Read(p []byte) (int, error)  { return t.resp.Reader.Read(p) }
func (t *terminal) Resize(cols, rows int) error {
	return t.cli.ContainerExecResize(context.Background(), t.execID, types.ResizeOptions{
		Width:  uint(cols),
		Height: uint(rows),
	})
}
func (t *terminal) Close() error {
	t.resp.Close()
	return nil
}

// OpenTerminal starts an interactive shell exec in the container and
// returns a duplex stream backed by Docker's hijacked exec connection.
func (d *Driver) OpenTerminal(ctx context.Context, space substrate.SpaceHandle, containerID string) (substrate.TerminalStream, error) {
	id, err := d.findContainerByLabel(ctx, containerID)
	if err != nil {
		return nil, err
	}

	execID, err := d.cli.ContainerExecCreate(ctx, id, types.ExecConfig{
		Cmd:          []string{"/bin/sh"},
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
	})
	if err != nil {
		return nil, orcherr.TransientError(orcherr.CodeAPIThrottled, "create terminal exec", err)
	}

	resp, err := d.cli.ContainerExecAttach(ctx, execID.ID, types.ExecStartCheck{Tty: true})
	if err != nil {
		return nil, orcherr.TransientError(orcherr.CodeAPIThrottled, "attach terminal exec", err)
	}

	return &terminal{cli: d.cli, execID: execID.ID, resp: resp}, nil
}
