package cluster

import (
	"context"
	"io"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// terminal adapts a Kubernetes exec SPDY stream to substrate.TerminalStream.
// Resize goes over the stream's dedicated resize channel rather than a
// separate API call, unlike the Docker driver's ContainerExecResize.
type terminal struct {
	cancel   context.CancelFunc
	stdinW   *io.PipeWriter
	stdoutR  *io.PipeReader
	resizeCh chan remotecommand.TerminalSize
	done     chan error
}

func (t *terminal) Write(p []byte) (int, error) { return t.stdinW.Write(p) }
func (t *terminal) Read(p []byte) (int, error)  { return t.stdoutR.Read(p) }

func (t *terminal) Resize(cols, rows int) error {
	select {
	case t.resizeCh <- remotecommand.TerminalSize{Width: uint16(cols), Height: uint16(rows)}:
	default:
	}
	return nil
}

func (t *terminal) Next() *remotecommand.TerminalSize {
	size, ok := <-t.resizeCh
	if !ok {
		return nil
	}
	return &size
}

func (t *terminal) Close() error {
	t.cancel()
	t.stdinW.Close()
	return <-t.done
}

// OpenTerminal starts an interactive shell exec in the container's pod and
// returns a duplex stream backed by the SPDY executor's stdin/stdout pipes.
func (d *Driver) OpenTerminal(ctx context.Context, space substrate.SpaceHandle, containerID string) (substrate.TerminalStream, error) {
	ns := string(space)
	name, err := d.deploymentNameForContainer(ctx, ns, containerID)
	if err != nil {
		return nil, err
	}
	pod, err := d.firstPodForDeployment(ctx, ns, name)
	if err != nil {
		return nil, err
	}

	req := d.client.CoreV1().RESTClient().Post().
		Resource("pods").Namespace(ns).Name(pod).SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Command: []string{"/bin/sh"},
			Stdin:   true,
			Stdout:  true,
			Stderr:  true,
			TTY:     true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(d.restConfig, "POST", req.URL())
	if err != nil {
		return nil, orcherr.TransientError(orcherr.CodeAPIThrottled, "create terminal executor", err)
	}

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	execCtx, cancel := context.WithCancel(ctx)

	t := &terminal{
		cancel:   cancel,
		stdinW:   stdinW,
		stdoutR:  stdoutR,
		resizeCh: make(chan remotecommand.TerminalSize, 1),
		done:     make(chan error, 1),
	}

	go func() {
		err := executor.StreamWithContext(execCtx, remotecommand.StreamOptions{
			Stdin:             stdinR,
			Stdout:            stdoutW,
			Tty:               true,
			TerminalSizeQueue: t,
		})
		stdoutW.CloseWithError(err)
		t.done <- err
		close(t.done)
	}()

	return t, nil
}
