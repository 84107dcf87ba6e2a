// Package substrate defines the Substrate Driver contract (spec.md §4.A): a
// single capability set implemented by two variants — internal/substrate/
// localengine (Docker) and internal/substrate/cluster (Kubernetes). The
// rest of the control plane talks to whichever Driver is wired for the
// configured deployment_mode and never branches on substrate type itself.
package substrate

import (
	"context"
	"time"
)

// SpaceHandle identifies a Project's isolation boundary: a named resource
// group on the local engine, or a namespace on a cluster.
type SpaceHandle string

// ContainerSpec is the runnable shape of a Container passed to StartContainer.
type ContainerSpec struct {
	ContainerID string
	DirName     string
	Image       string
	Command     []string
	Port        int
	Env         map[string]string
	Memory      string
	CPU         string
}

// ExecResult is the outcome of a one-shot command execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// TemplateSource describes where a container's initial file tree comes
// from: either a git reference or a local template directory shipped with
// the control plane.
type TemplateSource struct {
	GitURL      string
	GitRef      string
	TemplateDir string
}

// TerminalStream is a duplex byte stream backing a long-lived pseudo
// terminal session (internal/substrate/localengine and cluster each return
// a concrete implementation backed by their respective exec APIs).
type TerminalStream interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Resize(cols, rows int) error
	Close() error
}

// Driver is the capability set every substrate variant implements. All
// operations that can transiently fail (API throttling, not-yet-ready
// objects) are expected to retry internally per spec.md §4.A before
// returning; see Retry in this package.
type Driver interface {
	// EnsureProjectSpace idempotently creates a Project's isolation
	// boundary and shared storage claim.
	EnsureProjectSpace(ctx context.Context, projectID string) (SpaceHandle, error)

	// EnsureFileManager guarantees a long-lived holder process with the
	// storage claim mounted at /app exists for the space.
	EnsureFileManager(ctx context.Context, space SpaceHandle) error

	// MaterializeTemplate prepares /app/<container_dir>/ for source. The
	// local engine copies source.TemplateDir into it; the cluster driver
	// only creates the directory. Neither runs an install step.
	MaterializeTemplate(ctx context.Context, space SpaceHandle, containerDir string, source TemplateSource) error

	// StartContainer creates a runtime object for spec and returns its
	// externally routable endpoint.
	StartContainer(ctx context.Context, space SpaceHandle, spec ContainerSpec) (endpoint string, err error)

	// StopContainer deletes the runtime object; files persist.
	StopContainer(ctx context.Context, space SpaceHandle, containerID string) error

	// File operations, resolved against /app/<container_dir>/. The cluster
	// driver executes them inside the file-manager; the local engine works
	// on the space's host directory directly.
	ReadFile(ctx context.Context, space SpaceHandle, containerDir, path string) (content []byte, err error)
	WriteFile(ctx context.Context, space SpaceHandle, containerDir, path string, content []byte) error
	DeleteFile(ctx context.Context, space SpaceHandle, containerDir, path string) error
	ListDir(ctx context.Context, space SpaceHandle, containerDir, path string) ([]string, error)
	Glob(ctx context.Context, space SpaceHandle, containerDir, pattern string) ([]string, error)
	Grep(ctx context.Context, space SpaceHandle, containerDir, pattern string) ([]GrepMatch, error)

	// ExecCommand runs a one-shot command in the running container.
	ExecCommand(ctx context.Context, space SpaceHandle, containerID string, argv []string, timeout time.Duration) (ExecResult, error)

	// OpenTerminal opens a long-lived pseudo-terminal session.
	OpenTerminal(ctx context.Context, space SpaceHandle, containerID string) (TerminalStream, error)

	// Hibernate releases the space's compute and returns an archive key.
	// The local engine archives the space directory as a tar.gz under its
	// archive root and removes the directory. The cluster driver archives
	// nothing: it scales container Deployments to zero, keeps the namespace
	// and storage claim, and returns the namespace as the key.
	Hibernate(ctx context.Context, space SpaceHandle, projectID string) (archiveKey string, err error)

	// Restore brings a hibernated Project's space back. The local engine
	// re-creates the space directory and expands the archive into it
	// without starting containers; the cluster driver scales the
	// namespace's container Deployments back to one replica.
	Restore(ctx context.Context, projectID, archiveKey string) (SpaceHandle, error)

	// Substrate returns the substrate identifier for logging/events
	// ("local-engine" or "cluster").
	Substrate() string
}

// GrepMatch is one line matched by a Grep call.
type GrepMatch struct {
	Path string
	Line int
	Text string
}
