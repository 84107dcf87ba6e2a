// Package localengine implements the Substrate Driver contract against a
// local Docker engine. A Project's space is a Docker network plus a host
// directory bind-mounted into every container, giving RWX semantics without
// a cluster-grade storage claim. There is no file-manager sidecar: file
// operations work on the host directory directly.
package localengine

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// Config configures the local-engine driver.
type Config struct {
	NetworkName string
	// SpaceRoot is the host directory under which each Project gets a
	// subdirectory bind-mounted to /app in every container.
	SpaceRoot string
	// ArchiveRoot stands in for the object store: hibernate/restore write
	// and read gzipped tarballs here instead of an S3-compatible backend.
	ArchiveRoot string
}

// Driver implements substrate.Driver against a local Docker engine.
type Driver struct {
	cli    *client.Client
	config Config
}

// excludeDirs mirrors spec.md §4.A's hibernate exclusion globs.
var excludeDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"__pycache__":  true,
}

func New(cli *client.Client, cfg Config) *Driver {
	return &Driver{cli: cli, config: cfg}
}

func (d *Driver) Substrate() string { return "local-engine" }

func (d *Driver) spaceDir(space substrate.SpaceHandle) string {
	return filepath.Join(d.config.SpaceRoot, string(space))
}

// EnsureProjectSpace creates the shared Docker network (if absent) and the
// host directory backing the Project's storage claim.
func (d *Driver) EnsureProjectSpace(ctx context.Context, projectID string) (substrate.SpaceHandle, error) {
	log := logger.Substrate()
	space := substrate.SpaceHandle(projectID)

	if err := substrate.Retry(ctx, func(ctx context.Context) error {
		networks, err := d.cli.NetworkList(ctx, types.NetworkListOptions{})
		if err != nil {
			return orcherr.TransientError(orcherr.CodeAPIThrottled, "list networks", err)
		}
		for _, n := range networks {
			if n.Name == d.config.NetworkName {
				return nil
			}
		}
		_, err = d.cli.NetworkCreate(ctx, d.config.NetworkName, types.NetworkCreate{
			Driver: "bridge",
			Labels: map[string]string{"app": "studio-orchestrator", "component": "project-network"},
		})
		if err != nil {
			return orcherr.TransientError(orcherr.CodeAPIThrottled, "create network", err)
		}
		return nil
	}); err != nil {
		return "", err
	}

	dir := d.spaceDir(space)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", orcherr.PermanentError(orcherr.CodeInternal, "create space directory", err)
	}

	log.Info().Str("project_id", projectID).Str("dir", dir).Msg("project space ensured")
	return space, nil
}

// EnsureFileManager is a no-op on the local engine: file operations run
// directly against the bind-mounted host directory, so there is no
// separate holder process to provision.
func (d *Driver) EnsureFileManager(ctx context.Context, space substrate.SpaceHandle) error {
	return nil
}

// MaterializeTemplate copies a local template directory into
// <space>/<containerDir>. Git-sourced templates are out of scope for the
// local-engine variant in this deployment (git/VCS integration is a
// non-goal); TemplateSource.TemplateDir is the only supported source here.
func (d *Driver) MaterializeTemplate(ctx context.Context, space substrate.SpaceHandle, containerDir string, source substrate.TemplateSource) error {
	if source.TemplateDir == "" {
		return orcherr.UserError(orcherr.CodeInvalidInput, "local-engine materialize requires a template directory")
	}

	dest := filepath.Join(d.spaceDir(space), containerDir)
	if err := copyDir(source.TemplateDir, dest); err != nil {
		return orcherr.PermanentError(orcherr.CodeInternal, "materialize template", err)
	}

	return nil
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}

// StartContainer pulls the image if absent, creates a container bind-mounted
// to the Project's space directory, attaches it to the project network,
// and starts it.
func (d *Driver) StartContainer(ctx context.Context, space substrate.SpaceHandle, spec substrate.ContainerSpec) (string, error) {
	log := logger.Substrate()

	if err := d.pullImageIfAbsent(ctx, spec.Image); err != nil {
		return "", err
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	natPort := nat.Port(fmt.Sprintf("%d/tcp", spec.Port))
	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Env:          env,
		WorkingDir:   filepath.Join("/app", spec.DirName),
		ExposedPorts: nat.PortSet{natPort: struct{}{}},
		Labels: map[string]string{
			"app":          "studio-orchestrator",
			"component":    "container",
			"container-id": spec.ContainerID,
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{natPort: []nat.PortBinding{{HostIP: "0.0.0.0"}}},
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: d.spaceDir(space),
			Target: "/app",
		}},
	}
	if spec.Memory != "" {
		hostConfig.Resources.Memory = parseMemory(spec.Memory)
	}
	if spec.CPU != "" {
		hostConfig.Resources.NanoCPUs = parseCPU(spec.CPU)
	}

	networkConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{d.config.NetworkName: {}},
	}

	name := fmt.Sprintf("orch-%s-%s", space, spec.DirName)
	resp, err := d.cli.ContainerCreate(ctx, cfg, hostConfig, networkConfig, nil, name)
	if err != nil {
		return "", orcherr.TransientError(orcherr.CodeAPIThrottled, "create container", err)
	}

	if err := substrate.Retry(ctx, func(ctx context.Context) error {
		if err := d.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
			return orcherr.TransientError(orcherr.CodePodNotReady, "start container", err)
		}
		return nil
	}); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("http://%s:%d", name, spec.Port)
	log.Info().Str("container_id", spec.ContainerID).Str("endpoint", endpoint).Msg("container started")
	return endpoint, nil
}

func (d *Driver) pullImageIfAbsent(ctx context.Context, image string) error {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}

	return substrate.Retry(ctx, func(ctx context.Context) error {
		reader, err := d.cli.ImagePull(ctx, image, types.ImagePullOptions{})
		if err != nil {
			return orcherr.TransientError(orcherr.CodeImagePulling, "pull image", err)
		}
		defer reader.Close()
		if _, err := io.Copy(io.Discard, reader); err != nil {
			return orcherr.TransientError(orcherr.CodeImagePulling, "read pull response", err)
		}
		return nil
	})
}

// StopContainer stops and removes the runtime object; the bind-mounted
// files survive because they live in the space directory, not the
// container's writable layer.
func (d *Driver) StopContainer(ctx context.Context, space substrate.SpaceHandle, containerID string) error {
	id, err := d.findContainerByLabel(ctx, containerID)
	if err != nil {
		return err
	}

	timeout := 10
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return orcherr.TransientError(orcherr.CodeAPIThrottled, "stop container", err)
	}
	if err := d.cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}); err != nil {
		return orcherr.TransientError(orcherr.CodeAPIThrottled, "remove container", err)
	}
	return nil
}

func (d *Driver) findContainerByLabel(ctx context.Context, containerID string) (string, error) {
	containers, err := d.cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return "", orcherr.TransientError(orcherr.CodeAPIThrottled, "list containers", err)
	}
	for _, c := range containers {
		if c.Labels["container-id"] == containerID {
			return c.ID, nil
		}
	}
	return "", orcherr.PermanentError(orcherr.CodeNotFound, "container not found: "+containerID, nil)
}

// ExecCommand runs a one-shot command inside the named container.
func (d *Driver) ExecCommand(ctx context.Context, space substrate.SpaceHandle, containerID string, argv []string, timeout time.Duration) (substrate.ExecResult, error) {
	id, err := d.findContainerByLabel(ctx, containerID)
	if err != nil {
		return substrate.ExecResult{}, err
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execID, err := d.cli.ContainerExecCreate(execCtx, id, types.ExecConfig{
		Cmd: argv, AttachStdout: true, AttachStderr: true,
	})
	if err != nil {
		return substrate.ExecResult{}, orcherr.TransientError(orcherr.CodeAPIThrottled, "create exec", err)
	}

	resp, err := d.cli.ContainerExecAttach(execCtx, execID.ID, types.ExecStartCheck{})
	if err != nil {
		return substrate.ExecResult{}, orcherr.TransientError(orcherr.CodeAPIThrottled, "attach exec", err)
	}
	defer resp.Close()

	var stdout, stderr strings.Builder
	_, _ = io.Copy(&stdout, resp.Reader)

	inspect, err := d.cli.ContainerExecInspect(execCtx, execID.ID)
	if err != nil {
		return substrate.ExecResult{}, orcherr.TransientError(orcherr.CodeAPIThrottled, "inspect exec", err)
	}

	return substrate.ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: inspect.ExitCode}, nil
}

// Hibernate archives the space directory (excluding build caches) to
// ArchiveRoot, then removes the space directory.
func (d *Driver) Hibernate(ctx context.Context, space substrate.SpaceHandle, projectID string) (string, error) {
	archiveKey := fmt.Sprintf("projects/%s/latest.tar.gz", projectID)
	archivePath := filepath.Join(d.config.ArchiveRoot, archiveKey)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return "", orcherr.PermanentError(orcherr.CodeInternal, "create archive directory", err)
	}

	if err := tarGzDir(d.spaceDir(space), archivePath); err != nil {
		return "", orcherr.PermanentError(orcherr.CodeInternal, "archive project space", err)
	}

	if err := os.RemoveAll(d.spaceDir(space)); err != nil {
		return "", orcherr.TransientError(orcherr.CodeAPIThrottled, "remove space directory", err)
	}

	return archiveKey, nil
}

// Restore re-creates the space directory and expands the archive into it.
func (d *Driver) Restore(ctx context.Context, projectID, archiveKey string) (substrate.SpaceHandle, error) {
	space := substrate.SpaceHandle(projectID)
	dir := d.spaceDir(space)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", orcherr.PermanentError(orcherr.CodeInternal, "create space directory", err)
	}

	archivePath := filepath.Join(d.config.ArchiveRoot, archiveKey)
	if err := untarGz(archivePath, dir); err != nil {
		return "", orcherr.PermanentError(orcherr.CodeInternal, "expand archive", err)
	}

	return space, nil
}

func tarGzDir(srcDir, destFile string) error {
	f, err := os.Create(destFile)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			if excludeDirs[part] {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
}

func untarGz(srcFile, destDir string) error {
	f, err := os.Open(srcFile)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

// parseMemory converts a "2Gi"/"512Mi"-style string to bytes.
func parseMemory(memory string) int64 {
	memory = strings.TrimSpace(memory)
	switch {
	case strings.HasSuffix(memory, "Gi"):
		return parseUnit(memory, "Gi", 1024*1024*1024)
	case strings.HasSuffix(memory, "Mi"):
		return parseUnit(memory, "Mi", 1024*1024)
	case strings.HasSuffix(memory, "G"):
		return parseUnit(memory, "G", 1000*1000*1000)
	case strings.HasSuffix(memory, "M"):
		return parseUnit(memory, "M", 1000*1000)
	}
	return 0
}

// parseCPU converts a "1000m"/"2"-style string to nano-CPUs.
func parseCPU(cpu string) int64 {
	cpu = strings.TrimSpace(cpu)
	if strings.HasSuffix(cpu, "m") {
		return parseUnit(cpu, "m", 1000000)
	}
	return parseUnit(cpu, "", 1000000000)
}

func parseUnit(s, suffix string, scale float64) int64 {
	val := strings.TrimSuffix(s, suffix)
	var num float64
	if _, err := fmt.Sscanf(val, "%f", &num); err != nil {
		return 0
	}
	return int64(num * scale)
}
