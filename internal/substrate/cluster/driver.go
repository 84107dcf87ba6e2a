// Package cluster implements the Substrate Driver contract against a
// Kubernetes cluster: a Project's space is a namespace with a shared RWO
// PersistentVolumeClaim, and each Container is a Deployment+Service pinned
// to one node via pod affinity so every container can mount the same
// claim (spec.md §4.A invariant).
package cluster

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// Config configures the cluster driver.
type Config struct {
	AppDomain         string
	StorageClaimSize  string
	StorageAccessMode string
}

// Driver implements substrate.Driver against a Kubernetes cluster.
// restConfig is kept alongside the typed clientset because the exec
// subresource needs a SPDY round tripper that client-go only builds
// from the raw *rest.Config.
type Driver struct {
	client     *kubernetes.Clientset
	restConfig *rest.Config
	config     Config
}

func New(client *kubernetes.Clientset, restConfig *rest.Config, cfg Config) *Driver {
	return &Driver{client: client, restConfig: restConfig, config: cfg}
}

func (d *Driver) Substrate() string { return "cluster" }

func namespaceFor(projectID string) string { return "orch-" + projectID }

// EnsureProjectSpace idempotently creates the Project's namespace and its
// shared RWO storage claim.
func (d *Driver) EnsureProjectSpace(ctx context.Context, projectID string) (substrate.SpaceHandle, error) {
	log := logger.Substrate()
	ns := namespaceFor(projectID)

	if err := substrate.Retry(ctx, func(ctx context.Context) error {
		_, err := d.client.CoreV1().Namespaces().Get(ctx, ns, metav1.GetOptions{})
		if err == nil {
			return nil
		}
		if !apierrors.IsNotFound(err) {
			return classifyK8sErr("get namespace", err)
		}
		_, err = d.client.CoreV1().Namespaces().Create(ctx, &corev1.Namespace{
			ObjectMeta: metav1.ObjectMeta{
				Name:   ns,
				Labels: map[string]string{"app": "studio-orchestrator", "project-id": projectID},
			},
		}, metav1.CreateOptions{})
		if err != nil && !apierrors.IsAlreadyExists(err) {
			return classifyK8sErr("create namespace", err)
		}
		return nil
	}); err != nil {
		return "", err
	}

	accessMode := corev1.ReadWriteOnce
	if d.config.StorageAccessMode == "ReadWriteMany" {
		accessMode = corev1.ReadWriteMany
	}
	size := d.config.StorageClaimSize
	if size == "" {
		size = "5Gi"
	}

	if err := substrate.Retry(ctx, func(ctx context.Context) error {
		_, err := d.client.CoreV1().PersistentVolumeClaims(ns).Get(ctx, "project-space", metav1.GetOptions{})
		if err == nil {
			return nil
		}
		if !apierrors.IsNotFound(err) {
			return classifyK8sErr("get pvc", err)
		}
		_, err = d.client.CoreV1().PersistentVolumeClaims(ns).Create(ctx, &corev1.PersistentVolumeClaim{
			ObjectMeta: metav1.ObjectMeta{Name: "project-space"},
			Spec: corev1.PersistentVolumeClaimSpec{
				AccessModes: []corev1.PersistentVolumeAccessMode{accessMode},
				Resources: corev1.VolumeResourceRequirements{
					Requests: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse(size)},
				},
			},
		}, metav1.CreateOptions{})
		if err != nil && !apierrors.IsAlreadyExists(err) {
			return classifyK8sErr("create pvc", err)
		}
		return nil
	}); err != nil {
		return "", err
	}

	log.Info().Str("project_id", projectID).Str("namespace", ns).Msg("project space ensured")
	return substrate.SpaceHandle(ns), nil
}

// EnsureFileManager guarantees a dedicated deployment with the storage
// claim mounted at /app exists; all control-plane file I/O is routed
// through it via execInFileManager.
func (d *Driver) EnsureFileManager(ctx context.Context, space substrate.SpaceHandle) error {
	ns := string(space)

	_, err := d.client.AppsV1().Deployments(ns).Get(ctx, "file-manager", metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return classifyK8sErr("get file-manager deployment", err)
	}

	return substrate.Retry(ctx, func(ctx context.Context) error {
		_, err := d.client.AppsV1().Deployments(ns).Create(ctx, fileManagerDeployment(), metav1.CreateOptions{})
		if err != nil && !apierrors.IsAlreadyExists(err) {
			return classifyK8sErr("create file-manager deployment", err)
		}
		return nil
	})
}

// classifyK8sErr maps a client-go error to the orcherr taxonomy: not-found
// and forbidden are permanent (spec.md §4.A "substrate-level NotFound... is
// converted to permanent"), throttling/conflict are transient.
func classifyK8sErr(op string, err error) error {
	switch {
	case apierrors.IsNotFound(err):
		return orcherr.PermanentError(orcherr.CodeNotFound, op, err)
	case apierrors.IsForbidden(err):
		return orcherr.PermanentError(orcherr.CodeForbidden, op, err)
	case apierrors.IsTooManyRequests(err), apierrors.IsServerTimeout(err), apierrors.IsConflict(err):
		return orcherr.TransientError(orcherr.CodeAPIThrottled, op, err)
	default:
		return orcherr.TransientError(orcherr.CodeAPIThrottled, op, err)
	}
}
