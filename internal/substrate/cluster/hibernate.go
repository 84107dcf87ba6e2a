package cluster

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// Hibernate scales every container Deployment in the space to zero
// replicas. Unlike the local engine, the cluster substrate's project space
// is backed by a PersistentVolumeClaim rather than an ephemeral host
// directory, so there is nothing to archive to an object store: the claim
// keeps the files while compute is released. The returned archiveKey is
// the namespace itself, since Restore only needs to scale back up.
func (d *Driver) Hibernate(ctx context.Context, space substrate.SpaceHandle, projectID string) (string, error) {
	ns := string(space)

	if err := d.scaleContainers(ctx, ns, 0); err != nil {
		return "", err
	}

	return ns, nil
}

// Restore scales every container Deployment for the project's namespace
// back to one replica. The file-manager deployment is left untouched since
// it stays resident for file operations regardless of hibernation state.
func (d *Driver) Restore(ctx context.Context, projectID, archiveKey string) (substrate.SpaceHandle, error) {
	ns := namespaceFor(projectID)

	if err := d.scaleContainers(ctx, ns, 1); err != nil {
		return "", err
	}

	return substrate.SpaceHandle(ns), nil
}

func (d *Driver) scaleContainers(ctx context.Context, ns string, replicas int32) error {
	deployments, err := d.client.AppsV1().Deployments(ns).List(ctx, metav1.ListOptions{
		LabelSelector: "component=container",
	})
	if err != nil {
		return classifyK8sErr("list deployments", err)
	}

	for i := range deployments.Items {
		dep := deployments.Items[i]
		dep.Spec.Replicas = &replicas
		if err := substrate.Retry(ctx, func(ctx context.Context) error {
			_, err := d.client.AppsV1().Deployments(ns).Update(ctx, &dep, metav1.UpdateOptions{})
			if err != nil && !apierrors.IsNotFound(err) {
				return classifyK8sErr("scale deployment", err)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	return nil
}
