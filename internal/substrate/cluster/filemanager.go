package cluster

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const fileManagerImage = "busybox:stable"

// fileManagerDeployment is a long-lived, idle holder pod with the
// project's shared claim mounted at /app. Control-plane file operations
// run inside it via exec rather than needing their own storage mount.
func fileManagerDeployment() *appsv1.Deployment {
	replicas := int32(1)
	labels := map[string]string{"app": "studio-orchestrator", "component": "file-manager"}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "file-manager", Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:    "file-manager",
						Image:   fileManagerImage,
						Command: []string{"sleep", "infinity"},
						VolumeMounts: []corev1.VolumeMount{{
							Name: "project-space", MountPath: "/app",
						}},
					}},
					Volumes: []corev1.Volume{{
						Name: "project-space",
						VolumeSource: corev1.VolumeSource{
							PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
								ClaimName: "project-space",
							},
						},
					}},
				},
			},
		},
	}
}
