package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
	k8sexec "k8s.io/client-go/util/exec"

	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// MaterializeTemplate creates /app/<containerDir> by exec'ing `mkdir -p`
// in the file-manager. It does not copy or clone any files from source and
// runs no install command.
func (d *Driver) MaterializeTemplate(ctx context.Context, space substrate.SpaceHandle, containerDir string, source substrate.TemplateSource) error {
	ns := string(space)
	_, err := d.execInFileManager(ctx, ns, []string{"mkdir", "-p", "/app/" + containerDir}, 30*time.Second)
	return err
}

// StartContainer creates a Deployment+Service for the container, pinned to
// the same node as the file-manager via pod affinity so the RWO claim is
// mountable by both.
func (d *Driver) StartContainer(ctx context.Context, space substrate.SpaceHandle, spec substrate.ContainerSpec) (string, error) {
	ns := string(space)
	log := logger.Substrate()

	envVars := make([]corev1.EnvVar, 0, len(spec.Env))
	for k, v := range spec.Env {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: v})
	}

	resources := corev1.ResourceRequirements{Limits: corev1.ResourceList{}, Requests: corev1.ResourceList{}}
	if spec.Memory != "" {
		q := resource.MustParse(spec.Memory)
		resources.Limits[corev1.ResourceMemory] = q
		resources.Requests[corev1.ResourceMemory] = q
	}
	if spec.CPU != "" {
		q := resource.MustParse(spec.CPU)
		resources.Limits[corev1.ResourceCPU] = q
		resources.Requests[corev1.ResourceCPU] = q
	}

	labels := map[string]string{"app": "studio-orchestrator", "component": "container", "container-id": spec.ContainerID}
	replicas := int32(1)

	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: deploymentName(spec.DirName), Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Affinity: coLocationAffinity(),
					Containers: []corev1.Container{{
						Name:       "container",
						Image:      spec.Image,
						Command:    spec.Command,
						Env:        envVars,
						WorkingDir: "/app/" + spec.DirName,
						Resources:  resources,
						Ports:      []corev1.ContainerPort{{ContainerPort: int32(spec.Port)}},
						VolumeMounts: []corev1.VolumeMount{{
							Name: "project-space", MountPath: "/app",
						}},
					}},
					Volumes: []corev1.Volume{{
						Name: "project-space",
						VolumeSource: corev1.VolumeSource{
							PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: "project-space"},
						},
					}},
				},
			},
		},
	}

	if err := substrate.Retry(ctx, func(ctx context.Context) error {
		_, err := d.client.AppsV1().Deployments(ns).Create(ctx, deployment, metav1.CreateOptions{})
		if err != nil && !apierrors.IsAlreadyExists(err) {
			return classifyK8sErr("create deployment", err)
		}
		return nil
	}); err != nil {
		return "", err
	}

	service := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: deploymentName(spec.DirName)},
		Spec: corev1.ServiceSpec{
			Selector: labels,
			Ports:    []corev1.ServicePort{{Port: int32(spec.Port), TargetPort: intstr.FromInt(spec.Port)}},
		},
	}
	if err := substrate.Retry(ctx, func(ctx context.Context) error {
		_, err := d.client.CoreV1().Services(ns).Create(ctx, service, metav1.CreateOptions{})
		if err != nil && !apierrors.IsAlreadyExists(err) {
			return classifyK8sErr("create service", err)
		}
		return nil
	}); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("http://%s.%s.svc.cluster.local:%d", deploymentName(spec.DirName), ns, spec.Port)
	log.Info().Str("container_id", spec.ContainerID).Str("endpoint", endpoint).Msg("container started")
	return endpoint, nil
}

// StopContainer deletes the Deployment and Service; the PVC and its files
// persist.
func (d *Driver) StopContainer(ctx context.Context, space substrate.SpaceHandle, containerID string) error {
	ns := string(space)
	name, err := d.deploymentNameForContainer(ctx, ns, containerID)
	if err != nil {
		return err
	}

	if err := d.client.AppsV1().Deployments(ns).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return classifyK8sErr("delete deployment", err)
	}
	if err := d.client.CoreV1().Services(ns).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return classifyK8sErr("delete service", err)
	}
	return nil
}

func (d *Driver) deploymentNameForContainer(ctx context.Context, ns, containerID string) (string, error) {
	deployments, err := d.client.AppsV1().Deployments(ns).List(ctx, metav1.ListOptions{
		LabelSelector: "container-id=" + containerID,
	})
	if err != nil {
		return "", classifyK8sErr("list deployments", err)
	}
	if len(deployments.Items) == 0 {
		return "", orcherr.PermanentError(orcherr.CodeNotFound, "container not found: "+containerID, nil)
	}
	return deployments.Items[0].Name, nil
}

func deploymentName(dirName string) string { return "c-" + dirName }

func coLocationAffinity() *corev1.Affinity {
	return &corev1.Affinity{
		PodAffinity: &corev1.PodAffinity{
			RequiredDuringSchedulingIgnoredDuringExecution: []corev1.PodAffinityTerm{{
				LabelSelector: &metav1.LabelSelector{
					MatchLabels: map[string]string{"component": "file-manager"},
				},
				TopologyKey: "kubernetes.io/hostname",
			}},
		},
	}
}

// ExecCommand runs a one-shot command inside the container's pod.
func (d *Driver) ExecCommand(ctx context.Context, space substrate.SpaceHandle, containerID string, argv []string, timeout time.Duration) (substrate.ExecResult, error) {
	ns := string(space)
	name, err := d.deploymentNameForContainer(ctx, ns, containerID)
	if err != nil {
		return substrate.ExecResult{}, err
	}

	pod, err := d.firstPodForDeployment(ctx, ns, name)
	if err != nil {
		return substrate.ExecResult{}, err
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return d.execInPod(execCtx, ns, pod, argv)
}

func (d *Driver) firstPodForDeployment(ctx context.Context, ns, deploymentName string) (string, error) {
	deployment, err := d.client.AppsV1().Deployments(ns).Get(ctx, deploymentName, metav1.GetOptions{})
	if err != nil {
		return "", classifyK8sErr("get deployment", err)
	}

	selector := metav1.FormatLabelSelector(deployment.Spec.Selector)
	pods, err := d.client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return "", classifyK8sErr("list pods", err)
	}
	for _, p := range pods.Items {
		if p.Status.Phase == corev1.PodRunning {
			return p.Name, nil
		}
	}
	return "", orcherr.TransientError(orcherr.CodePodNotReady, "no running pod for "+deploymentName, nil)
}

func (d *Driver) execInFileManager(ctx context.Context, ns string, argv []string, timeout time.Duration) (substrate.ExecResult, error) {
	pod, err := d.firstPodForDeployment(ctx, ns, "file-manager")
	if err != nil {
		return substrate.ExecResult{}, err
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.execInPod(execCtx, ns, pod, argv)
}

func (d *Driver) execInPod(ctx context.Context, ns, pod string, argv []string) (substrate.ExecResult, error) {
	return d.execInPodWithStdin(ctx, ns, pod, argv, nil)
}

func (d *Driver) execInPodWithStdin(ctx context.Context, ns, pod string, argv []string, stdin io.Reader) (substrate.ExecResult, error) {
	req := d.client.CoreV1().RESTClient().Post().
		Resource("pods").Namespace(ns).Name(pod).SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Command: argv,
			Stdin:   stdin != nil,
			Stdout:  true,
			Stderr:  true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(d.restConfig, "POST", req.URL())
	if err != nil {
		return substrate.ExecResult{}, orcherr.TransientError(orcherr.CodeAPIThrottled, "create executor", err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{Stdin: stdin, Stdout: &stdout, Stderr: &stderr})
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(k8sexec.CodeExitError); ok {
			exitCode = exitErr.Code
		} else {
			return substrate.ExecResult{}, orcherr.TransientError(orcherr.CodeAPIThrottled, "exec stream", err)
		}
	}

	return substrate.ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}
