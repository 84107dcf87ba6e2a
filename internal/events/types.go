// Package events defines the NATS event catalog exchanged between the
// control plane and substrate drivers (spec.md §4.A, §4.F). The control
// plane publishes intent events (start/stop/hibernate/restore); substrate
// drivers publish status events as operations progress. This decouples the
// Task & Event Bus's SSE/WS fan-out from the substrate's own transport.
package events

import "time"

// ContainerStartEvent requests a substrate driver start a Container.
type ContainerStartEvent struct {
	EventID     string       `json:"event_id"`
	Timestamp   time.Time    `json:"timestamp"`
	TaskID      string       `json:"task_id"`
	ProjectID   string       `json:"project_id"`
	ContainerID string       `json:"container_id"`
	Substrate   string       `json:"substrate"`
	Spec        ContainerRun `json:"spec"`
}

// ContainerRun is the runnable shape of a Container passed to a driver.
type ContainerRun struct {
	DirName string            `json:"dir_name"`
	Image   string            `json:"image"`
	Command []string          `json:"command,omitempty"`
	Port    int               `json:"port"`
	Env     map[string]string `json:"env,omitempty"`
	Resources ResourceSpec    `json:"resources"`
}

// ContainerStopEvent requests a substrate driver stop a Container.
type ContainerStopEvent struct {
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	TaskID      string    `json:"task_id"`
	ProjectID   string    `json:"project_id"`
	ContainerID string    `json:"container_id"`
	Substrate   string    `json:"substrate"`
}

// ContainerStatusEvent is published by a substrate driver as a container's
// lifecycle state changes.
type ContainerStatusEvent struct {
	EventID     string    `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ContainerID string    `json:"container_id"`
	Status      string    `json:"status"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Message     string    `json:"message,omitempty"`
	DriverID    string    `json:"driver_id"`
}

// EnvironmentHibernateEvent requests a driver archive and tear down a
// Project's space.
type EnvironmentHibernateEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"task_id"`
	ProjectID string    `json:"project_id"`
	Substrate string    `json:"substrate"`
}

// EnvironmentRestoreEvent requests a driver re-create a space and expand a
// previously archived Project.
type EnvironmentRestoreEvent struct {
	EventID    string    `json:"event_id"`
	Timestamp  time.Time `json:"timestamp"`
	TaskID     string    `json:"task_id"`
	ProjectID  string    `json:"project_id"`
	ArchiveKey string    `json:"archive_key"`
	Substrate  string    `json:"substrate"`
}

// EnvironmentStatusEvent is published by a driver as hibernation/restore
// progresses; Progress is 0-100.
type EnvironmentStatusEvent struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	DriverID  string    `json:"driver_id"`
}

// DriverHeartbeatEvent is published periodically by a connected substrate
// driver agent to indicate liveness (teacher: ControllerHeartbeatEvent,
// generalized to both substrate variants).
type DriverHeartbeatEvent struct {
	DriverID  string    `json:"driver_id"`
	Substrate string    `json:"substrate"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Version   string    `json:"version"`
}

// ResourceSpec defines resource requirements for a Container's runtime
// object.
type ResourceSpec struct {
	Memory string `json:"memory,omitempty"`
	CPU    string `json:"cpu,omitempty"`
}

// Substrate identifiers, matching spec.md §6 deployment_mode values.
const (
	SubstrateLocalEngine = "local-engine"
	SubstrateCluster     = "cluster"
)

// Container/environment status values shared across events, the metadata
// store, and HTTP responses.
const (
	StatusPending    = "pending"
	StatusStarting   = "starting"
	StatusRunning    = "running"
	StatusStopping   = "stopping"
	StatusStopped    = "stopped"
	StatusFailing    = "failing"
	StatusHibernated = "hibernated"
	StatusDeleted    = "deleted"
)
