// Package models defines the core data structures of the orchestration
// core: Projects, Containers and their dependency graph, chat/agent
// trajectory records, and background Tasks (spec.md §3).
package models

import "time"

// Project is the top-level unit of ownership. Deleting a Project cascades
// its Containers, Chats, Tasks, and ProjectEnvironment.
type Project struct {
	ID             string    `json:"id" db:"id"`
	OwnerID        string    `json:"ownerId" db:"owner_id"`
	Slug           string    `json:"slug" db:"slug"`
	Name           string    `json:"name" db:"name"`
	DeploymentMode string    `json:"deploymentMode" db:"deployment_mode"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// Deployment mode values, matching substrate identifiers in internal/events.
const (
	DeploymentModeLocalEngine = "local-engine"
	DeploymentModeCluster     = "cluster"
)

// Container is one logical service within a Project, e.g. "frontend",
// "backend", "db". Its directory name is unique within the Project; at
// most one running substrate object backs it at a time.
type Container struct {
	ID              string     `json:"id" db:"id"`
	ProjectID       string     `json:"projectId" db:"project_id"`
	DirName         string     `json:"dirName" db:"dir_name"`
	Image           string     `json:"image" db:"image"`
	Command         []string   `json:"command,omitempty" db:"-"`
	Port            int        `json:"port" db:"port"`
	Hostname        string     `json:"hostname,omitempty" db:"hostname"`
	Status          string     `json:"status" db:"status"`
	StatusMessage   string     `json:"statusMessage,omitempty" db:"status_message"`
	Endpoint        string     `json:"endpoint,omitempty" db:"endpoint"`
	FilesReady      bool       `json:"filesReady" db:"files_ready"`
	ResourceMemory  string     `json:"resourceMemory,omitempty" db:"resources_memory"`
	ResourceCPU     string     `json:"resourceCpu,omitempty" db:"resources_cpu"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// Container lifecycle states (spec.md §3).
const (
	ContainerPending  = "pending"
	ContainerStopped  = "stopped"
	ContainerStarting = "starting"
	ContainerRunning  = "running"
	ContainerFailing  = "failing"
	ContainerStopping = "stopping"
)

// ContainerConnection is a directed dependency edge between two Containers
// within the same Project. Edges form a DAG; cycles are rejected at write
// time by internal/graph.
type ContainerConnection struct {
	ID              string    `json:"id" db:"id"`
	ProjectID       string    `json:"projectId" db:"project_id"`
	FromContainerID string    `json:"fromContainerId" db:"from_container_id"`
	ToContainerID   string    `json:"toContainerId" db:"to_container_id"`
	Kind            string    `json:"kind" db:"kind"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// ContainerConnection kinds.
const (
	ConnectionDependsOn = "depends_on"
	ConnectionNetwork   = "network"
)

// ProjectEnvironment mirrors the substrate-side state of a currently open
// Project. It is ephemeral: rows exist only while a Project has been opened
// at least once and not yet reaped past tombstone, and are rebuilt from
// scratch on restore rather than treated as durable history.
type ProjectEnvironment struct {
	ProjectID         string    `json:"projectId" db:"project_id"`
	SubstrateHandle   string    `json:"substrateHandle,omitempty" db:"substrate_handle"`
	StorageClaimID    string    `json:"storageClaimId,omitempty" db:"storage_claim_id"`
	FileManagerHandle string    `json:"fileManagerHandle,omitempty" db:"file_manager_handle"`
	Status            string    `json:"status" db:"status"`
	Progress          int       `json:"progress" db:"progress"`
	StatusMessage     string    `json:"statusMessage,omitempty" db:"status_message"`
	LastActivityAt    time.Time `json:"lastActivityAt" db:"last_activity_at"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
}

// ProjectEnvironment status values (spec.md §4.B state diagram).
const (
	EnvCreated     = "created"
	EnvActive      = "active"
	EnvHibernating = "hibernating"
	EnvHibernated  = "hibernated"
	EnvRestoring   = "restoring"
	EnvError       = "error"
	EnvTombstone   = "tombstone"
)
