package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Task is a background operation descriptor: project setup, a container
// start, a hibernate/restore cycle, or a delete. Status transitions are
// strictly monotone: queued -> running -> (completed | failed | cancelled).
type Task struct {
	ID             string     `json:"id" db:"id"`
	Kind           string     `json:"kind" db:"kind"`
	OwnerID        string     `json:"ownerId" db:"owner_id"`
	ProjectID      string     `json:"projectId,omitempty" db:"project_id"`
	TargetResource string     `json:"targetResource,omitempty" db:"target_resource"`
	Status         string     `json:"status" db:"status"`
	Result         TaskResult `json:"result,omitempty" db:"result"`
	ErrorKind      string     `json:"errorKind,omitempty" db:"error_kind"`
	ErrorMessage   string     `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	StartedAt      *time.Time `json:"startedAt,omitempty" db:"started_at"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
}

// Task kinds.
const (
	TaskProjectSetup   = "project_setup"
	TaskContainerStart = "container_start"
	TaskHibernate      = "hibernate"
	TaskRestore        = "restore"
	TaskDelete         = "delete"
)

// Task status values. Transitions only move forward through this list;
// internal/taskbus rejects any attempt to move backward.
const (
	TaskQueued    = "queued"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskCancelled = "cancelled"
)

// TaskResult is the JSONB-backed, free-form payload a Task produces on
// success.
type TaskResult json.RawMessage

func (t *TaskResult) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	*t = append((*t)[0:0], bytes...)
	return nil
}

func (t TaskResult) Value() (driver.Value, error) {
	if len(t) == 0 {
		return nil, nil
	}
	return []byte(t), nil
}

// ShellSession is an ephemeral interactive terminal attached to a running
// Container. It is never persisted: buffered output and the input pipe
// live only in the process hosting the terminal.
type ShellSession struct {
	ID             string
	ContainerID    string
	LastActivityAt time.Time
}
