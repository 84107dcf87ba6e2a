package cache

import "fmt"

// Key prefixes for the orchestration core's Redis-backed caches.
const (
	PrefixEnvironment = "environment" // ProjectEnvironment ensure-dedup lock
	PrefixActivity    = "activity"    // last-activity timestamp per project/container
	PrefixAgentConn   = "agentconn"   // substrate-agent connection heartbeat cache
)

// EnvironmentLockKey is the distributed SetNX lock key used to serialize
// concurrent ensure(project_id) calls (spec.md §4.B, §5).
func EnvironmentLockKey(projectID string) string {
	return fmt.Sprintf("%s:lock:%s", PrefixEnvironment, projectID)
}

// ProjectActivityKey is the key for a project's last-activity timestamp.
// The idle reaper does not read it; it uses the metadata store's
// last_activity_at column.
func ProjectActivityKey(projectID string) string {
	return fmt.Sprintf("%s:project:%s", PrefixActivity, projectID)
}

// ContainerActivityKey is the key for a single container's last-activity
// timestamp. No caller in this repository reads or writes it.
func ContainerActivityKey(containerID string) string {
	return fmt.Sprintf("%s:container:%s", PrefixActivity, containerID)
}

// AgentHeartbeatKey tracks the last heartbeat timestamp for a connected
// substrate agent (local-engine daemon or per-node cluster agent).
func AgentHeartbeatKey(agentID string) string {
	return fmt.Sprintf("%s:%s", PrefixAgentConn, agentID)
}
