package events

// NATS subject constants for the orchestration core.
// Format: orchestrator.<domain>.<action>[.<substrate>]

const (
	SubjectContainerStart  = "orchestrator.container.start"
	SubjectContainerStop   = "orchestrator.container.stop"
	SubjectContainerStatus = "orchestrator.container.status"

	SubjectEnvironmentHibernate = "orchestrator.environment.hibernate"
	SubjectEnvironmentRestore  = "orchestrator.environment.restore"
	SubjectEnvironmentStatus   = "orchestrator.environment.status"

	SubjectDriverHeartbeat = "orchestrator.driver.heartbeat"

	SubjectDLQPrefix = "orchestrator.dlq"
)

// SubjectWithSubstrate returns a substrate-scoped subject, e.g.
// SubjectWithSubstrate(SubjectContainerStart, SubstrateCluster) returns
// "orchestrator.container.start.cluster".
func SubjectWithSubstrate(subject, substrate string) string {
	return subject + "." + substrate
}

// DLQSubject returns the dead-letter subject for a given subject.
func DLQSubject(subject string) string {
	return SubjectDLQPrefix + "." + subject
}
