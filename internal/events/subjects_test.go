package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectConstants(t *testing.T) {
	subjects := map[string]string{
		"ContainerStart":      SubjectContainerStart,
		"ContainerStop":       SubjectContainerStop,
		"ContainerStatus":     SubjectContainerStatus,
		"EnvironmentHibernate": SubjectEnvironmentHibernate,
		"EnvironmentRestore":  SubjectEnvironmentRestore,
		"DriverHeartbeat":     SubjectDriverHeartbeat,
	}

	for name, subject := range subjects {
		assert.NotEmpty(t, subject, "subject %s should not be empty", name)
		assert.Contains(t, subject, "orchestrator", "subject %s should be namespaced", name)
	}
}

func TestSubjectWithSubstrate(t *testing.T) {
	tests := []struct {
		name      string
		subject   string
		substrate string
		expected  string
	}{
		{
			name:      "cluster substrate",
			subject:   SubjectContainerStart,
			substrate: SubstrateCluster,
			expected:  "orchestrator.container.start.cluster",
		},
		{
			name:      "local-engine substrate",
			subject:   SubjectEnvironmentHibernate,
			substrate: SubstrateLocalEngine,
			expected:  "orchestrator.environment.hibernate.local-engine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SubjectWithSubstrate(tt.subject, tt.substrate))
		})
	}
}

func TestDLQSubject(t *testing.T) {
	assert.Equal(t, "orchestrator.dlq.orchestrator.container.start", DLQSubject(SubjectContainerStart))
}
