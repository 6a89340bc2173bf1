package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catface996/aiops-executor/internal/adapter"
	"github.com/catface996/aiops-executor/internal/domain"
)

// A hierarchy whose workers all resolve validates cleanly.
func TestValidateHierarchy_AllResolve(t *testing.T) {
	resolvers := adapter.RegistryFunc(func(agentRef string) (adapter.Agent, error) {
		return adapter.NewScriptedAgent(nil), nil
	})

	err := validateHierarchy(context.Background(), testHierarchy(), resolvers)
	require.NoError(t, err)
}

// A worker whose AgentRef cannot be resolved fails validation with a
// validation-kind error, naming the offending worker.
func TestValidateHierarchy_UnresolvableWorkerFails(t *testing.T) {
	resolvers := adapter.RegistryFunc(func(agentRef string) (adapter.Agent, error) {
		if agentRef == "worker-W" {
			return nil, errors.New("no such agent")
		}
		return adapter.NewScriptedAgent(nil), nil
	})

	err := validateHierarchy(context.Background(), testHierarchy(), resolvers)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// An unresolvable global supervisor fails before any team is even checked.
func TestValidateHierarchy_UnresolvableGlobalSupervisorFails(t *testing.T) {
	resolvers := adapter.RegistryFunc(func(agentRef string) (adapter.Agent, error) {
		return nil, errors.New("no such agent")
	})

	err := validateHierarchy(context.Background(), testHierarchy(), resolvers)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
