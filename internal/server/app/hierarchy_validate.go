package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/catface996/aiops-executor/internal/adapter"
	"github.com/catface996/aiops-executor/internal/domain"
)

// validateHierarchy resolves every agent reference a run would need —
// the global supervisor, each team supervisor, and each worker — before the
// run is scheduled, so an unresolvable reference fails start_run immediately
// rather than surfacing mid-execution as a swallowed dispatch error. Each
// team's workers are validated concurrently via errgroup, since resolution
// can involve a registry lookup (e.g. a remote agent catalog) with no
// ordering dependency between teams.
func validateHierarchy(ctx context.Context, h domain.Hierarchy, resolvers adapter.Registry) error {
	if _, err := resolvers.Resolve(adapter.GlobalSupervisorRefPrefix + h.ID); err != nil {
		return domain.ValidationError("resolve global supervisor for hierarchy %s: %v", h.ID, err)
	}

	g, _ := errgroup.WithContext(ctx)
	for _, team := range h.Teams {
		team := team
		g.Go(func() error {
			if _, err := resolvers.Resolve(adapter.TeamSupervisorRefPrefix + team.ID); err != nil {
				return domain.ValidationError("resolve team supervisor %s: %v", team.ID, err)
			}
			for _, worker := range team.Workers {
				if _, err := resolvers.Resolve(worker.AgentRef); err != nil {
					return domain.ValidationError("resolve worker %s agent %q: %v", worker.ID, worker.AgentRef, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
