package orchestrator

import (
	"fmt"
	"sort"

	"github.com/smartfold/agentpipe/agent"
	"github.com/smartfold/agentpipe/routing"
)

// Stage is one step of a pipeline plan. A stage with multiple roles runs
// them concurrently against the same context snapshot and joins before the
// next stage starts.
type Stage struct {
	Roles []agent.Role `json:"roles"`
}

// Plan is the ordered stage sequence selected for a task category.
// Derived once per task and immutable afterwards.
type Plan struct {
	Stages []Stage `json:"stages"`
}

// Sequential builds a plan with one single-role stage per argument.
func Sequential(roles ...agent.Role) Plan {
	stages := make([]Stage, 0, len(roles))
	for _, r := range roles {
		stages = append(stages, Stage{Roles: []agent.Role{r}})
	}
	return Plan{Stages: stages}
}

// Validate checks that the plan is non-empty and only names known roles.
func (p Plan) Validate() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("plan has no stages")
	}
	for i, stage := range p.Stages {
		if len(stage.Roles) == 0 {
			return fmt.Errorf("stage %d has no roles", i)
		}
		for _, r := range stage.Roles {
			if !r.Valid() {
				return fmt.Errorf("stage %d names unknown role %q", i, r)
			}
		}
	}
	return nil
}

// sortedRoles returns the stage's roles ordered by name, the tie-break
// order used for trace entries of joined concurrent roles.
func (s Stage) sortedRoles() []agent.Role {
	roles := make([]agent.Role, len(s.Roles))
	copy(roles, s.Roles)
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// DefaultPlans returns the default category-to-plan mapping.
func DefaultPlans() map[routing.Category]Plan {
	return map[routing.Category]Plan{
		routing.CategoryCodeGeneration: Sequential(agent.RolePlanner, agent.RoleCoder, agent.RoleReviewer),
		routing.CategoryDebugging:      Sequential(agent.RoleDebugger, agent.RoleReviewer),
		routing.CategoryOptimization:   Sequential(agent.RolePlanner, agent.RoleOptimizer, agent.RoleReviewer),
		routing.CategoryReview:         Sequential(agent.RoleReviewer),
		routing.CategoryGeneral:        Sequential(agent.RoleCoder),
	}
}
