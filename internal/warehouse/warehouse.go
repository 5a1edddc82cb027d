// Package warehouse executes validated query plans against the columnar
// emissions store. Identifiers in a plan have already passed the planner's
// allow-list, so executors interpolate column and table names directly and
// bind every value as a parameter.
package warehouse

import (
	"context"

	"emissions-gateway/internal/planner"
)

// Executor runs a validated plan and returns result rows keyed by column.
type Executor interface {
	Execute(ctx context.Context, plan *planner.QueryPlan) ([]map[string]interface{}, error)
	HealthCheck(ctx context.Context) error
}
