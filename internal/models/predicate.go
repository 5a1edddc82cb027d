// internal/models/predicate.go
package models

// PredicateOp enumerates the comparison operators a plan may carry.
type PredicateOp string

const (
	OpEq  PredicateOp = "eq"
	OpGte PredicateOp = "gte"
	OpLte PredicateOp = "lte"
	OpIn  PredicateOp = "in"
)

// Predicate is one filter fragment of a query plan. Column names are taken
// from the declared schema allow-list, never from caller input; values are
// always bound as parameters by the executing backend.
type Predicate struct {
	Column string      `json:"column"`
	Op     PredicateOp `json:"op"`
	Value  interface{} `json:"value,omitempty"`
	// Values is set for OpIn instead of Value.
	Values []interface{} `json:"values,omitempty"`
}
