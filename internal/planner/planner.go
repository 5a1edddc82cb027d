// Package planner combines resolved entities, quality predicates, and caller
// filters into a bounded, parameterized query plan.
package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/models"
)

// MaxLimit is the server-enforced row ceiling; no plan may exceed it.
const MaxLimit = 1000

// QueryPlan is the canonical, executable representation of one warehouse
// query. Plans with equal fingerprints are semantically identical and
// cacheable interchangeably.
type QueryPlan struct {
	Table      string             `json:"table"`
	Columns    []string           `json:"columns"`
	Predicates []models.Predicate `json:"predicates"`
	Limit      int                `json:"limit"`

	fingerprint string
}

// Fingerprint returns the stable hash over the plan's logical content,
// independent of the argument order the caller used.
func (p *QueryPlan) Fingerprint() string {
	return p.fingerprint
}

// Planner validates caller input against the table allow-list and produces
// query plans.
type Planner struct {
	defaultLimit int
	maxLimit     int
}

func New(defaultLimit, maxLimit int) *Planner {
	if maxLimit <= 0 || maxLimit > MaxLimit {
		maxLimit = MaxLimit
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Planner{defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Plan builds a QueryPlan. Column and table identifiers are checked against
// the declared schema; predicate values are carried for parameter binding
// only. A zero limit takes the configured default.
func (pl *Planner) Plan(table string, selectColumns []string, whereArgs map[string]interface{}, qualityPreds []models.Predicate, limit int) (*QueryPlan, error) {
	schema, ok := Tables[table]
	if !ok {
		return nil, gwerrors.NewInvalidPlanError(fmt.Sprintf("unknown table %q", table))
	}

	if limit == 0 {
		limit = pl.defaultLimit
	}
	if limit < 0 || limit > pl.maxLimit {
		return nil, gwerrors.NewInvalidPlanError(fmt.Sprintf("limit %d exceeds ceiling %d", limit, pl.maxLimit))
	}

	columns := selectColumns
	if len(columns) == 0 {
		columns = schema.Columns
	}
	for _, col := range columns {
		if !schema.hasColumn(col) {
			return nil, gwerrors.NewInvalidPlanError(fmt.Sprintf("column %q is not declared on table %q", col, table))
		}
	}

	preds := make([]models.Predicate, 0, len(whereArgs)+len(qualityPreds))
	for key, value := range whereArgs {
		if !schema.isFilterable(key) {
			return nil, gwerrors.NewInvalidPlanError(fmt.Sprintf("column %q is not filterable on table %q", key, table))
		}
		preds = append(preds, predicateFor(key, value))
	}
	for _, qp := range qualityPreds {
		if !schema.isFilterable(qp.Column) {
			return nil, gwerrors.NewInvalidPlanError(fmt.Sprintf("quality column %q is not filterable on table %q", qp.Column, table))
		}
		preds = append(preds, qp)
	}

	// Canonical ordering: plans built from the same logical arguments in a
	// different order must be byte-identical.
	sortedColumns := append([]string(nil), columns...)
	sort.Strings(sortedColumns)
	sort.SliceStable(preds, func(i, j int) bool {
		if preds[i].Column != preds[j].Column {
			return preds[i].Column < preds[j].Column
		}
		return preds[i].Op < preds[j].Op
	})
	for i := range preds {
		if preds[i].Op == models.OpIn {
			preds[i].Values = sortedValues(preds[i].Values)
		}
	}

	plan := &QueryPlan{
		Table:      schema.Name,
		Columns:    sortedColumns,
		Predicates: preds,
		Limit:      limit,
	}
	plan.fingerprint = fingerprint(plan)
	return plan, nil
}

func predicateFor(key string, value interface{}) models.Predicate {
	if values, ok := value.([]interface{}); ok {
		return models.Predicate{Column: key, Op: models.OpIn, Values: values}
	}
	return models.Predicate{Column: key, Op: models.OpEq, Value: value}
}

// sortedValues copies an IN-list into its canonical order so two logically
// equal membership tests fingerprint identically regardless of how the
// caller listed them. The caller's slice is left untouched.
func sortedValues(values []interface{}) []interface{} {
	out := append([]interface{}(nil), values...)
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprintf("%v", out[i]) < fmt.Sprintf("%v", out[j])
	})
	return out
}

// fingerprint serializes the canonical plan form through SHA-256. The plan's
// slices are already sorted, so the serialization is independent of map
// iteration order.
func fingerprint(p *QueryPlan) string {
	var b strings.Builder
	b.WriteString(p.Table)
	b.WriteString("|")
	b.WriteString(strings.Join(p.Columns, ","))
	b.WriteString("|")
	for _, pred := range p.Predicates {
		b.WriteString(pred.Column)
		b.WriteString(":")
		b.WriteString(string(pred.Op))
		b.WriteString(":")
		if pred.Op == models.OpIn {
			for _, v := range pred.Values {
				fmt.Fprintf(&b, "%v,", v)
			}
		} else {
			fmt.Fprintf(&b, "%v", pred.Value)
		}
		b.WriteString(";")
	}
	fmt.Fprintf(&b, "|%d", p.Limit)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
