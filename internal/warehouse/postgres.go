package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/common/logger"
	"emissions-gateway/internal/common/metrics"
	"emissions-gateway/internal/models"
	"emissions-gateway/internal/planner"
)

// PostgresExecutor runs plans against the relational warehouse backend.
type PostgresExecutor struct {
	db      *sql.DB
	timeout time.Duration
	logger  logger.Logger
}

func NewPostgresExecutor(db *sql.DB, timeout time.Duration, log logger.Logger) *PostgresExecutor {
	return &PostgresExecutor{
		db:      db,
		timeout: timeout,
		logger:  log,
	}
}

func (e *PostgresExecutor) Execute(ctx context.Context, plan *planner.QueryPlan) ([]map[string]interface{}, error) {
	query, args := buildSQL(plan)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query, args...)
	metrics.WarehouseQueryDuration.WithLabelValues(plan.Table).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, e.mapError(ctx, err, plan)
	}
	defer rows.Close()

	results, err := scanRows(rows, plan.Columns)
	if err != nil {
		return nil, e.mapError(ctx, err, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, e.mapError(ctx, err, plan)
	}

	e.logger.WithTrace(ctx).Debug("warehouse query completed", map[string]interface{}{
		"table":    plan.Table,
		"rowCount": len(results),
		"duration": time.Since(start).String(),
	})
	return results, nil
}

func (e *PostgresExecutor) HealthCheck(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// mapError sanitizes driver failures. Full detail goes to the log; callers
// see only the error class and trace id.
func (e *PostgresExecutor) mapError(ctx context.Context, err error, plan *planner.QueryPlan) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.logger.WithTrace(ctx).Warn("warehouse query timed out", map[string]interface{}{
			"table":   plan.Table,
			"timeout": e.timeout.String(),
		})
		return gwerrors.NewTimeoutError("warehouse query", err)
	}
	e.logger.WithTrace(ctx).WithError(err).Error("warehouse query failed", map[string]interface{}{
		"table": plan.Table,
	})
	return gwerrors.NewQueryFailedError(err)
}

// buildSQL renders a plan as a parameterized statement. Table and column
// names come from the planner's allow-list; every comparison value is bound
// as a positional argument.
func buildSQL(plan *planner.QueryPlan) (string, []interface{}) {
	var sb strings.Builder
	args := make([]interface{}, 0, len(plan.Predicates)+1)

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(plan.Columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(plan.Table)

	if len(plan.Predicates) > 0 {
		sb.WriteString(" WHERE ")
		for i, pred := range plan.Predicates {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			switch pred.Op {
			case models.OpIn:
				placeholders := make([]string, len(pred.Values))
				for j, v := range pred.Values {
					args = append(args, v)
					placeholders[j] = fmt.Sprintf("$%d", len(args))
				}
				sb.WriteString(fmt.Sprintf("%s IN (%s)", pred.Column, strings.Join(placeholders, ", ")))
			default:
				args = append(args, pred.Value)
				sb.WriteString(fmt.Sprintf("%s %s $%d", pred.Column, sqlOperator(pred.Op), len(args)))
			}
		}
	}

	args = append(args, plan.Limit)
	sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	return sb.String(), args
}

func sqlOperator(op models.PredicateOp) string {
	switch op {
	case models.OpGte:
		return ">="
	case models.OpLte:
		return "<="
	default:
		return "="
	}
}

// scanRows converts the result set into maps keyed by the plan's columns.
func scanRows(rows *sql.Rows, columns []string) ([]map[string]interface{}, error) {
	results := make([]map[string]interface{}, 0)
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	return results, nil
}

// normalizeValue widens driver-specific scan types into JSON-friendly ones.
func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}
