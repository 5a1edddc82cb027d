package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/common/logger"
	"emissions-gateway/internal/common/metrics"
	"emissions-gateway/internal/models"
	"emissions-gateway/internal/planner"
)

// ElasticsearchExecutor runs plans against a document-indexed copy of the
// warehouse. Each allow-listed table maps to an index of the same name;
// predicates become a bool filter so scoring is skipped entirely.
type ElasticsearchExecutor struct {
	client  *elasticsearch.Client
	timeout time.Duration
	logger  logger.Logger
}

func NewElasticsearchExecutor(client *elasticsearch.Client, timeout time.Duration, log logger.Logger) *ElasticsearchExecutor {
	return &ElasticsearchExecutor{
		client:  client,
		timeout: timeout,
		logger:  log,
	}
}

type esHit struct {
	Source map[string]interface{} `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticsearchExecutor) Execute(ctx context.Context, plan *planner.QueryPlan) ([]map[string]interface{}, error) {
	body, err := buildSearchBody(plan)
	if err != nil {
		return nil, gwerrors.NewQueryFailedError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(plan.Table),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	metrics.WarehouseQueryDuration.WithLabelValues(plan.Table).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, e.mapError(ctx, err, plan)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, e.mapError(ctx, decodeESError(res), plan)
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, e.mapError(ctx, err, plan)
	}

	results := make([]map[string]interface{}, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		row := make(map[string]interface{}, len(plan.Columns))
		for _, col := range plan.Columns {
			row[col] = hit.Source[col]
		}
		results = append(results, row)
	}
	return results, nil
}

func (e *ElasticsearchExecutor) HealthCheck(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

func (e *ElasticsearchExecutor) mapError(ctx context.Context, err error, plan *planner.QueryPlan) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.logger.WithTrace(ctx).Warn("warehouse query timed out", map[string]interface{}{
			"index":   plan.Table,
			"timeout": e.timeout.String(),
		})
		return gwerrors.NewTimeoutError("warehouse query", err)
	}
	e.logger.WithTrace(ctx).WithError(err).Error("warehouse query failed", map[string]interface{}{
		"index": plan.Table,
	})
	return gwerrors.NewQueryFailedError(err)
}

// buildSearchBody renders a plan as a filtered search request. Field names
// come from the planner's allow-list, values are data only.
func buildSearchBody(plan *planner.QueryPlan) ([]byte, error) {
	filters := make([]map[string]interface{}, 0, len(plan.Predicates))
	for _, pred := range plan.Predicates {
		switch pred.Op {
		case models.OpEq:
			filters = append(filters, map[string]interface{}{
				"term": map[string]interface{}{pred.Column: pred.Value},
			})
		case models.OpIn:
			filters = append(filters, map[string]interface{}{
				"terms": map[string]interface{}{pred.Column: pred.Values},
			})
		case models.OpGte:
			filters = append(filters, map[string]interface{}{
				"range": map[string]interface{}{pred.Column: map[string]interface{}{"gte": pred.Value}},
			})
		case models.OpLte:
			filters = append(filters, map[string]interface{}{
				"range": map[string]interface{}{pred.Column: map[string]interface{}{"lte": pred.Value}},
			})
		default:
			return nil, fmt.Errorf("unsupported predicate operator %q", pred.Op)
		}
	}

	query := map[string]interface{}{
		"size":    plan.Limit,
		"_source": plan.Columns,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
			},
		},
	}
	return json.Marshal(query)
}

func decodeESError(res *esapi.Response) error {
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("elasticsearch error %s", res.Status())
	}
	return fmt.Errorf("elasticsearch error %s: %s", res.Status(), string(raw))
}
