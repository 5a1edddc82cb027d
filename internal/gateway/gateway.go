// Package gateway orchestrates one tool call end to end: admission control,
// entity resolution, plan construction, cached execution, and optional
// synthesis. All downstream effects flow through this package so the
// resilience layers (limiter, breaker, cache, coalescing) see every request.
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"emissions-gateway/internal/breaker"
	"emissions-gateway/internal/cache"
	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/common/logger"
	"emissions-gateway/internal/common/metrics"
	"emissions-gateway/internal/common/tracing"
	"emissions-gateway/internal/inference"
	"emissions-gateway/internal/models"
	"emissions-gateway/internal/planner"
	"emissions-gateway/internal/quality"
	"emissions-gateway/internal/ratelimit"
	"emissions-gateway/internal/warehouse"
)

// Synthesizer is the inference surface the gateway needs.
type Synthesizer interface {
	Synthesize(ctx context.Context, input *inference.Input) (*inference.Output, error)
}

type Gateway struct {
	resolver EntityResolver
	planner  *planner.Planner
	executor warehouse.Executor
	cache    cache.Store
	limiter  *ratelimit.Limiter

	warehouseBreaker *breaker.Breaker
	inferenceBreaker *breaker.Breaker
	synthesizer      Synthesizer

	// flight coalesces concurrent identical plans so the warehouse sees one
	// query per fingerprint at a time.
	flight singleflight.Group

	cacheTTL time.Duration
	logger   logger.Logger
}

// EntityResolver is the narrow slice of the entity resolver the pipeline uses.
type EntityResolver interface {
	Resolve(raw string, expectedLevel *models.EntityLevel) (models.ResolvedEntity, error)
}

type Options struct {
	Resolver         EntityResolver
	Planner          *planner.Planner
	Executor         warehouse.Executor
	Cache            cache.Store
	Limiter          *ratelimit.Limiter
	WarehouseBreaker *breaker.Breaker
	InferenceBreaker *breaker.Breaker
	Synthesizer      Synthesizer
	CacheTTL         time.Duration
	Logger           logger.Logger
}

func New(opts Options) *Gateway {
	return &Gateway{
		resolver:         opts.Resolver,
		planner:          opts.Planner,
		executor:         opts.Executor,
		cache:            opts.Cache,
		limiter:          opts.Limiter,
		warehouseBreaker: opts.WarehouseBreaker,
		inferenceBreaker: opts.InferenceBreaker,
		synthesizer:      opts.Synthesizer,
		cacheTTL:         opts.CacheTTL,
		logger:           opts.Logger,
	}
}

// Query runs the full pipeline for the query_emissions tool.
func (g *Gateway) Query(ctx context.Context, req *models.ToolRequest) (resp *models.ToolResponse, err error) {
	ctx, traceID := tracing.Ensure(ctx)
	defer g.observe("query_emissions", time.Now(), &err)

	if err = g.admit(ctx, req.ClientID); err != nil {
		return nil, err
	}

	entities, where, err := g.resolveFilters(ctx, req)
	if err != nil {
		return nil, err
	}

	qualityPreds, err := quality.Build(req.Quality)
	if err != nil {
		return nil, gwerrors.NewInvalidPlanError(err.Error())
	}

	plan, err := g.planner.Plan("emissions", req.Columns, where, qualityPreds, req.Limit)
	if err != nil {
		return nil, err
	}

	result, cacheHit, err := g.executeCached(ctx, plan)
	if err != nil {
		return nil, err
	}

	return &models.ToolResponse{
		Data:     result.Data,
		CacheHit: cacheHit,
		TraceID:  traceID,
		FiltersApplied: models.FilterSummary{
			Entities: entities,
			Quality:  req.Quality,
			Where:    where,
			Limit:    plan.Limit,
		},
	}, nil
}

// ResolveEntity serves the resolve_entity tool: resolution only, no query.
func (g *Gateway) ResolveEntity(ctx context.Context, req *models.ToolRequest) (resp *models.ToolResponse, err error) {
	ctx, traceID := tracing.Ensure(ctx)
	defer g.observe("resolve_entity", time.Now(), &err)

	if err = g.admit(ctx, req.ClientID); err != nil {
		return nil, err
	}

	entities, _, err := g.resolveFilters(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, gwerrors.NewInvalidPlanError("no entity argument provided")
	}

	return &models.ToolResponse{
		Data:    entityRows(entities),
		TraceID: traceID,
		FiltersApplied: models.FilterSummary{
			Entities: entities,
		},
	}, nil
}

// Summarize serves the summarize_emissions tool: query, then synthesize an
// answer from the rows. The synthesis is cached alongside the rows, keyed by
// plan fingerprint plus question, so repeating the same question is cheap.
func (g *Gateway) Summarize(ctx context.Context, req *models.ToolRequest) (resp *models.ToolResponse, err error) {
	ctx, traceID := tracing.Ensure(ctx)
	defer g.observe("summarize_emissions", time.Now(), &err)

	if err = g.admit(ctx, req.ClientID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, gwerrors.NewInvalidPlanError("question must not be empty")
	}

	entities, where, err := g.resolveFilters(ctx, req)
	if err != nil {
		return nil, err
	}

	qualityPreds, err := quality.Build(req.Quality)
	if err != nil {
		return nil, gwerrors.NewInvalidPlanError(err.Error())
	}

	plan, err := g.planner.Plan("emissions", req.Columns, where, qualityPreds, req.Limit)
	if err != nil {
		return nil, err
	}

	summary := models.FilterSummary{
		Entities: entities,
		Quality:  req.Quality,
		Where:    where,
		Limit:    plan.Limit,
	}

	// Synthesis cache lookup: the key binds the plan to the question.
	synthKey := summarizeKey(plan.Fingerprint(), req.Question)
	cached, hit, cerr := g.cacheGet(ctx, synthKey)
	if cerr = g.checkCacheRead(ctx, synthKey, cerr); cerr != nil {
		return nil, cerr
	}
	if hit {
		metrics.CacheHits.Inc()
		return &models.ToolResponse{
			Data:           cached.Data,
			CacheHit:       true,
			TraceID:        traceID,
			FiltersApplied: summary,
			Synthesis:      cached.Synthesis,
		}, nil
	}
	metrics.CacheMisses.Inc()

	result, _, err := g.executeCached(ctx, plan)
	if err != nil {
		return nil, err
	}

	var out *inference.Output
	err = g.inferenceBreaker.Do(ctx, func(ctx context.Context) error {
		var ierr error
		out, ierr = g.synthesizer.Synthesize(ctx, &inference.Input{
			Question: req.Question,
			Rows:     result.Data,
			Filters:  where,
		})
		return ierr
	})
	if err != nil {
		return nil, err
	}

	if cerr := g.cache.Put(ctx, synthKey, &cache.Result{Data: result.Data, Synthesis: out.Text}, g.cacheTTL); cerr != nil {
		g.logger.WithTrace(ctx).WithError(cerr).Warn("synthesis cache store failed", nil)
	}

	return &models.ToolResponse{
		Data:           result.Data,
		CacheHit:       false,
		TraceID:        traceID,
		FiltersApplied: summary,
		Synthesis:      out.Text,
	}, nil
}

// admit applies the per-client rate limit. An empty client ID is grouped
// under a shared bucket rather than bypassing the limiter.
func (g *Gateway) admit(ctx context.Context, clientID string) error {
	if clientID == "" {
		clientID = "anonymous"
	}
	if err := g.limiter.Allow(clientID); err != nil {
		g.logger.WithTrace(ctx).Warn("request rate limited", map[string]interface{}{
			"clientId": clientID,
		})
		return err
	}
	return nil
}

// resolveFilters turns the request's place-name arguments into canonical
// entities and warehouse filter arguments.
func (g *Gateway) resolveFilters(ctx context.Context, req *models.ToolRequest) ([]models.ResolvedEntity, map[string]interface{}, error) {
	ctx, span := tracing.StartSpan(ctx, "resolve_entities")
	defer span.End()

	entities := make([]models.ResolvedEntity, 0, 3)
	where := make(map[string]interface{})

	type arg struct {
		raw    string
		level  models.EntityLevel
		column string
	}
	args := []arg{
		{req.Country, models.LevelCountry, "country_iso3"},
		{req.State, models.LevelState, "state"},
		{req.City, models.LevelCity, "city"},
	}
	for _, a := range args {
		if a.raw == "" {
			continue
		}
		lvl := a.level
		resolved, err := g.resolver.Resolve(a.raw, &lvl)
		if err != nil {
			g.logger.WithTrace(ctx).Info("entity resolution failed", map[string]interface{}{
				"input": a.raw,
				"level": string(a.level),
			})
			return nil, nil, err
		}
		entities = append(entities, resolved)
		if a.level == models.LevelCountry {
			where[a.column] = resolved.ISO3
		} else {
			where[a.column] = resolved.Canonical
		}
	}

	if req.Sector != "" {
		where["sector"] = strings.ToLower(strings.TrimSpace(req.Sector))
	}
	if req.Year != 0 {
		where["year"] = req.Year
	}

	return entities, where, nil
}

// executeCached serves a plan from the cache or, on a miss, through the
// coalesced breaker-guarded warehouse path. The boolean reports a cache hit.
func (g *Gateway) executeCached(ctx context.Context, plan *planner.QueryPlan) (*cache.Result, bool, error) {
	fingerprint := plan.Fingerprint()

	cached, hit, err := g.cacheGet(ctx, fingerprint)
	if err = g.checkCacheRead(ctx, fingerprint, err); err != nil {
		return nil, false, err
	}
	if hit {
		metrics.CacheHits.Inc()
		return cached, true, nil
	}
	metrics.CacheMisses.Inc()

	v, err, _ := g.flight.Do(fingerprint, func() (interface{}, error) {
		// Coalesced peers share this one execution, so it must not die with
		// the caller that happened to start it. The executor's own query
		// timeout still bounds the detached context.
		fctx := context.WithoutCancel(ctx)

		var rows []map[string]interface{}
		berr := g.warehouseBreaker.Do(fctx, func(ctx context.Context) error {
			sctx, span := tracing.StartSpan(ctx, "warehouse_execute")
			defer span.End()
			var werr error
			rows, werr = g.executor.Execute(sctx, plan)
			return werr
		})
		if berr != nil {
			return nil, berr
		}

		result := &cache.Result{Data: rows}
		if cerr := g.cache.Put(fctx, fingerprint, result, g.cacheTTL); cerr != nil {
			g.logger.WithTrace(fctx).WithError(cerr).Warn("cache store failed", map[string]interface{}{
				"fingerprint": fingerprint,
			})
		}
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*cache.Result), false, nil
}

// checkCacheRead classifies a cache read error. Corruption is a broken
// invariant, fatal to the request; anything else is transient backend
// trouble and reads as a miss.
func (g *Gateway) checkCacheRead(ctx context.Context, key string, err error) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"key": key}
	if errors.Is(err, gwerrors.ErrCacheCorruption) {
		g.logger.WithTrace(ctx).WithError(err).Error("cache corruption detected", fields)
		return err
	}
	g.logger.WithTrace(ctx).WithError(err).Warn("cache read failed", fields)
	return nil
}

func (g *Gateway) cacheGet(ctx context.Context, key string) (*cache.Result, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "cache_lookup")
	defer span.End()
	return g.cache.Get(ctx, key)
}

func (g *Gateway) observe(tool string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = string(gwerrors.Normalize(*err).Code)
	}
	metrics.RequestsTotal.WithLabelValues(tool, status).Inc()
	metrics.RequestDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}

func entityRows(entities []models.ResolvedEntity) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(entities))
	for _, e := range entities {
		row := map[string]interface{}{
			"input":     e.Input,
			"canonical": e.Canonical,
			"level":     string(e.Level),
		}
		if e.ISO3 != "" {
			row["iso3"] = e.ISO3
		}
		rows = append(rows, row)
	}
	return rows
}

func summarizeKey(fingerprint, question string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(question))))
	return fingerprint + ":" + hex.EncodeToString(h[:8])
}
