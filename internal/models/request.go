// internal/models/request.go
package models

import "time"

// RequestContext captures the ingress facts of one tool call. Created when
// the call arrives, immutable afterwards.
type RequestContext struct {
	TraceID   string                 `json:"traceId"`
	ClientID  string                 `json:"clientId"`
	ArrivedAt time.Time              `json:"arrivedAt"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolRequest is the parsed argument set of an inbound tool call.
type ToolRequest struct {
	Tool     string       `json:"tool"`
	ClientID string       `json:"clientId"`
	Country  string       `json:"country,omitempty"`
	State    string       `json:"state,omitempty"`
	City     string       `json:"city,omitempty"`
	Sector   string       `json:"sector,omitempty"`
	Year     int          `json:"year,omitempty"`
	Columns  []string     `json:"columns,omitempty"`
	Limit    int          `json:"limit,omitempty"`
	Quality  *QualitySpec `json:"quality,omitempty"`
	// Question is set for LLM-backed tools only.
	Question string `json:"question,omitempty"`
}

// ToolResponse is the annotated result returned to the orchestration layer.
type ToolResponse struct {
	Data           []map[string]interface{} `json:"data"`
	CacheHit       bool                     `json:"cache_hit"`
	TraceID        string                   `json:"trace_id"`
	FiltersApplied FilterSummary            `json:"filters_applied"`
	// Synthesis carries the LLM answer for LLM-backed tools.
	Synthesis string `json:"synthesis,omitempty"`
}

// FilterSummary echoes the resolved entity and quality filters back to the
// caller so the orchestration layer can show what was actually queried.
type FilterSummary struct {
	Entities []ResolvedEntity       `json:"entities,omitempty"`
	Quality  *QualitySpec           `json:"quality,omitempty"`
	Where    map[string]interface{} `json:"where,omitempty"`
	Limit    int                    `json:"limit"`
}
