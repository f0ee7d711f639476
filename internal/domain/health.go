package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// EngineMetrics is returned by GET /v1/metrics/engine.
type EngineMetrics struct {
	FetchesSucceeded  float64 `json:"fetchesSucceeded"`
	FetchesFailed     float64 `json:"fetchesFailed"`
	StaleDiscarded    float64 `json:"staleDiscarded"`
	TriggersStarted   float64 `json:"triggersStarted"`
	TriggersQueued    float64 `json:"triggersQueued"`
	TriggersCoalesced float64 `json:"triggersCoalesced"`
	TriggersRejected  float64 `json:"triggersRejected"`
	RecordsDropped    float64 `json:"recordsDropped"`
	FailureRate       float64 `json:"failureRate"`
	ActiveEngines     float64 `json:"activeEngines"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
