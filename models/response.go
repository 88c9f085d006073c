package models

// FetchResponse is the response for POST /api/v1/fetch and /api/v1/form,
// and one slot of a batch.
type FetchResponse struct {
	Success    bool   `json:"success"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`

	// Strategy is "http" or "browser".
	Strategy string   `json:"strategy,omitempty"`
	Rendered bool     `json:"rendered"`
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content,omitempty"`
	Items    []string `json:"items,omitempty"`

	LatencyMs int64 `json:"latency_ms"`

	// CacheStatus is "hit", "miss", or empty when caching was not requested.
	CacheStatus string `json:"cache_status,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// TableResponse is the response for POST /api/v1/table.
type TableResponse struct {
	Success  bool         `json:"success"`
	URL      string       `json:"url"`
	Strategy string       `json:"strategy,omitempty"`
	Rows     [][]string   `json:"rows"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// PageResult is one page of a pagination job.
type PageResult struct {
	Index      int      `json:"index"`
	URL        string   `json:"url"`
	StatusCode int      `json:"status_code"`
	Strategy   string   `json:"strategy"`
	Items      []string `json:"items"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string     `json:"status"` // "healthy" or "degraded"
	Uptime  string     `json:"uptime"`
	Browser *PoolStats `json:"browser,omitempty"`
	Version string     `json:"version"`
}

// PoolStats reports the browser tab pool.
type PoolStats struct {
	Backend  string `json:"backend"`
	Started  bool   `json:"started"`
	PoolSize int    `json:"pool_size"`
	Tabs     int    `json:"tabs"`
	IdleTabs int    `json:"idle_tabs"`
	Active   int    `json:"active"`
	Renders  int64  `json:"renders"`
}
