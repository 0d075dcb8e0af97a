package api

import "time"

// HealthResponse is the liveness probe's body: the process is up and
// serving requests.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse reports indexing progress against the chain tip.
type StatusResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	LatestStoredBlock uint64    `json:"latest_stored_block"`
	ChainTipBlock     uint64    `json:"chain_tip_block,omitempty"`
	BlocksBehind      int64     `json:"blocks_behind,omitempty"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
