// Package api implements the HTTP REST API and Prometheus metrics endpoint.
package api

// Response is the standard JSON response envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse holds daemon status information.
type StatusResponse struct {
	Uptime    string `json:"uptime"`
	Interface string `json:"interface"`
	Backend   string `json:"backend"`
	Policy    string `json:"policy"`
	PortCount int    `json:"port_count"`
}

// StatsResponse holds the aggregate classification counters, plus the
// per-worker breakdown when the software backend is active.
type StatsResponse struct {
	Total   uint64       `json:"packets_total"`
	Matched uint64       `json:"packets_matched"`
	Passed  uint64       `json:"packets_passed"`
	Dropped uint64       `json:"packets_dropped"`
	Shards  []ShardStats `json:"shards,omitempty"`
}

// ShardStats holds one worker's counter values.
type ShardStats struct {
	Shard   int    `json:"shard"`
	Total   uint64 `json:"packets_total"`
	Matched uint64 `json:"packets_matched"`
	Passed  uint64 `json:"packets_passed"`
	Dropped uint64 `json:"packets_dropped"`
}

// PortEntry describes one redirect table entry.
type PortEntry struct {
	Port uint16 `json:"port"`
	PID  uint32 `json:"pid"`
	Addr string `json:"addr"`
}

// RegisterRequest is the body of POST /api/v1/ports.
type RegisterRequest struct {
	Port uint16 `json:"port"`
	PID  uint32 `json:"pid"`
	Addr string `json:"addr,omitempty"`
}
