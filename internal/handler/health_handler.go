package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"secure-relay/internal/observability"
)

// BlockCounter reports how many origins are blocked right now.
type BlockCounter interface {
	Count(ctx context.Context) (int, error)
}

// ConnectionCounter reports how many websocket connections are registered.
type ConnectionCounter interface {
	Len() int
}

// Health returns liveness plus the relay's guard and connection counters
func Health(blocks BlockCounter, conns ConnectionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":             "healthy",
			"timestamp":          time.Now().UTC().Format(time.RFC3339),
			"active_connections": conns.Len(),
		}
		if n, err := blocks.Count(r.Context()); err == nil {
			resp["blocked_ips"] = n
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ReadinessCheck probes one dependency
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) HealthCheckResult
}

// Ready runs every check in parallel and reports 503 unless all are up
func Ready(checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		results := make([]chan HealthCheckResult, len(checks))
		for i, c := range checks {
			results[i] = make(chan HealthCheckResult, 1)
			go func(c ReadinessCheck, out chan<- HealthCheckResult) {
				out <- c.Check(ctx)
			}(c, results[i])
		}

		allHealthy := true
		report := make(map[string]HealthCheckResult, len(checks))
		for i, c := range checks {
			res := <-results[i]
			report[c.Name] = res
			if res.Status != "up" {
				allHealthy = false
			}
		}

		response := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    report,
		}

		status := http.StatusOK
		response["status"] = "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
		}
		writeJSON(w, status, response)
	}
}

// DatabaseCheck pings db and publishes its pool gauges
func DatabaseCheck(db *sql.DB) ReadinessCheck {
	return ReadinessCheck{Name: "database", Check: func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		err := db.PingContext(ctx)
		latency := time.Since(start)

		stats := db.Stats()
		observability.DBConnectionsOpen.Set(float64(stats.OpenConnections))
		observability.DBConnectionsInUse.Set(float64(stats.InUse))
		observability.DBConnectionsIdle.Set(float64(stats.Idle))

		if err != nil {
			return HealthCheckResult{
				Status:    "down",
				LatencyMs: latency.Milliseconds(),
				Error:     err.Error(),
			}
		}

		return HealthCheckResult{
			Status:    "up",
			LatencyMs: latency.Milliseconds(),
			Metadata: map[string]any{
				"connections_open":   stats.OpenConnections,
				"connections_in_use": stats.InUse,
				"connections_idle":   stats.Idle,
				"max_open":           stats.MaxOpenConnections,
			},
		}
	}}
}

// ClosedChecker reports whether a broker connection is gone
type ClosedChecker interface {
	IsClosed() bool
}

// RabbitMQCheck reports the escalation broker's connection state
func RabbitMQCheck(rmq ClosedChecker) ReadinessCheck {
	return ReadinessCheck{Name: "rabbitmq", Check: func(context.Context) HealthCheckResult {
		if rmq.IsClosed() {
			return HealthCheckResult{Status: "down", Error: "connection closed"}
		}
		return HealthCheckResult{Status: "up"}
	}}
}

// Pinger is satisfied by the Redis-backed guard
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck wraps any Ping-capable dependency
func PingCheck(name string, p Pinger) ReadinessCheck {
	return ReadinessCheck{Name: name, Check: func(ctx context.Context) HealthCheckResult {
		start := time.Now()
		if err := p.Ping(ctx); err != nil {
			return HealthCheckResult{Status: "down", LatencyMs: time.Since(start).Milliseconds(), Error: err.Error()}
		}
		return HealthCheckResult{Status: "up", LatencyMs: time.Since(start).Milliseconds()}
	}}
}
