package api

import (
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
)

// DBStatser reports connection pool statistics. *database.DB implements
// it through the embedded *sql.DB.
type DBStatser interface {
	Stats() sql.DBStats
}

// StatusResponse is the body of /api/v1/status.
type StatusResponse struct {
	Timestamp     string               `json:"timestamp"`
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	HomeID        string               `json:"home_id"`
	AtHome        bool                 `json:"at_home"`
	Runtime       RuntimeStatus        `json:"runtime"`
	Sessions      SessionStatus        `json:"sessions"`
	Registry      device.RegistryStats `json:"registry"`
	Database      *DatabaseStatus      `json:"database,omitempty"`
}

// RuntimeStatus contains Go runtime statistics.
type RuntimeStatus struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// SessionStatus counts WebSocket sessions.
type SessionStatus struct {
	Connected     int `json:"connected"`
	Authenticated int `json:"authenticated"`
}

// DatabaseStatus contains connection pool statistics.
type DatabaseStatus struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1024 * 1024

// handleStatus reports a snapshot of the gateway for dashboards.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		HomeID:        fmt.Sprintf("%08x", s.gateway.HomeID()),
		AtHome:        s.gateway.AtHome(),
		Runtime: RuntimeStatus{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / bytesPerMB,
			NumGC:         mem.NumGC,
		},
		Sessions: SessionStatus{
			Connected:     s.hub.ClientCount(),
			Authenticated: s.hub.AuthenticatedCount(),
		},
		Registry: s.gateway.Registry().Stats(),
	}

	if s.stats != nil {
		st := s.stats.Stats()
		resp.Database = &DatabaseStatus{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			WaitCount:       st.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
