package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215"
	"github.com/nerrad567/gray-logic-w215/internal/device"
	"github.com/nerrad567/gray-logic-w215/internal/event"
)

// SystemMetrics is the JSON summary returned by GET /system.
type SystemMetrics struct {
	Version       string               `json:"version"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Runtime       RuntimeMetrics       `json:"runtime"`
	WebSocket     WSMetrics            `json:"websocket"`
	MQTT          string               `json:"mqtt"`
	InfluxDB      string               `json:"influxdb"`
	Devices       DeviceMetrics        `json:"devices"`
	Database      *DatabaseMetrics     `json:"database,omitempty"`
	Scheduler     *w215.SchedulerStats `json:"scheduler,omitempty"`
	Bus           *event.Stats         `json:"bus,omitempty"`
}

// RuntimeMetrics holds Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines  int    `json:"goroutines"`
	HeapAllocMB uint64 `json:"heap_alloc_mb"`
	SysMB       uint64 `json:"sys_mb"`
	NumGC       uint32 `json:"num_gc"`
	GoMaxProcs  int    `json:"gomaxprocs"`
}

// WSMetrics holds WebSocket statistics.
type WSMetrics struct {
	Clients int `json:"clients"`
}

// DeviceMetrics summarises the registry.
type DeviceMetrics struct {
	Total    int                         `json:"total"`
	Features int                         `json:"features"`
	ByHealth map[device.HealthStatus]int `json:"by_health"`
}

// DatabaseMetrics holds SQLite connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int `json:"open_connections"`
	InUse           int `json:"in_use"`
	Idle            int `json:"idle"`
}

// handleSystem returns a snapshot of the bridge internals.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := s.registry.GetStats()
	out := SystemMetrics{
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:  runtime.NumGoroutine(),
			HeapAllocMB: mem.HeapAlloc / 1024 / 1024,
			SysMB:       mem.Sys / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoMaxProcs:  runtime.GOMAXPROCS(0),
		},
		WebSocket: WSMetrics{Clients: s.hub.ClientCount()},
		MQTT:      connectionState(s.mqtt),
		InfluxDB:  connectionState(s.influx),
		Devices: DeviceMetrics{
			Total:    stats.TotalDevices,
			Features: stats.TotalFeatures,
			ByHealth: stats.ByHealthStatus,
		},
	}

	if s.db != nil && s.db.DB != nil {
		dbStats := s.db.DB.Stats()
		out.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
		}
	}
	if s.poller != nil {
		st := s.poller.Stats()
		out.Scheduler = &st
	}
	if s.bus != nil {
		st := s.bus.Stats()
		out.Bus = &st
	}

	writeJSON(w, http.StatusOK, out)
}
