package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/govee2mqtt/internal/entity"
)

// SystemMetrics is the /metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Vendor        VendorMetrics    `json:"vendor"`
	Scheduler     SchedulerMetrics `json:"scheduler"`
	Entities      EntityMetrics    `json:"entities"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// VendorMetrics is the daily Govee API quota usage.
type VendorMetrics struct {
	APICalls     int    `json:"api_calls"`
	LastCallDate string `json:"last_call_date,omitempty"`
	LastCall     string `json:"last_call,omitempty"`
	RateLimited  bool   `json:"rate_limited"`
}

// SchedulerMetrics reports the refresh loops.
type SchedulerMetrics struct {
	Running           bool  `json:"running"`
	DiscoveryComplete bool  `json:"discovery_complete"`
	DeviceListSeconds int64 `json:"device_list_interval_seconds"`
	DeviceSeconds     int64 `json:"device_interval_seconds"`
	BoostSeconds      int64 `json:"boost_interval_seconds"`
}

// EntityMetrics counts entities in the store.
type EntityMetrics struct {
	Total   int            `json:"total"`
	Boosted int            `json:"boosted"`
	Offline int            `json:"offline"`
	ByType  map[string]int `json:"by_type"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	usage := s.bridge.Usage()
	iv := s.bridge.CurrentIntervals()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Vendor: VendorMetrics{
			APICalls:     usage.APICalls,
			LastCallDate: usage.LastCallDate,
			RateLimited:  usage.RateLimited,
		},
		Scheduler: SchedulerMetrics{
			Running:           s.bridge.Running(),
			DiscoveryComplete: s.bridge.DiscoveryComplete(),
			DeviceListSeconds: int64(iv.DeviceList / time.Second),
			DeviceSeconds:     int64(iv.Device / time.Second),
			BoostSeconds:      int64(iv.Boost / time.Second),
		},
		Entities: s.entityMetrics(),
	}
	if !usage.LastCall.IsZero() {
		metrics.Vendor.LastCall = usage.LastCall.UTC().Format(time.RFC3339)
	}
	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}

	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) entityMetrics() EntityMetrics {
	store := s.bridge.Store()
	m := EntityMetrics{ByType: make(map[string]int)}

	for _, id := range store.IDs() {
		rec, err := store.Get(id)
		if err != nil {
			continue
		}
		m.Total++
		if t := rec.Type(); t != "" {
			m.ByType[string(t)]++
		}
		if rec.Availability == entity.Offline {
			m.Offline++
		}
		if s.bridge.Boosted(id) {
			m.Boosted++
		}
	}
	return m
}
