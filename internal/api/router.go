package api

import (
	"errors"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/govee2mqtt/internal/auth"
	"github.com/nerrad567/govee2mqtt/internal/entity"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware(auth.ScopeRead))

			r.Get("/metrics", s.handleMetrics)
			r.Get("/entities", s.handleListEntities)
			r.Get("/entities/{id}", s.handleGetEntity)
			r.Get("/ws", s.handleWebSocket)

			r.With(s.authMiddleware(auth.ScopeControl)).Post("/devices/refresh", s.handleRefreshDevices)
		})
	})

	return r
}

// handleHealth reports 200 while the scheduler runs and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, code := "ok", http.StatusOK
	if !s.bridge.Running() {
		status, code = "stopped", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":             status,
		"version":            s.version,
		"discovery_complete": s.bridge.DiscoveryComplete(),
	})
}

// EntityView is the JSON rendering of one entity record.
type EntityView struct {
	ID           string               `json:"id"`
	RawID        string               `json:"raw_id,omitempty"`
	SKU          string               `json:"sku,omitempty"`
	Type         string               `json:"type,omitempty"`
	Name         string               `json:"name,omitempty"`
	Availability string               `json:"availability,omitempty"`
	Discovered   bool                 `json:"discovered"`
	Boosted      bool                 `json:"boosted"`
	Modes        []string             `json:"modes,omitempty"`
	Light        *entity.LightState   `json:"light,omitempty"`
	Switch       *entity.SwitchState  `json:"switch,omitempty"`
	Sensor       *entity.SensorState  `json:"sensor,omitempty"`
	Meta         *entity.MetaState    `json:"meta,omitempty"`
	Service      *entity.ServiceState `json:"service,omitempty"`
}

func (s *Server) entityView(rec entity.Record) EntityView {
	v := EntityView{
		ID:           rec.ID,
		RawID:        rec.Internal.RawID,
		SKU:          rec.Internal.SKU,
		Type:         string(rec.Type()),
		Availability: rec.Availability,
		Discovered:   rec.Discovered(),
		Boosted:      s.bridge.Boosted(rec.ID),
		Light:        rec.Light,
		Switch:       rec.Switch,
		Sensor:       rec.Sensor,
		Meta:         rec.Meta,
		Service:      rec.Service,
	}
	if rec.Component != nil {
		v.Name = rec.Component.Name
	}
	for mode := range rec.Modes {
		v.Modes = append(v.Modes, mode)
	}
	slices.Sort(v.Modes)
	return v
}

// handleListEntities lists every entity, optionally filtered by ?type=.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	store := s.bridge.Store()
	filter := r.URL.Query().Get("type")

	views := make([]EntityView, 0, store.Len())
	for _, id := range store.IDs() {
		rec, err := store.Get(id)
		if err != nil {
			// Removed between IDs and Get.
			continue
		}
		if filter != "" && string(rec.Type()) != filter {
			continue
		}
		views = append(views, s.entityView(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": views,
		"count":    len(views),
	})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.bridge.Store().Get(id)
	if errors.Is(err, entity.ErrNotFound) {
		writeNotFound(w, "entity not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to load entity")
		return
	}

	writeJSON(w, http.StatusOK, s.entityView(rec))
}

// handleRefreshDevices queues a device list pass followed by a full
// rediscovery, as the refresh button in Home Assistant does.
func (s *Server) handleRefreshDevices(w http.ResponseWriter, _ *http.Request) {
	if !s.bridge.Running() {
		writeUnavailable(w, "bridge is not running")
		return
	}

	s.bridge.RefreshDeviceList()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
