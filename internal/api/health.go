package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/joyautomation/mantle/internal/alarm"
	"github.com/joyautomation/mantle/internal/eventbus"
	"github.com/joyautomation/mantle/internal/hotcache"
	"github.com/joyautomation/mantle/internal/mqttclient"
	"github.com/joyautomation/mantle/internal/storage"
)

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// HealthHandler reports the liveness of every optional and mandatory
// collaborator: storage is mandatory, MQTT/hot cache/alarm webhook are
// each individually optional.
type HealthHandler struct {
	store     *storage.Store
	mqtt      *mqttclient.Client
	hot       *hotcache.Cache // nil when the hot cache is not configured
	alarms    *alarm.Engine
	bus       *eventbus.Bus
	version   string
	startTime time.Time
}

func NewHealthHandler(store *storage.Store, mqtt *mqttclient.Client, hot *hotcache.Cache, alarms *alarm.Engine, bus *eventbus.Bus, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		store:     store,
		mqtt:      mqtt,
		hot:       hot,
		alarms:    alarms,
		bus:       bus,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.HealthCheck(r.Context()); err != nil {
		checks["storage"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if h.hot != nil {
		checks["hot_cache"] = "ok"
	} else {
		checks["hot_cache"] = "not_configured"
	}

	if h.alarms != nil {
		checks["alarm_engine"] = "ok"
	} else {
		checks["alarm_engine"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
