package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports database reachability.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// BrokerStatus reports MQTT connectivity.
type BrokerStatus interface {
	IsConnected() bool
}

// ActiveCounter reports how many videos are being processed.
type ActiveCounter interface {
	Active() int
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	ActiveVideos  int               `json:"activeVideos"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	db        Pinger
	mqtt      BrokerStatus  // nil when MQTT is not configured
	active    ActiveCounter // may be nil
	storage   string
	version   string
	startTime time.Time
}

func NewHealthHandler(db Pinger, mqtt BrokerStatus, active ActiveCounter, storageType, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		mqtt:      mqtt,
		active:    active,
		storage:   storageType,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Database check
	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	// MQTT check
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

	if h.storage != "" {
		checks["storage"] = h.storage
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.active != nil {
		resp.ActiveVideos = h.active.Active()
	}

	WriteJSON(w, httpStatus, resp)
}
