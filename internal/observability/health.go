package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker tracks per-subsystem readiness for the HTTP probes. The
// service is ready only when every registered subsystem is.
type HealthChecker struct {
	mu         sync.RWMutex
	subsystems map[string]bool
	startTime  time.Time
}

// NewHealthChecker creates a health checker with no subsystems registered.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		subsystems: make(map[string]bool),
		startTime:  time.Now(),
	}
}

// SetSubsystem records one subsystem's readiness (e.g. "postgres", "nats").
func (h *HealthChecker) SetSubsystem(name string, ready bool) {
	h.mu.Lock()
	h.subsystems[name] = ready
	h.mu.Unlock()
}

// SetReady flips the engine subsystem, which gates the aggregate along
// with any other registered subsystems.
func (h *HealthChecker) SetReady(ready bool) {
	h.SetSubsystem("engine", ready)
}

// IsReady reports whether every registered subsystem is ready. A checker
// with no subsystems is not ready.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.subsystems) == 0 {
		return false
	}
	for _, ok := range h.subsystems {
		if !ok {
			return false
		}
	}
	return true
}

// LivenessHandler returns HTTP 200 if the process is alive.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 once every subsystem reports ready,
// 503 otherwise, with the per-subsystem breakdown either way.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	detail := make(map[string]bool, len(h.subsystems))
	for name, ok := range h.subsystems {
		detail[name] = ok
	}
	h.mu.RUnlock()

	ready := h.IsReady()
	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     status,
		"subsystems": detail,
	})
}
