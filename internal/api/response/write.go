package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes data with status and disables caching
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// HealthHandler answers liveness probes for component
func HealthHandler(component string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, Health{Status: "ok", Component: component})
	}
}
