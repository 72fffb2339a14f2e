package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Probe проверяет готовность зависимости (store, брокер и т.д.)
type Probe func(ctx context.Context) error

// Handler возвращает health check endpoint.
// 200 {"status":"ok"} если probe не задан или прошёл;
// 503 {"status":"not ready"} если probe вернул ошибку или не уложился в 2 секунды.
func Handler(probe Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if probe != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := probe(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
