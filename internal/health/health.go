package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/logs"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/models"
)

// Check — одна именованная readiness-проверка.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

const checkTimeout = 3 * time.Second

// RegisterRoutes — базовый liveness.
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet)
}

// RegisterRoutesWithChecks — liveness + readiness по списку проверок.
func RegisterRoutesWithChecks(r *mux.Router, checks ...Check) {
	RegisterRoutes(r)
	r.HandleFunc("/readyz", readiness(checks)).Methods(http.MethodGet)
}

func readiness(checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		results := Run(ctx, checks)
		status := http.StatusOK
		for _, res := range results {
			if !res.OK {
				status = http.StatusServiceUnavailable
				logs.Logger.WithField("check", res.Name).Warnf("readiness failed: %s", res.Error)
			}
		}
		models.WriteJSON(w, status, map[string]any{"checks": results})
	}
}

// Run выполняет проверки по очереди.
func Run(ctx context.Context, checks []Check) []models.CheckResult {
	out := make([]models.CheckResult, 0, len(checks))
	for _, c := range checks {
		res := models.CheckResult{Name: c.Name, OK: true}
		if err := c.Fn(ctx); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		out = append(out, res)
	}
	return out
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}
