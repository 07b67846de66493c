// Package maintenance exposes the cron-triggered retention sweeps over HTTP.
// The endpoint is idempotent and batch-bounded, so an external scheduler can
// call it as often as it likes.
package maintenance

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"auth-service/internal/auth"
	"auth-service/internal/observability"
)

// Sweep is one named cleanup pass. Run returns the number of rows removed.
type Sweep struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

type Handler struct {
	secret string
	sweeps []Sweep
	logger *observability.Logger
}

func NewHandler(secret string, sweeps []Sweep, logger *observability.Logger) *Handler {
	return &Handler{secret: secret, sweeps: sweeps, logger: logger}
}

// Cleanup runs every sweep and reports per-sweep counts. A failing sweep is
// reported but does not stop the others.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		auth.WriteError(w, http.StatusUnauthorized, "invalid cron secret")
		return
	}

	deleted := make(map[string]int64, len(h.sweeps))
	failures := make(map[string]string)

	for _, sweep := range h.sweeps {
		count, err := sweep.Run(r.Context())
		if err != nil {
			h.logger.Error("cleanup_sweep_failed", map[string]any{
				"sweep": sweep.Name,
				"error": err.Error(),
			})
			failures[sweep.Name] = err.Error()
			continue
		}
		deleted[sweep.Name] = count
	}

	h.logger.Info("cleanup_completed", map[string]any{
		"deleted": deleted,
		"failed":  len(failures),
	})

	status := http.StatusOK
	response := map[string]any{"success": len(failures) == 0, "deleted": deleted}
	if len(failures) > 0 {
		status = http.StatusInternalServerError
		response["failures"] = failures
	}
	auth.WriteJSON(w, status, response)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		// No secret configured means the route is disabled.
		return false
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	presented, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(h.secret)) == 1
}
