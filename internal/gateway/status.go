package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime      int64  `json:"uptime_seconds"`
	ActiveTasks int    `json:"active_tasks"`
	Degraded    bool   `json:"degraded"`
	Scheduler   string `json:"scheduler"` // "running" or "unavailable"
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:    int64(time.Since(g.startedAt).Truncate(time.Second) / time.Second),
			Scheduler: "unavailable",
		}
		if g.scheduler != nil {
			resp.Scheduler = "running"
			resp.ActiveTasks = g.scheduler.ActiveTaskCount()
			resp.Degraded = g.scheduler.Degraded()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
