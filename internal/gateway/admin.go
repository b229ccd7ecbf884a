package gateway

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/flemzord/snapkeep/internal/config"
	"github.com/flemzord/snapkeep/internal/core"
	"gopkg.in/yaml.v3"
)

const redactedValue = "***REDACTED***"

// secretKey matches mapping keys whose values are masked by /api/config.
var secretKey = regexp.MustCompile(`(?i)(secret|token|password|pass|key|auth)`)

type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleGetModules lists the modules compiled into the binary. The optional
// namespace query parameter narrows the list, e.g. ?namespace=store.
func (g *Gateway) handleGetModules() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var infos []core.ModuleInfo
		if ns := r.URL.Query().Get("namespace"); ns != "" {
			infos = core.GetModulesByNamespace(ns)
		} else {
			infos = core.GetModules()
		}

		out := make([]moduleJSON, len(infos))
		for i, info := range infos {
			out[i] = moduleJSON{ID: string(info.ID), Namespace: info.ID.Namespace(), Name: info.ID.Name()}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleGetConfig serves the configuration file as it is on disk now, after
// environment expansion, with secret-looking values masked.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.configPath == "" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "config path not set"})
			return
		}
		cfg, err := config.Load(g.configPath)
		if err != nil {
			g.logger.Warn("config read failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load config"})
			return
		}

		var doc yaml.Node
		if err := doc.Encode(cfg); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to encode config"})
			return
		}
		maskSecrets(&doc)

		var out map[string]any
		if err := doc.Decode(&out); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to encode config"})
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// maskSecrets replaces, in place, every non-empty scalar stored under a
// mapping key that looks like a credential.
func maskSecrets(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if val.Kind == yaml.ScalarNode && val.Value != "" && secretKey.MatchString(key.Value) {
				val.Value = redactedValue
				val.Tag = "!!str"
				continue
			}
			maskSecrets(val)
		}
		return
	}
	for _, child := range n.Content {
		maskSecrets(child)
	}
}

// handleReloadConfig applies the configuration file to the running process.
// A file that fails to load or validate leaves the old config in place and
// is reported as 400.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.reloader == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reload not available"})
			return
		}
		if err := g.reloader.Reload(r.Context()); err != nil {
			g.logger.Error("config reload failed", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		g.logger.Info("config reloaded via api")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
