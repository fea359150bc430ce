package node

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lwwdict/internal/lww"
	"lwwdict/internal/payload"
)

type recordJSON struct {
	Key       string          `json:"key"`
	Timestamp int64           `json:"timestamp"`
	Attrs     json.RawMessage `json:"attrs,omitempty"`
	Payload   string          `json:"payload,omitempty"`
}

type stateJSON struct {
	Node   string       `json:"node"`
	Add    []recordJSON `json:"add"`
	Remove []recordJSON `json:"remove"`
}

// renderRecord shows structured payloads as JSON attributes and anything
// else as base64.
func renderRecord(key string, rec lww.Record) recordJSON {
	out := recordJSON{Key: key, Timestamp: int64(rec.Timestamp)}
	if len(rec.Payload) == 0 {
		return out
	}
	if js, err := payload.ToJSON(rec.Payload); err == nil {
		out.Attrs = js
		return out
	}
	out.Payload = base64.StdEncoding.EncodeToString(rec.Payload)
	return out
}

func renderStore(s *lww.RecordStore) []recordJSON {
	out := make([]recordJSON, 0, s.Len())
	s.Range(func(key string, rec lww.Record) bool {
		out = append(out, renderRecord(key, rec))
		return true
	})
	return out
}

// AdminHandler returns the admin HTTP surface of the node.
func (n *Node) AdminHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		st := n.store.Stats()
		n.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"node":       n.cfg.NodeID,
			"add_set":    st.AddSet,
			"remove_set": st.RemoveSet,
			"visible":    st.Visible,
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))

	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		d := n.store.Snapshot()
		n.writeJSON(w, http.StatusOK, stateJSON{
			Node:   n.cfg.NodeID,
			Add:    renderStore(d.AddStore()),
			Remove: renderStore(d.RemoveStore()),
		})
	})

	r.Get("/keys/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		rec, ok := n.store.Get(key)
		if !ok {
			n.writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"key":     key,
				"visible": false,
			})
			return
		}
		n.writeJSON(w, http.StatusOK, map[string]interface{}{
			"visible": true,
			"record":  renderRecord(key, rec),
		})
	})

	r.Get("/peers", func(w http.ResponseWriter, r *http.Request) {
		n.writeJSON(w, http.StatusOK, n.peers.Snapshot())
	})

	r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
		res := n.SyncNow(r.Context())
		failed := make(map[string]string, len(res.Failed))
		for id, err := range res.Failed {
			failed[id] = err.Error()
		}
		n.writeJSON(w, http.StatusOK, map[string]interface{}{
			"selected":       res.Selected,
			"synced":         res.Synced,
			"failed":         failed,
			"pulled_adds":    res.Pulled.Adds,
			"pulled_removes": res.Pulled.Removes,
			"pushed_adds":    res.Pushed.Adds,
			"pushed_removes": res.Pushed.Removes,
		})
	})

	return r
}

func (n *Node) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		level.Warn(n.logger).Log("msg", "failed to write admin response", "err", err)
	}
}
