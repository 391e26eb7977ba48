package api

import (
	"io"
	"net/http"

	"mustody-console/core/push"
)

func (s *Server) subscribePush(w http.ResponseWriter, r *http.Request) {
	if s.push == nil {
		writeJSON(w, http.StatusOK, map[string]any{"state": push.StateUnsupported})
		return
	}
	res := s.push.Subscribe(r.Context())
	resp := map[string]any{"state": res.State}
	if res.Subscription != nil {
		resp["endpoint"] = res.Subscription.Endpoint
	}
	code := http.StatusOK
	if res.State == push.StateFailed {
		code = http.StatusBadGateway
		resp["error"] = res.Err.Error()
	}
	writeJSON(w, code, resp)
}

// pushEvent is where the push service delivers payloads for this device.
func (s *Server) pushEvent(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONPlain(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return
	}
	id := s.displays.Push(push.RenderEvent(raw))
	writeJSONPlain(w, http.StatusAccepted, map[string]int{"id": id})
}

func (s *Server) pendingDisplays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.displays.Pending()})
}

type clickPayload struct {
	ID     int    `json:"id"`
	Action string `json:"action"`
}

func (s *Server) clickDisplay(w http.ResponseWriter, r *http.Request) {
	var p clickPayload
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	path, navigate, ok := s.displays.Click(p.ID, p.Action, s.cfg.Push.DashboardPath)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	resp := map[string]any{"closed": true}
	if navigate {
		resp["navigate"] = path
	}
	writeJSON(w, http.StatusOK, resp)
}
