package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"mustody-console/core/backend"
	"mustody-console/core/rbac"
	"mustody-console/core/utils"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "login unavailable")
		return
	}
	var p loginPayload
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	res, err := s.auth.Login(r.Context(), backend.LoginRequest{Email: p.Email, Password: p.Password, TOTPCode: p.TOTPCode})
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	if err := s.session.Login(r.Context(), res.Token, res.User); err != nil {
		if s.logger != nil {
			s.logger.Errorf("console login: %v", err)
		}
		writeError(w, http.StatusBadGateway, "session could not be established")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.session.Logout(r.Context())
	s.inbox.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeBackendError(w http.ResponseWriter, err error) {
	var verr *utils.ValidationError
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Err.Error(), "field": verr.Field})
	case errors.Is(err, backend.ErrTwoFactorCodeRequired):
		writeError(w, http.StatusUnauthorized, "2fa_required")
	case errors.Is(err, backend.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Error())
	default:
		if s.logger != nil {
			s.logger.Errorf("backend call: %v", err)
		}
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

func (s *Server) getMenu(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.session.Menu()})
}

// checkAccess resolves a view path through the route guard.
func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if !strings.HasPrefix(path, "/") {
		writeError(w, http.StatusBadRequest, "path must be absolute")
		return
	}
	st := s.session.Snapshot()
	decision, err := s.guard.Check(path, st.Authenticated, st.EffectiveRoles)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("guard %s: %v", path, err)
		}
		writeError(w, http.StatusInternalServerError, "guard failure")
		return
	}
	resp := map[string]any{"path": path, "decision": decision.String()}
	if decision == rbac.RedirectLogin {
		resp["redirect"] = s.cfg.Session.LoginPath
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	fetchedAt, lastErr := s.inbox.Status()
	resp := map[string]any{
		"items":        s.inbox.Items(),
		"unread_count": s.inbox.UnreadCount(),
		"stale":        lastErr != nil,
	}
	if !fetchedAt.IsZero() {
		resp["fetched_at"] = fetchedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	applied := s.inbox.MarkAsRead(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "unread_count": s.inbox.UnreadCount()})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	applied := s.inbox.MarkAllAsRead(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "unread_count": s.inbox.UnreadCount()})
}
