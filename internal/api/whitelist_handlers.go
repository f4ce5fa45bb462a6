package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TheMich157/whitelisthub/internal/audit"
	"github.com/TheMich157/whitelisthub/internal/mainloop"
	"github.com/TheMich157/whitelisthub/internal/whitelist"
)

type usernameRequest struct {
	Username string `json:"username"`
}

// AddResponse is returned by POST /api/whitelist/add.
type AddResponse struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Username string         `json:"username"`
	UUID     string         `json:"uuid,omitempty"`
	Mode     whitelist.Mode `json:"mode"`
}

// RemoveResponse is returned by DELETE /api/whitelist/remove.
type RemoveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusResponse is returned by GET /api/whitelist/status.
type StatusResponse struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Users   []string       `json:"users"`
	Mode    whitelist.Mode `json:"mode"`
}

// readUsername decodes the request body. It writes the error response itself
// and reports false on failure.
func (s *Server) readUsername(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req usernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return "", false
		}
		WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return "", false
	}
	if req.Username == "" {
		WriteError(w, http.StatusBadRequest, "Username required")
		return "", false
	}
	return req.Username, true
}

func (s *Server) actorContext(r *http.Request) context.Context {
	return whitelist.WithActor(r.Context(), whitelist.Actor{Source: "api", IP: clientIP(r, s.trustProxy)})
}

// writeStoreError maps a store or loop error onto the response.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, mainloop.ErrStopped) {
		WriteError(w, http.StatusServiceUnavailable, "Service shutting down")
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		WriteError(w, http.StatusServiceUnavailable, "Request cancelled")
		return
	}
	code := whitelist.Code(err)
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		s.logger.Error("whitelist operation failed", "error", err)
	}
	WriteError(w, code, whitelist.PublicMessage(err))
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	name, ok := s.readUsername(w, r)
	if !ok {
		return
	}

	var entry *whitelist.Entry
	err := s.loop.Call(s.actorContext(r), func(ctx context.Context) error {
		var err error
		entry, err = s.store.Add(ctx, name)
		return err
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	resp := AddResponse{
		Success:  true,
		Message:  entry.Name + " added to whitelist",
		Username: entry.Name,
		UUID:     entry.UUID,
		Mode:     s.mode,
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	name, ok := s.readUsername(w, r)
	if !ok {
		return
	}

	err := s.loop.Call(s.actorContext(r), func(ctx context.Context) error {
		return s.store.Remove(ctx, name)
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, RemoveResponse{Success: true, Message: name + " removed from whitelist"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, s.trustProxy)
	st, err := s.store.List(r.Context())
	s.recordStatus(r.Context(), ip, err)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	users := st.Users
	if users == nil {
		users = []string{}
	}
	WriteJSON(w, http.StatusOK, StatusResponse{Success: true, Count: st.Count, Users: users, Mode: s.mode})
}

func (s *Server) recordStatus(ctx context.Context, ip string, err error) {
	details := map[string]any{"ip": ip, "success": err == nil}
	if err != nil {
		details["error"] = whitelist.PublicMessage(err)
	}
	s.logger.Audit(audit.ActionStatus, "", details)
	if s.audit == nil {
		return
	}
	evt := audit.Event{Source: "api", Action: audit.ActionStatus, Success: err == nil, IP: ip}
	if err != nil {
		evt.Details = map[string]any{"error": whitelist.PublicMessage(err)}
	}
	if werr := s.audit.Write(context.WithoutCancel(ctx), evt); werr != nil {
		s.logger.Error("failed to write audit event", "action", audit.ActionStatus, "error", werr)
	}
}
