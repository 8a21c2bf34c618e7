package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/takenap/adlib/internal/access"
	"github.com/takenap/adlib/internal/middleware"
)

// ---------- Auth handlers ----------

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req access.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, status, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.auditService.Log(r.Context(), nil, "register_failed", "user", "", r, map[string]interface{}{"email": req.Email})
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &resp.User.ID, "register", "user", resp.User.ID, r, nil)
	writeJSON(w, status, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req access.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, status, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.auditService.Log(r.Context(), nil, "login_failed", "user", "", r, map[string]interface{}{"email": req.Email})
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &resp.User.ID, "login", "user", resp.User.ID, r, nil)
	writeJSON(w, status, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	user, err := s.authService.GetUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ---------- Access request handlers ----------

func (s *Server) handleCreateAccessRequest(w http.ResponseWriter, r *http.Request) {
	var input access.CreateRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req, status, err := s.requestService.Create(r.Context(), input)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, req)
}

func (s *Server) handleCheckAccessRequest(w http.ResponseWriter, r *http.Request) {
	result, status, err := s.requestService.Check(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, result)
}

func (s *Server) handleListAccessRequests(w http.ResponseWriter, r *http.Request) {
	requests, status, err := s.requestService.List(r.Context())
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, requests)
}

func (s *Server) handleApproveAccessRequest(w http.ResponseWriter, r *http.Request) {
	s.setAccessRequestStatus(w, r, "approve")
}

func (s *Server) handleBlockAccessRequest(w http.ResponseWriter, r *http.Request) {
	s.setAccessRequestStatus(w, r, "block")
}

func (s *Server) setAccessRequestStatus(w http.ResponseWriter, r *http.Request, action string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request ID"})
		return
	}

	var status int
	if action == "approve" {
		status, err = s.requestService.Approve(r.Context(), id)
	} else {
		status, err = s.requestService.Block(r.Context(), id)
	}
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), nil, "access_request_"+action, "access_request", r.PathValue("id"), r, nil)
	writeJSON(w, status, map[string]string{"status": action + "d"})
}
