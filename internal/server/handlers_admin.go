package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/takenap/adlib/internal/access"
	"github.com/takenap/adlib/internal/middleware"
)

// ---------- Admin flag handlers (x-admin-secret) ----------

func (s *Server) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	records, status, err := s.adminService.List(r.Context())
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, records)
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rec, status, err := s.adminService.Add(r.Context(), req.Email)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), nil, "admin_add", "admin", rec.Email, r, nil)
	writeJSON(w, status, rec)
}

func (s *Server) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	status, err := s.adminService.RemoveByEmail(r.Context(), req.Email)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), nil, "admin_remove", "admin", req.Email, r, nil)
	writeJSON(w, status, map[string]string{"status": "removed"})
}

func (s *Server) handleBlockAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		Blocked bool   `json:"blocked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	status, err := s.adminService.SetBlocked(r.Context(), req.Email, req.Blocked)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	action := "account_unblock"
	if req.Blocked {
		action = "account_block"
	}
	s.auditService.Log(r.Context(), nil, action, "admin", req.Email, r, nil)
	writeJSON(w, status, map[string]bool{"blocked": req.Blocked})
}

func (s *Server) handleSyncAdmins(w http.ResponseWriter, r *http.Request) {
	result, status, err := s.adminService.Sync(r.Context())
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, result)
}

// ---------- Access profile handlers (bearer) ----------

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, status, err := s.profileService.List(r.Context())
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, profiles)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid profile ID"})
		return
	}

	profile, status, err := s.profileService.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid profile ID"})
		return
	}

	var input access.UpdateProfileInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	actor := s.resolveActor(r)
	profile, status, err := s.profileService.UpdateProfile(r.Context(), actor, id, input)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &actor.UserID, "update_access_profile", "access_profile", r.PathValue("id"), r, nil)
	writeJSON(w, status, profile)
}

// resolveActor builds the mutation actor from the bearer identity. The role
// comes from the caller's own access profile; callers without one act as a
// plain user.
func (s *Server) resolveActor(r *http.Request) access.Actor {
	actor := access.Actor{
		UserID: middleware.GetUserID(r),
		Email:  middleware.GetEmail(r),
		Role:   "user",
	}
	if profile, _, err := s.profileService.GetByEmail(r.Context(), actor.Email); err == nil {
		actor.Role = profile.Role
	}
	return actor
}
