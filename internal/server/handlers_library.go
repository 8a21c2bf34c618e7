package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/takenap/adlib/internal/middleware"
)

// ---------- Folder handlers ----------

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, status, err := s.folderService.List(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, folders)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	userID := middleware.GetUserID(r)
	folder, status, err := s.folderService.Create(r.Context(), userID, req.Name)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &userID, "create_folder", "folder", folder.ID, r, nil)
	writeJSON(w, status, folder)
}

func (s *Server) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	userID := middleware.GetUserID(r)
	folderID := r.PathValue("id")
	status, err := s.folderService.Rename(r.Context(), userID, folderID, req.Name)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, map[string]string{"status": "renamed"})
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	folderID := r.PathValue("id")

	status, err := s.folderService.Delete(r.Context(), userID, folderID)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &userID, "delete_folder", "folder", folderID, r, nil)
	writeJSON(w, status, map[string]string{"status": "deleted"})
}

func (s *Server) handleListFolderItems(w http.ResponseWriter, r *http.Request) {
	ads, status, err := s.folderService.ListItems(r.Context(), middleware.GetUserID(r), r.PathValue("id"))
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, ads)
}

func (s *Server) handleAddFolderItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdID int64 `json:"ad_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	userID := middleware.GetUserID(r)
	status, err := s.folderService.AddItem(r.Context(), userID, r.PathValue("id"), req.AdID)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, map[string]string{"status": "added"})
}

func (s *Server) handleRemoveFolderItem(w http.ResponseWriter, r *http.Request) {
	adID, err := strconv.ParseInt(r.PathValue("adId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ad ID"})
		return
	}

	userID := middleware.GetUserID(r)
	status, err := s.folderService.RemoveItem(r.Context(), userID, r.PathValue("id"), adID)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, map[string]string{"status": "removed"})
}

func (s *Server) handleTransferFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewOwnerEmail string `json:"new_owner_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	userID := middleware.GetUserID(r)
	folderID := r.PathValue("id")
	status, err := s.folderService.Transfer(r.Context(), userID, folderID, req.NewOwnerEmail)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &userID, "transfer_folder", "folder", folderID, r, map[string]interface{}{"new_owner": req.NewOwnerEmail})
	writeJSON(w, status, map[string]string{"status": "transferred"})
}

// ---------- Persona handlers ----------

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas, status, err := s.personaService.ListMine(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, personas)
}

func (s *Server) handleGetSharedPersona(w http.ResponseWriter, r *http.Request) {
	persona, status, err := s.personaService.GetShared(r.Context(), r.PathValue("token"))
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, persona)
}

func (s *Server) handleCopySharedPersona(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	copied, status, err := s.personaService.CopyShared(r.Context(), userID, r.PathValue("token"))
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &userID, "copy_persona", "persona", copied.ID, r, nil)
	writeJSON(w, status, copied)
}

// ---------- Design history ----------

func (s *Server) handleListDesigns(w http.ResponseWriter, r *http.Request) {
	designs, status, err := s.designService.ListForUser(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, designs)
}
