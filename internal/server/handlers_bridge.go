package server

import (
	"encoding/json"
	"net/http"

	"github.com/takenap/adlib/internal/bridge"
	"github.com/takenap/adlib/internal/middleware"
)

// ---------- Outbound bridge handlers (bearer) ----------

func (s *Server) handleParseMetaLink(w http.ResponseWriter, r *http.Request) {
	var req bridge.ParseLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	userID := middleware.GetUserID(r)
	req.UserID = userID

	result, status, err := s.makeClient.ParseMetaLink(r.Context(), req)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &userID, "parse_meta_link", "job", result.JobID, r, map[string]interface{}{"page_id": result.PageID})
	writeJSON(w, status, result)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req bridge.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	response, status, err := s.makeClient.Generate(r.Context(), req)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	userID := middleware.GetUserID(r)
	design, err := s.designService.Record(r.Context(), &userID, req, response)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), &userID, "generate_design", "design", design.ID, r, nil)
	writeJSON(w, status, design)
}

// ---------- Inbound webhook handlers (x-api-key) ----------

func (s *Server) handleWebhookAction(w http.ResponseWriter, r *http.Request) {
	var payload bridge.ActionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, status, err := s.ingestor.HandleAction(r.Context(), payload)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), nil, "webhook_"+payload.Action, "ad", "", r, nil)
	writeJSON(w, status, result)
}

func (s *Server) handleWebhookResults(w http.ResponseWriter, r *http.Request) {
	var payload bridge.ResultsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	report, status, err := s.ingestor.HandleResults(r.Context(), payload)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.auditService.Log(r.Context(), nil, "webhook_meta_results", "ad_batch", payload.JobID, r, map[string]interface{}{
		"received": report.Received,
		"inserted": report.Inserted,
		"failed":   report.Failed,
	})
	writeJSON(w, status, report)
}
