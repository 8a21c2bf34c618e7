package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/takenap/adlib/internal/library"
	"github.com/takenap/adlib/internal/middleware"
	"github.com/takenap/adlib/internal/storage"
)

// ---------- Ad handlers ----------

func (s *Server) handleListAds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	filter := library.ListFilter{
		PageName:      q.Get("page_name"),
		DisplayFormat: q.Get("display_format"),
		Search:        q.Get("search"),
		Tag:           q.Get("tag"),
		JobID:         q.Get("job_id"),
		Limit:         limit,
		Offset:        offset,
	}

	ads, status, err := s.adService.List(r.Context(), filter)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, ads)
}

func (s *Server) handleGetAd(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ad ID"})
		return
	}

	ad, status, err := s.adService.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, ad)
}

func (s *Server) handleCreateAd(w http.ResponseWriter, r *http.Request) {
	var input library.AdInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ad, status, err := s.adService.Create(r.Context(), input)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	userID := middleware.GetUserID(r)
	s.auditService.Log(r.Context(), &userID, "create_ad", "ad", strconv.FormatInt(ad.ID, 10), r, nil)
	writeJSON(w, status, ad)
}

func (s *Server) handleUpdateAd(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ad ID"})
		return
	}

	var input library.AdInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ad, status, err := s.adService.Update(r.Context(), id, input)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	userID := middleware.GetUserID(r)
	s.auditService.Log(r.Context(), &userID, "update_ad", "ad", r.PathValue("id"), r, nil)
	writeJSON(w, status, ad)
}

func (s *Server) handleUpdateAdTags(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ad ID"})
		return
	}

	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ad, status, err := s.adService.UpdateTags(r.Context(), id, req.Tags)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	userID := middleware.GetUserID(r)
	s.auditService.Log(r.Context(), &userID, "update_ad_tags", "ad", r.PathValue("id"), r, map[string]interface{}{"tags": req.Tags})
	writeJSON(w, status, ad)
}

func (s *Server) handleDeleteAd(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ad ID"})
		return
	}

	status, err := s.adService.Delete(r.Context(), id)
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	userID := middleware.GetUserID(r)
	s.auditService.Log(r.Context(), &userID, "delete_ad", "ad", r.PathValue("id"), r, nil)
	writeJSON(w, status, map[string]string{"status": "deleted"})
}

// handleExportAds streams a CSV snapshot for either a whole import batch
// (job_id) or an explicit comma-separated id list.
func (s *Server) handleExportAds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobID := q.Get("job_id")
	idsParam := q.Get("ids")

	var ads []library.Ad
	var err error
	switch {
	case jobID != "":
		ads, err = s.adService.GetByJob(r.Context(), jobID)
	case idsParam != "":
		var ids []int64
		for _, part := range strings.Split(idsParam, ",") {
			id, parseErr := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if parseErr != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ids must be a comma-separated list of numbers"})
				return
			}
			ids = append(ids, id)
		}
		ads, err = s.adService.GetByIDs(r.Context(), ids)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job_id or ids query parameter is required"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ads_export.csv"`)
	w.Write(library.ExportCSV(ads))
}

func (s *Server) handleArchiveIDReport(w http.ResponseWriter, r *http.Request) {
	report, status, err := s.adService.CheckArchiveIDs(r.Context())
	if err != nil {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, status, report)
}

// ---------- Storage handlers ----------

// Signing TTL overrides are clamped so a caller cannot mint near-permanent
// links or ones that expire before they can be used.
const (
	minSignTTL = 60 * time.Second
	maxSignTTL = 7 * 24 * time.Hour
)

// signTTL resolves the effective signed-URL lifetime. A zero override means
// the configured default.
func (s *Server) signTTL(overrideSeconds int) time.Duration {
	ttl := time.Duration(s.signedURLTTL) * time.Second
	if overrideSeconds > 0 {
		ttl = time.Duration(overrideSeconds) * time.Second
	}
	if ttl < minSignTTL {
		ttl = minSignTTL
	}
	if ttl > maxSignTTL {
		ttl = maxSignTTL
	}
	return ttl
}

// handleSignImage resolves a signed URL for a single object. The POST body
// and the GET query carry the same parameters. Default-lifetime requests go
// through the URL cache; a per-request expiry is signed directly.
func (s *Server) handleSignImage(w http.ResponseWriter, r *http.Request) {
	var bucket, objectPath string
	var expiresIn int
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		bucket = q.Get("bucket")
		objectPath = q.Get("path")
		expiresIn, _ = strconv.Atoi(q.Get("expires"))
	} else {
		var req struct {
			Bucket    string `json:"bucket"`
			Path      string `json:"path"`
			ExpiresIn int    `json:"expiresIn"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		bucket, objectPath, expiresIn = req.Bucket, req.Path, req.ExpiresIn
	}

	if objectPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}
	if bucket == "" {
		bucket = s.imageBucket
	}

	var url string
	if expiresIn > 0 {
		var err error
		url, err = s.media.SignObjectURL(r.Context(), bucket, objectPath, s.signTTL(expiresIn))
		if err != nil {
			// Same soft-fail as the cache: hand back the unsigned location.
			url = s.media.PublicURL(bucket, objectPath)
		}
	} else {
		url = s.urlCache.Resolve(r.Context(), bucket, objectPath)
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url, "path": objectPath})
}

// handleFindSignedURL probes base.<ext> per extension in order and signs the
// first object that exists. A miss is not an error: the response carries a
// null url plus every path that was probed.
func (s *Server) handleFindSignedURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket     string   `json:"bucket"`
		Base       string   `json:"base"`
		Extensions []string `json:"extensions"`
		ExpiresIn  int      `json:"expiresIn"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Base == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "base is required"})
		return
	}
	if req.Bucket == "" {
		req.Bucket = s.imageBucket
	}

	found, tried, err := s.media.FindFirst(r.Context(), req.Bucket, req.Base, req.Extensions,
		s.signTTL(req.ExpiresIn))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := struct {
		URL   *string  `json:"url"`
		Path  string   `json:"path,omitempty"`
		Tried []string `json:"tried"`
	}{Tried: tried}
	if found != nil {
		resp.URL = &found.URL
		resp.Path = found.Path
	}
	writeJSON(w, http.StatusOK, resp)
}

// bucketCandidates parses a comma-separated bucket list, falling back to the
// defaults when the parameter is empty or holds no usable names.
func bucketCandidates(param string, defaults []string) []string {
	var buckets []string
	for _, part := range strings.Split(param, ",") {
		if part = strings.TrimSpace(part); part != "" {
			buckets = append(buckets, part)
		}
	}
	if len(buckets) == 0 {
		return defaults
	}
	return buckets
}

// handleStorageProxy streams raw object bytes. Responses are immutable: a
// stored creative never changes under the same path.
func (s *Server) handleStorageProxy(w http.ResponseWriter, r *http.Request) {
	objectPath := r.URL.Query().Get("path")
	if objectPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}

	buckets := bucketCandidates(r.URL.Query().Get("bucket"), []string{s.imageBucket, s.videoBucket})

	res, err := s.media.Fetch(r.Context(), buckets, objectPath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "object not found"})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "storage unavailable"})
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(res.Body)
}
