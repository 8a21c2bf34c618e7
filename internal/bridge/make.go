package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// metaLibraryMarker must appear in every submitted ad library link.
const metaLibraryMarker = "facebook.com/ads/library"

// product routes a known page_id to its own scraping webhook. Unknown pages
// fall back to the default webhook from configuration.
type product struct {
	Key        string
	Name       string
	WebhookURL string
}

// productRouting is the static page_id routing table. Webhook URLs here are
// optional; an empty URL routes through the configured default.
var productRouting = map[string]product{
	"104899348747604": {Key: "takenap", Name: "TakeNap"},
	"113279710130657": {Key: "takenap_eu", Name: "TakeNap EU"},
}

// MakeClient forwards scraping and generation requests to the external
// automation platform. Delivery is fire-and-forget: success means the
// webhook accepted the POST, not that ads eventually arrive.
type MakeClient struct {
	webhookURL  string
	generateURL string
	apiKey      string
	httpClient  *http.Client
}

func NewMakeClient(webhookURL, generateURL, apiKey string) *MakeClient {
	return &MakeClient{
		webhookURL:  webhookURL,
		generateURL: generateURL,
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// ParseLinkRequest is the UI's submission of an ad library link.
type ParseLinkRequest struct {
	MetaLink     string `json:"meta_link"`
	CreativeType string `json:"creative_type"`
	Limit        int    `json:"limit"`
	UserID       string `json:"user_id"`
}

// ParseLinkResult reports the forwarded job.
type ParseLinkResult struct {
	JobID       string `json:"job_id"`
	PageID      string `json:"page_id,omitempty"`
	ProductKey  string `json:"product_key,omitempty"`
	ProductName string `json:"product_name,omitempty"`
}

// validateMetaLink checks the submitted URL points at the ad library.
func validateMetaLink(link string) error {
	if strings.TrimSpace(link) == "" {
		return fmt.Errorf("meta_link is required")
	}
	if !strings.Contains(link, metaLibraryMarker) {
		return fmt.Errorf("link must be a facebook.com/ads/library URL")
	}
	return nil
}

// extractPageID pulls view_all_page_id out of the link's query string.
func extractPageID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("view_all_page_id")
}

// resolveWebhook picks the destination webhook for a page_id.
func (c *MakeClient) resolveWebhook(pageID string) (string, product) {
	p, ok := productRouting[pageID]
	if !ok {
		return c.webhookURL, product{}
	}
	if p.WebhookURL != "" {
		return p.WebhookURL, p
	}
	return c.webhookURL, p
}

// ParseMetaLink validates an ad library link and forwards a scraping request
// to the automation platform.
func (c *MakeClient) ParseMetaLink(ctx context.Context, req ParseLinkRequest) (*ParseLinkResult, int, error) {
	if err := validateMetaLink(req.MetaLink); err != nil {
		return nil, http.StatusBadRequest, err
	}
	if c.webhookURL == "" {
		return nil, http.StatusServiceUnavailable, fmt.Errorf("scraping webhook is not configured")
	}

	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	pageID := extractPageID(req.MetaLink)
	destination, prod := c.resolveWebhook(pageID)

	jobID := uuid.NewString()
	body := map[string]any{
		"action":        "parse_meta_link",
		"meta_link":     req.MetaLink,
		"creative_type": req.CreativeType,
		"limit":         limit,
		"user_id":       req.UserID,
		"job_id":        jobID,
		"product_key":   prod.Key,
		"product_name":  prod.Name,
		"page_id":       pageID,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"source":        "adlib",
	}

	if err := c.post(ctx, destination, body); err != nil {
		return nil, http.StatusBadGateway, err
	}

	return &ParseLinkResult{
		JobID:       jobID,
		PageID:      pageID,
		ProductKey:  prod.Key,
		ProductName: prod.Name,
	}, http.StatusOK, nil
}

// GenerateRequest asks the automation platform to produce an adapted creative.
type GenerateRequest struct {
	Type       string `json:"type"`
	FileName   string `json:"file_name"`
	FileBase64 string `json:"file_base64"`
	UserPrompt string `json:"user_prompt"`
	CreativeID string `json:"creative_id"`
}

// Generate forwards a generation request and returns the webhook's raw
// response body to the caller.
func (c *MakeClient) Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, int, error) {
	if req.UserPrompt == "" {
		return nil, http.StatusBadRequest, fmt.Errorf("user_prompt is required")
	}
	if c.generateURL == "" {
		return nil, http.StatusServiceUnavailable, fmt.Errorf("generation webhook is not configured")
	}

	body := map[string]any{
		"type": req.Type,
		"payload": map[string]any{
			"file_name":   req.FileName,
			"file_base64": req.FileBase64,
			"user_prompt": req.UserPrompt,
			"creative_id": req.CreativeID,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.generateURL, bytes.NewReader(payload))
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, http.StatusBadGateway, fmt.Errorf("generation webhook unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, http.StatusBadGateway, fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode >= 400 {
		slog.Warn("generation webhook rejected request", "status", resp.StatusCode)
		return nil, http.StatusBadGateway, fmt.Errorf("generation webhook returned %d", resp.StatusCode)
	}
	if len(raw) == 0 || !json.Valid(raw) {
		raw = []byte(`{}`)
	}
	return raw, http.StatusOK, nil
}

// post sends a JSON body and treats any non-2xx status as failure.
func (c *MakeClient) post(ctx context.Context, destination string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
