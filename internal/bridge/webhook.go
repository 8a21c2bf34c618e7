package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/takenap/adlib/internal/library"
)

// Ingestor applies inbound webhook payloads to the ad library.
type Ingestor struct {
	ads *library.AdService
}

func NewIngestor(ads *library.AdService) *Ingestor {
	return &Ingestor{ads: ads}
}

// ActionPayload is the command-style inbound shape.
type ActionPayload struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// ResultsPayload is the batch shape pushed after a scraping run finishes.
type ResultsPayload struct {
	JobID   string            `json:"job_id"`
	AdsData []library.AdInput `json:"ads_data"`
}

// IngestReport counts the outcome of a batch. Failed rows are logged and
// skipped so one bad row never aborts the rest of the batch.
type IngestReport struct {
	Received int `json:"received"`
	Inserted int `json:"inserted"`
	Failed   int `json:"failed"`
}

// HandleAction processes a single-command payload.
func (i *Ingestor) HandleAction(ctx context.Context, payload ActionPayload) (any, int, error) {
	switch payload.Action {
	case "create_ad":
		var input library.AdInput
		if err := json.Unmarshal(payload.Data, &input); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("decode ad data: %w", err)
		}
		ad, status, err := i.ads.Create(ctx, input)
		if err != nil {
			return nil, status, err
		}
		return ad, http.StatusCreated, nil

	case "update_ad":
		var input struct {
			ID int64 `json:"id"`
			library.AdInput
		}
		if err := json.Unmarshal(payload.Data, &input); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("decode ad data: %w", err)
		}
		ad, status, err := i.ads.Update(ctx, input.ID, input.AdInput)
		if err != nil {
			return nil, status, err
		}
		return ad, http.StatusOK, nil

	case "get_ads":
		var filter library.ListFilter
		if len(payload.Data) > 0 {
			if err := json.Unmarshal(payload.Data, &filter); err != nil {
				return nil, http.StatusBadRequest, fmt.Errorf("decode filter: %w", err)
			}
		}
		ads, status, err := i.ads.List(ctx, filter)
		if err != nil {
			return nil, status, err
		}
		return ads, http.StatusOK, nil

	default:
		return nil, http.StatusBadRequest, fmt.Errorf("unknown action %q", payload.Action)
	}
}

// HandleResults upserts a scraping batch row by row, continuing past
// individual failures.
func (i *Ingestor) HandleResults(ctx context.Context, payload ResultsPayload) (*IngestReport, int, error) {
	report := &IngestReport{Received: len(payload.AdsData)}
	if report.Received == 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("ads_data is empty")
	}

	for idx, input := range payload.AdsData {
		if payload.JobID != "" && input.JobID == nil {
			jobID := payload.JobID
			input.JobID = &jobID
		}
		if _, err := i.ads.UpsertByArchiveID(ctx, input); err != nil {
			report.Failed++
			slog.Warn("ingest row failed", "job_id", payload.JobID, "index", idx, "error", err)
			continue
		}
		report.Inserted++
	}
	return report, http.StatusOK, nil
}
