package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdaptiveDesign records one generation request and what the automation
// platform returned for it.
type AdaptiveDesign struct {
	ID         string          `json:"id"`
	UserID     *string         `json:"user_id"`
	CreativeID *string         `json:"creative_id"`
	FileName   string          `json:"file_name"`
	UserPrompt string          `json:"user_prompt"`
	Response   json.RawMessage `json:"response"`
	CreatedAt  time.Time       `json:"created_at"`
}

type DesignService struct {
	db *pgxpool.Pool
}

func NewDesignService(db *pgxpool.Pool) *DesignService {
	return &DesignService{db: db}
}

// Record stores a completed generation round-trip. The uploaded file itself
// is not persisted, only its name and the prompt.
func (s *DesignService) Record(ctx context.Context, userID *string, req GenerateRequest, response json.RawMessage) (*AdaptiveDesign, error) {
	var creativeID *string
	if req.CreativeID != "" {
		creativeID = &req.CreativeID
	}
	d := AdaptiveDesign{
		ID:         uuid.NewString(),
		UserID:     userID,
		CreativeID: creativeID,
		FileName:   req.FileName,
		UserPrompt: req.UserPrompt,
		Response:   response,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO adaptive_designs (id, user_id, creative_id, file_name, user_prompt, response)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, d.ID, d.UserID, d.CreativeID, d.FileName, d.UserPrompt, string(d.Response)).Scan(&d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record design: %w", err)
	}
	return &d, nil
}

// ListForUser returns a user's generation history, newest first.
func (s *DesignService) ListForUser(ctx context.Context, userID string) ([]AdaptiveDesign, int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, creative_id, file_name, user_prompt, response, created_at
		FROM adaptive_designs WHERE user_id = $1 ORDER BY created_at DESC LIMIT 100
	`, userID)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("query designs: %w", err)
	}
	defer rows.Close()

	var designs []AdaptiveDesign
	for rows.Next() {
		var d AdaptiveDesign
		var response string
		if err := rows.Scan(&d.ID, &d.UserID, &d.CreativeID, &d.FileName, &d.UserPrompt, &response, &d.CreatedAt); err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("scan design: %w", err)
		}
		d.Response = json.RawMessage(response)
		designs = append(designs, d)
	}
	if designs == nil {
		designs = []AdaptiveDesign{}
	}
	return designs, http.StatusOK, nil
}
