package library

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SharedPersona is a creative persona published under an opaque share token.
// Anyone holding the token can view it; copying requires a signed-in user.
type SharedPersona struct {
	ID          string    `json:"id"`
	ShareToken  string    `json:"share_token"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserPersona is a persona copied into a user's private collection.
type UserPersona struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SourceID    *string   `json:"source_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

type PersonaService struct {
	db *pgxpool.Pool
}

func NewPersonaService(db *pgxpool.Pool) *PersonaService {
	return &PersonaService{db: db}
}

// GetShared resolves a persona by its share token.
func (s *PersonaService) GetShared(ctx context.Context, token string) (*SharedPersona, int, error) {
	if token == "" {
		return nil, http.StatusBadRequest, fmt.Errorf("share token is required")
	}
	var p SharedPersona
	err := s.db.QueryRow(ctx, `
		SELECT id, share_token, name, description, content, created_at
		FROM shared_personas WHERE share_token = $1
	`, token).Scan(&p.ID, &p.ShareToken, &p.Name, &p.Description, &p.Content, &p.CreatedAt)
	if err != nil {
		return nil, http.StatusNotFound, fmt.Errorf("persona not found")
	}
	return &p, http.StatusOK, nil
}

// CopyShared clones a shared persona into the caller's private collection.
// Copying the same persona twice yields two independent copies.
func (s *PersonaService) CopyShared(ctx context.Context, userID, token string) (*UserPersona, int, error) {
	shared, status, err := s.GetShared(ctx, token)
	if err != nil {
		return nil, status, err
	}

	up := UserPersona{
		ID:          uuid.NewString(),
		UserID:      userID,
		SourceID:    &shared.ID,
		Name:        shared.Name,
		Description: shared.Description,
		Content:     shared.Content,
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO user_personas (id, user_id, source_id, name, description, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, up.ID, up.UserID, up.SourceID, up.Name, up.Description, up.Content).Scan(&up.CreatedAt)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("copy persona: %w", err)
	}
	return &up, http.StatusCreated, nil
}

// ListMine returns the caller's private personas, newest first.
func (s *PersonaService) ListMine(ctx context.Context, userID string) ([]UserPersona, int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, source_id, name, description, content, created_at
		FROM user_personas WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	var personas []UserPersona
	for rows.Next() {
		var p UserPersona
		if err := rows.Scan(&p.ID, &p.UserID, &p.SourceID, &p.Name, &p.Description, &p.Content, &p.CreatedAt); err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("scan persona: %w", err)
		}
		personas = append(personas, p)
	}
	if personas == nil {
		personas = []UserPersona{}
	}
	return personas, http.StatusOK, nil
}
