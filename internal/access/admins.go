package access

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminService manages the user_admins table: admin flags and account blocks,
// keyed by unique email. Rows may exist before the user ever registers; Sync
// backfills user_id once the account appears.
type AdminService struct {
	db *pgxpool.Pool
}

func NewAdminService(db *pgxpool.Pool) *AdminService {
	return &AdminService{db: db}
}

type AdminRecord struct {
	ID        int64     `json:"id"`
	UserID    *string   `json:"user_id"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	IsBlocked bool      `json:"is_blocked"`
	CreatedAt time.Time `json:"created_at"`
}

// List returns every user_admins row, oldest first.
func (s *AdminService) List(ctx context.Context) ([]AdminRecord, int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, email, is_admin, is_blocked, created_at
		FROM user_admins
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("query admins: %w", err)
	}
	defer rows.Close()

	var records []AdminRecord
	for rows.Next() {
		var rec AdminRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Email, &rec.IsAdmin, &rec.IsBlocked, &rec.CreatedAt); err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("scan admin: %w", err)
		}
		records = append(records, rec)
	}
	if records == nil {
		records = []AdminRecord{}
	}
	return records, http.StatusOK, nil
}

// Add upserts an admin flag by email. The user does not need to exist yet.
func (s *AdminService) Add(ctx context.Context, email string) (*AdminRecord, int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, http.StatusBadRequest, fmt.Errorf("a valid email is required")
	}

	var rec AdminRecord
	err := s.db.QueryRow(ctx, `
		INSERT INTO user_admins (email, is_admin)
		VALUES ($1, TRUE)
		ON CONFLICT (email) DO UPDATE SET is_admin = TRUE
		RETURNING id, user_id, email, is_admin, is_blocked, created_at
	`, email).Scan(&rec.ID, &rec.UserID, &rec.Email, &rec.IsAdmin, &rec.IsBlocked, &rec.CreatedAt)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("upsert admin: %w", err)
	}
	return &rec, http.StatusOK, nil
}

// RemoveByEmail drops the admin flag. The row stays so a block survives.
func (s *AdminService) RemoveByEmail(ctx context.Context, email string) (int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return http.StatusBadRequest, fmt.Errorf("email is required")
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE user_admins SET is_admin = FALSE WHERE email = $1
	`, email)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("remove admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return http.StatusNotFound, fmt.Errorf("admin not found")
	}
	return http.StatusOK, nil
}

// SetBlocked toggles the block flag by email, creating the row if needed.
func (s *AdminService) SetBlocked(ctx context.Context, email string, blocked bool) (int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return http.StatusBadRequest, fmt.Errorf("email is required")
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO user_admins (email, is_admin, is_blocked)
		VALUES ($1, FALSE, $2)
		ON CONFLICT (email) DO UPDATE SET is_blocked = $2
	`, email, blocked)
	if err != nil {
		return http.StatusInternalServerError, fmt.Errorf("set blocked: %w", err)
	}
	return http.StatusOK, nil
}

// SyncResult reports the outcome of a user_id backfill pass.
type SyncResult struct {
	Checked  int `json:"checked"`
	Resolved int `json:"resolved"`
}

// Sync backfills user_id for rows created before the user registered. The
// loop is sequential and bounded; lookup misses are skipped, not fatal.
func (s *AdminService) Sync(ctx context.Context) (*SyncResult, int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, email FROM user_admins WHERE user_id IS NULL LIMIT 200
	`)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("query unsynced admins: %w", err)
	}

	type pending struct {
		id    int64
		email string
	}
	var toResolve []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.email); err != nil {
			rows.Close()
			return nil, http.StatusInternalServerError, fmt.Errorf("scan unsynced admin: %w", err)
		}
		toResolve = append(toResolve, p)
	}
	rows.Close()

	result := &SyncResult{Checked: len(toResolve)}
	for _, p := range toResolve {
		var userID string
		err := s.db.QueryRow(ctx, `SELECT id FROM app_users WHERE email = $1`, p.email).Scan(&userID)
		if err != nil {
			continue // not registered yet
		}
		if _, err := s.db.Exec(ctx, `UPDATE user_admins SET user_id = $1 WHERE id = $2`, userID, p.id); err != nil {
			slog.Warn("admin sync update failed", "email", p.email, "error", err)
			continue
		}
		result.Resolved++
	}
	return result, http.StatusOK, nil
}

// IsAdminEmail reports whether an email currently carries the admin flag.
func (s *AdminService) IsAdminEmail(ctx context.Context, email string) bool {
	var isAdmin bool
	err := s.db.QueryRow(ctx, `
		SELECT is_admin FROM user_admins WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&isAdmin)
	if err != nil {
		return false
	}
	return isAdmin
}
