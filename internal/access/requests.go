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

// RequestService manages access requests. Approval is advisory reporting for
// the admin console; it does not gate sign-in by itself.
type RequestService struct {
	db     *pgxpool.Pool
	mailer *Mailer
}

func NewRequestService(db *pgxpool.Pool, mailer *Mailer) *RequestService {
	return &RequestService{db: db, mailer: mailer}
}

type AccessRequest struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateRequestInput struct {
	Email string `json:"email"`
}

// CheckResult is the payload of the access-status check consumed on every
// page load. Both flags false means no request exists for the email.
type CheckResult struct {
	Approved bool `json:"approved"`
	Pending  bool `json:"pending"`
}

// Create records a pending access request. Duplicate emails are tolerated:
// lookups always take the most recent row by created_at.
func (s *RequestService) Create(ctx context.Context, input CreateRequestInput) (*AccessRequest, int, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, http.StatusBadRequest, fmt.Errorf("a valid email is required")
	}

	var req AccessRequest
	err := s.db.QueryRow(ctx, `
		INSERT INTO access_requests (email, status)
		VALUES ($1, 'pending')
		RETURNING id, email, status, created_at
	`, email).Scan(&req.ID, &req.Email, &req.Status, &req.CreatedAt)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("insert access request: %w", err)
	}
	return &req, http.StatusCreated, nil
}

// Check reports the status of the most recent request for an email.
func (s *RequestService) Check(ctx context.Context, email string) (*CheckResult, int, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, http.StatusBadRequest, fmt.Errorf("email is required")
	}

	var status string
	err := s.db.QueryRow(ctx, `
		SELECT status FROM access_requests
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, email).Scan(&status)
	if err != nil {
		// No request on file: report both flags false instead of erroring,
		// the caller treats this as "not requested yet".
		return &CheckResult{}, http.StatusOK, nil
	}

	return &CheckResult{
		Approved: status == "approved",
		Pending:  status == "pending",
	}, http.StatusOK, nil
}

// List returns all requests, newest first. Admin console only.
func (s *RequestService) List(ctx context.Context) ([]AccessRequest, int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, email, status, created_at
		FROM access_requests
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("query access requests: %w", err)
	}
	defer rows.Close()

	var requests []AccessRequest
	for rows.Next() {
		var req AccessRequest
		if err := rows.Scan(&req.ID, &req.Email, &req.Status, &req.CreatedAt); err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("scan access request: %w", err)
		}
		requests = append(requests, req)
	}
	if requests == nil {
		requests = []AccessRequest{}
	}
	return requests, http.StatusOK, nil
}

// Approve marks a request approved and sends a best-effort notification.
func (s *RequestService) Approve(ctx context.Context, id int64) (int, error) {
	return s.setStatus(ctx, id, "approved")
}

// Block marks a request blocked.
func (s *RequestService) Block(ctx context.Context, id int64) (int, error) {
	return s.setStatus(ctx, id, "blocked")
}

func (s *RequestService) setStatus(ctx context.Context, id int64, status string) (int, error) {
	var email string
	err := s.db.QueryRow(ctx, `
		UPDATE access_requests SET status = $1 WHERE id = $2
		RETURNING email
	`, status, id).Scan(&email)
	if err != nil {
		return http.StatusNotFound, fmt.Errorf("access request not found")
	}

	if status == "approved" && s.mailer != nil {
		// Best effort: a failed mail never fails the approval.
		if err := s.mailer.SendApprovalNotice(email); err != nil {
			slog.Warn("approval notification failed", "email", email, "error", err)
		}
	}
	return http.StatusOK, nil
}
