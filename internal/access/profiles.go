package access

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileService is the only write path for user_access_profiles. Every
// change goes through UpdateProfile, which enforces role rules and appends
// one audit row per changed field inside the same transaction.
type ProfileService struct {
	db *pgxpool.Pool
}

func NewProfileService(db *pgxpool.Pool) *ProfileService {
	return &ProfileService{db: db}
}

type Profile struct {
	ID          int64      `json:"id"`
	UserID      *string    `json:"user_id"`
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	Role        string     `json:"role"`
	Plan        string     `json:"plan"`
	Tags        []string   `json:"tags"`
	Notes       *string    `json:"notes"`
	RequestedAt *time.Time `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at"`
	BlockedAt   *time.Time `json:"blocked_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Actor identifies who is performing a profile mutation.
type Actor struct {
	UserID string
	Email  string
	Role   string
}

// UpdateProfileInput carries the fields to change; nil means leave as-is.
type UpdateProfileInput struct {
	Status *string   `json:"status,omitempty"`
	Role   *string   `json:"role,omitempty"`
	Plan   *string   `json:"plan,omitempty"`
	Tags   *[]string `json:"tags,omitempty"`
	Notes  *string   `json:"notes,omitempty"`
}

type fieldChange struct {
	field string
	from  string
	to    string
}

var validStatuses = map[string]bool{"pending": true, "approved": true, "blocked": true}
var validRoles = map[string]bool{"user": true, "admin": true, "superadmin": true}

// planProfileChanges validates an update against the current profile state
// and returns the list of field changes to apply. superadminCount is the
// number of superadmin profiles at decision time, the target included.
func planProfileChanges(actor Actor, current *Profile, input UpdateProfileInput, superadminCount int) ([]fieldChange, error) {
	var changes []fieldChange

	if input.Status != nil && *input.Status != current.Status {
		if !validStatuses[*input.Status] {
			return nil, fmt.Errorf("status must be one of: pending, approved, blocked")
		}
		changes = append(changes, fieldChange{field: "status", from: current.Status, to: *input.Status})
	}

	if input.Role != nil && *input.Role != current.Role {
		if !validRoles[*input.Role] {
			return nil, fmt.Errorf("role must be one of: user, admin, superadmin")
		}
		if actor.Role != "superadmin" {
			return nil, fmt.Errorf("only a superadmin can change roles")
		}
		if current.Role == "superadmin" && *input.Role != "superadmin" && superadminCount <= 1 {
			return nil, fmt.Errorf("cannot demote the last remaining superadmin")
		}
		changes = append(changes, fieldChange{field: "role", from: current.Role, to: *input.Role})
	}

	if input.Plan != nil && *input.Plan != current.Plan {
		changes = append(changes, fieldChange{field: "plan", from: current.Plan, to: *input.Plan})
	}

	if input.Tags != nil {
		from := strings.Join(current.Tags, ",")
		to := strings.Join(*input.Tags, ",")
		if from != to {
			changes = append(changes, fieldChange{field: "tags", from: from, to: to})
		}
	}

	if input.Notes != nil {
		from := ""
		if current.Notes != nil {
			from = *current.Notes
		}
		if from != *input.Notes {
			changes = append(changes, fieldChange{field: "notes", from: from, to: *input.Notes})
		}
	}

	return changes, nil
}

// Get returns a profile by ID.
func (s *ProfileService) Get(ctx context.Context, id int64) (*Profile, int, error) {
	p, err := s.getProfile(ctx, id)
	if err != nil {
		return nil, http.StatusNotFound, fmt.Errorf("profile not found")
	}
	return p, http.StatusOK, nil
}

// GetByEmail returns a profile by email.
func (s *ProfileService) GetByEmail(ctx context.Context, email string) (*Profile, int, error) {
	var p Profile
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, email, status, role, plan, tags, notes,
			requested_at, approved_at, blocked_at, updated_at
		FROM user_access_profiles WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(
		&p.ID, &p.UserID, &p.Email, &p.Status, &p.Role, &p.Plan, &p.Tags, &p.Notes,
		&p.RequestedAt, &p.ApprovedAt, &p.BlockedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, http.StatusNotFound, fmt.Errorf("profile not found")
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, http.StatusOK, nil
}

// List returns all profiles, newest first.
func (s *ProfileService) List(ctx context.Context) ([]Profile, int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, email, status, role, plan, tags, notes,
			requested_at, approved_at, blocked_at, updated_at
		FROM user_access_profiles
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.UserID, &p.Email, &p.Status, &p.Role, &p.Plan, &p.Tags, &p.Notes,
			&p.RequestedAt, &p.ApprovedAt, &p.BlockedAt, &p.UpdatedAt); err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("scan profile: %w", err)
		}
		if p.Tags == nil {
			p.Tags = []string{}
		}
		profiles = append(profiles, p)
	}
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, http.StatusOK, nil
}

// UpdateProfile applies a guarded mutation. The profile row, its timestamp
// stamps and all audit rows commit atomically: a failed audit write rolls
// the whole change back.
func (s *ProfileService) UpdateProfile(ctx context.Context, actor Actor, profileID int64, input UpdateProfileInput) (*Profile, int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current Profile
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, email, status, role, plan, tags, notes,
			requested_at, approved_at, blocked_at, updated_at
		FROM user_access_profiles WHERE id = $1
		FOR UPDATE
	`, profileID).Scan(
		&current.ID, &current.UserID, &current.Email, &current.Status, &current.Role,
		&current.Plan, &current.Tags, &current.Notes,
		&current.RequestedAt, &current.ApprovedAt, &current.BlockedAt, &current.UpdatedAt,
	)
	if err != nil {
		return nil, http.StatusNotFound, fmt.Errorf("profile not found")
	}
	if current.Tags == nil {
		current.Tags = []string{}
	}

	var superadminCount int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_access_profiles WHERE role = 'superadmin'
	`).Scan(&superadminCount)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("count superadmins: %w", err)
	}

	changes, err := planProfileChanges(actor, &current, input, superadminCount)
	if err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "superadmin") {
			status = http.StatusForbidden
		}
		return nil, status, err
	}
	if len(changes) == 0 {
		return &current, http.StatusOK, nil
	}

	updated := current
	for _, c := range changes {
		switch c.field {
		case "status":
			updated.Status = c.to
		case "role":
			updated.Role = c.to
		case "plan":
			updated.Plan = c.to
		case "tags":
			updated.Tags = *input.Tags
		case "notes":
			updated.Notes = input.Notes
		}
	}

	// Status transitions stamp their timestamps: approval clears any block.
	now := time.Now().UTC()
	approvedAt := current.ApprovedAt
	blockedAt := current.BlockedAt
	if updated.Status != current.Status {
		switch updated.Status {
		case "approved":
			approvedAt = &now
			blockedAt = nil
		case "blocked":
			blockedAt = &now
		}
	}

	err = tx.QueryRow(ctx, `
		UPDATE user_access_profiles
		SET status = $1, role = $2, plan = $3, tags = $4, notes = $5,
			approved_at = $6, blocked_at = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING updated_at
	`, updated.Status, updated.Role, updated.Plan, updated.Tags, updated.Notes,
		approvedAt, blockedAt, profileID,
	).Scan(&updated.UpdatedAt)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("update profile: %w", err)
	}
	updated.ApprovedAt = approvedAt
	updated.BlockedAt = blockedAt

	for _, c := range changes {
		_, err = tx.Exec(ctx, `
			INSERT INTO access_audit (profile_id, actor_id, actor_email, field, old_value, new_value)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, profileID, actor.UserID, actor.Email, c.field+"_change", c.from, c.to)
		if err != nil {
			return nil, http.StatusInternalServerError, fmt.Errorf("write audit: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("commit: %w", err)
	}

	return &updated, http.StatusOK, nil
}

func (s *ProfileService) getProfile(ctx context.Context, id int64) (*Profile, error) {
	var p Profile
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, email, status, role, plan, tags, notes,
			requested_at, approved_at, blocked_at, updated_at
		FROM user_access_profiles WHERE id = $1
	`, id).Scan(
		&p.ID, &p.UserID, &p.Email, &p.Status, &p.Role, &p.Plan, &p.Tags, &p.Notes,
		&p.RequestedAt, &p.ApprovedAt, &p.BlockedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}
