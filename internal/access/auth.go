package access

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// AuthService issues and validates the bearer tokens carried by every
// authenticated API route.
type AuthService struct {
	db            *pgxpool.Pool
	jwtSecret     []byte
	jwtExpiry     time.Duration
	loginAttempts map[string]*loginAttempt
	attemptsMu    sync.Mutex
}

type loginAttempt struct {
	count    int
	lockedAt time.Time
}

func NewAuthService(db *pgxpool.Pool, jwtSecret string, jwtExpiry int) *AuthService {
	return &AuthService{
		db:            db,
		jwtSecret:     []byte(jwtSecret),
		jwtExpiry:     time.Duration(jwtExpiry) * time.Second,
		loginAttempts: make(map[string]*loginAttempt),
	}
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name"`
	IsAdmin     bool      `json:"is_admin"`
	CreatedAt   time.Time `json:"created_at"`
}

type Claims struct {
	Email string `json:"email"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// Register creates a new user and an initial pending access request so the
// admin console sees the signup immediately.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, int, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, http.StatusBadRequest, fmt.Errorf("email and password are required")
	}
	if len(req.Password) < 8 {
		return nil, http.StatusBadRequest, fmt.Errorf("password must be at least 8 characters")
	}

	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM app_users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, http.StatusConflict, fmt.Errorf("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID string
	var createdAt time.Time
	displayName := &req.DisplayName
	if req.DisplayName == "" {
		displayName = nil
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO app_users (email, password_hash, display_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, email, string(hash), displayName).Scan(&userID, &createdAt)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("insert user: %w", err)
	}

	// Seed the access request so the approval flow can pick it up. Approval
	// is advisory: a signed-in user is never locked out by a pending row.
	_, err = tx.Exec(ctx, `
		INSERT INTO access_requests (email, status) VALUES ($1, 'pending')
	`, email)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("insert access request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("commit: %w", err)
	}

	token, err := s.generateToken(userID, email)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("generate token: %w", err)
	}

	return &AuthResponse{
		Token: token,
		User: User{
			ID:          userID,
			Email:       email,
			DisplayName: displayName,
			IsAdmin:     false,
			CreatedAt:   createdAt,
		},
	}, http.StatusCreated, nil
}

// dummyHash is a pre-computed bcrypt hash used for timing-safe login.
// When user is not found, we still run bcrypt comparison to prevent timing attacks.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("timing-safe-dummy-password-placeholder"), 12)

// Login authenticates a user and returns a JWT. Blocked accounts are
// rejected even with valid credentials.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, int, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Check lockout
	s.attemptsMu.Lock()
	attempt := s.loginAttempts[email]
	if attempt != nil && attempt.count >= 5 {
		if time.Since(attempt.lockedAt) < 15*time.Minute {
			s.attemptsMu.Unlock()
			bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password)) // timing-safe
			return nil, http.StatusTooManyRequests, fmt.Errorf("account temporarily locked, try again later")
		}
		// Lock expired, reset
		delete(s.loginAttempts, email)
	}
	s.attemptsMu.Unlock()

	var userID, passwordHash string
	var displayName *string
	var createdAt time.Time
	var isAdmin bool

	err := s.db.QueryRow(ctx, `
		SELECT id, password_hash, display_name, created_at, is_admin
		FROM app_users WHERE email = $1
	`, email).Scan(&userID, &passwordHash, &displayName, &createdAt, &isAdmin)
	if err != nil {
		// Timing-safe: always run bcrypt even if user doesn't exist
		bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		return nil, http.StatusUnauthorized, fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		s.attemptsMu.Lock()
		a := s.loginAttempts[email]
		if a == nil {
			a = &loginAttempt{}
			s.loginAttempts[email] = a
		}
		a.count++
		if a.count >= 5 {
			a.lockedAt = time.Now()
		}
		s.attemptsMu.Unlock()
		return nil, http.StatusUnauthorized, fmt.Errorf("invalid credentials")
	}

	// Clear login attempts on successful login
	s.attemptsMu.Lock()
	delete(s.loginAttempts, email)
	s.attemptsMu.Unlock()

	var blocked bool
	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(is_blocked, FALSE) FROM user_admins WHERE email = $1
	`, email).Scan(&blocked)
	if err == nil && blocked {
		return nil, http.StatusForbidden, fmt.Errorf("account is blocked")
	}

	token, err := s.generateToken(userID, email)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("generate token: %w", err)
	}

	return &AuthResponse{
		Token: token,
		User: User{
			ID:          userID,
			Email:       email,
			DisplayName: displayName,
			IsAdmin:     isAdmin,
			CreatedAt:   createdAt,
		},
	}, http.StatusOK, nil
}

// GetUser returns the current user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	err := s.db.QueryRow(ctx, `
		SELECT id, email, display_name, created_at, is_admin
		FROM app_users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt, &user.IsAdmin)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// IsAdmin checks if a user is an admin.
func (s *AuthService) IsAdmin(ctx context.Context, userID string) bool {
	var isAdmin bool
	err := s.db.QueryRow(ctx, `SELECT is_admin FROM app_users WHERE id = $1`, userID).Scan(&isAdmin)
	if err != nil {
		return false
	}
	return isAdmin
}

// EnsureAdmin creates the bootstrap admin user from env vars if it doesn't exist.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	var existingID string
	err := s.db.QueryRow(ctx, `SELECT id FROM app_users WHERE email = $1`, email).Scan(&existingID)
	if err == nil {
		// User exists, ensure is_admin = true
		_, err = s.db.Exec(ctx, `UPDATE app_users SET is_admin = TRUE WHERE id = $1`, existingID)
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var userID string
	err = s.db.QueryRow(ctx, `
		INSERT INTO app_users (email, password_hash, is_admin)
		VALUES ($1, $2, TRUE)
		RETURNING id
	`, email, string(hash)).Scan(&userID)
	if err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}

	// The bootstrap admin also gets a superadmin access profile so profile
	// role changes have an actor that can perform them.
	_, err = s.db.Exec(ctx, `
		INSERT INTO user_access_profiles (user_id, email, status, role, approved_at)
		VALUES ($1, $2, 'approved', 'superadmin', NOW())
		ON CONFLICT (email) DO UPDATE SET role = 'superadmin', status = 'approved'
	`, userID, email)
	if err != nil {
		return fmt.Errorf("ensure superadmin profile: %w", err)
	}
	return nil
}

// ValidateToken verifies a bearer JWT and returns the claims.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

func (s *AuthService) generateToken(userID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Type:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
			Issuer:    "adlib",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
