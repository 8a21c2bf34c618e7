package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/takenap/adlib/internal/access"
	"github.com/takenap/adlib/internal/bridge"
	"github.com/takenap/adlib/internal/config"
	"github.com/takenap/adlib/internal/library"
	"github.com/takenap/adlib/internal/middleware"
	"github.com/takenap/adlib/internal/storage"
)

// MediaBackend is the slice of the storage layer the HTTP handlers use.
// *storage.MediaStore satisfies it.
type MediaBackend interface {
	SignObjectURL(ctx context.Context, bucket, objectPath string, expires time.Duration) (string, error)
	FindFirst(ctx context.Context, bucket, base string, extensions []string, expires time.Duration) (*storage.SignedObject, []string, error)
	Fetch(ctx context.Context, buckets []string, objectPath string) (*storage.FetchResult, error)
	PublicURL(bucket, objectPath string) string
}

type Server struct {
	mux            *http.ServeMux
	authService    *access.AuthService
	requestService *access.RequestService
	adminService   *access.AdminService
	profileService *access.ProfileService
	auditService   *access.AuditService
	adService      *library.AdService
	folderService  *library.FolderService
	personaService *library.PersonaService
	designService  *bridge.DesignService
	makeClient     *bridge.MakeClient
	ingestor       *bridge.Ingestor
	media          MediaBackend
	urlCache       *storage.URLCache
	bearerAuth     *middleware.BearerAuth
	adminGate      *middleware.SecretGate
	webhookGate    *middleware.SecretGate
	authLimiter    *middleware.RateLimiter // 5 req/s, burst 10 for auth endpoints
	apiLimiter     *middleware.RateLimiter // 30 req/s, burst 60 for API endpoints
	db             *pgxpool.Pool
	imageBucket    string
	videoBucket    string
	signedURLTTL   int
}

func New(
	cfg *config.Config,
	db *pgxpool.Pool,
	authService *access.AuthService,
	requestService *access.RequestService,
	adminService *access.AdminService,
	profileService *access.ProfileService,
	auditService *access.AuditService,
	adService *library.AdService,
	folderService *library.FolderService,
	personaService *library.PersonaService,
	designService *bridge.DesignService,
	makeClient *bridge.MakeClient,
	ingestor *bridge.Ingestor,
	media MediaBackend,
	urlCache *storage.URLCache,
) *Server {
	s := &Server{
		mux:            http.NewServeMux(),
		authService:    authService,
		requestService: requestService,
		adminService:   adminService,
		profileService: profileService,
		auditService:   auditService,
		adService:      adService,
		folderService:  folderService,
		personaService: personaService,
		designService:  designService,
		makeClient:     makeClient,
		ingestor:       ingestor,
		media:          media,
		urlCache:       urlCache,
		bearerAuth:     middleware.NewBearerAuth(authService),
		adminGate:      middleware.NewSecretGate("x-admin-secret", cfg.AdminSecret),
		webhookGate:    middleware.NewSecretGate("x-api-key", cfg.MakeAPIKey),
		authLimiter:    middleware.NewRateLimiter(5, 10),
		apiLimiter:     middleware.NewRateLimiter(30, 60),
		db:             db,
		imageBucket:    cfg.ImageBucket,
		videoBucket:    cfg.VideoBucket,
		signedURLTTL:   cfg.SignedURLTTL,
	}

	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return securityHeaders(cors(s.mux))
}

// securityHeaders adds security headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// HSTS behind TLS only
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// maxBody limits request body size to prevent DoS via large payloads.
func maxBody(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes() {
	auth := s.bearerAuth.Middleware
	admin := s.adminGate.Middleware
	hook := s.webhookGate.Middleware

	// Health check with DB ping
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": "database unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth (no token required, rate-limited)
	s.mux.Handle("POST /auth/register", s.authLimiter.Middleware(maxBody(http.HandlerFunc(s.handleRegister), 1<<20)))
	s.mux.Handle("POST /auth/login", s.authLimiter.Middleware(maxBody(http.HandlerFunc(s.handleLogin), 1<<20)))
	s.mux.Handle("GET /auth/me", auth(http.HandlerFunc(s.handleMe)))

	// Ads
	s.mux.Handle("GET /api/ads", s.apiLimiter.Middleware(auth(http.HandlerFunc(s.handleListAds))))
	s.mux.Handle("GET /api/ads/export", s.apiLimiter.Middleware(auth(http.HandlerFunc(s.handleExportAds))))
	s.mux.Handle("GET /api/ads/debug/archive-ids", admin(http.HandlerFunc(s.handleArchiveIDReport)))
	s.mux.Handle("GET /api/ads/{id}", s.apiLimiter.Middleware(auth(http.HandlerFunc(s.handleGetAd))))
	s.mux.Handle("POST /api/ads", auth(maxBody(http.HandlerFunc(s.handleCreateAd), 1<<20)))
	s.mux.Handle("PUT /api/ads/{id}", auth(maxBody(http.HandlerFunc(s.handleUpdateAd), 1<<20)))
	s.mux.Handle("PATCH /api/ads/{id}/tags", auth(maxBody(http.HandlerFunc(s.handleUpdateAdTags), 1<<20)))
	s.mux.Handle("DELETE /api/ads/{id}", auth(http.HandlerFunc(s.handleDeleteAd)))

	// Storage
	s.mux.Handle("POST /api/sign-image", s.apiLimiter.Middleware(auth(maxBody(http.HandlerFunc(s.handleSignImage), 1<<20))))
	s.mux.Handle("GET /api/sign-image", s.apiLimiter.Middleware(auth(http.HandlerFunc(s.handleSignImage))))
	s.mux.Handle("POST /api/storage/signed-url/find", s.apiLimiter.Middleware(auth(maxBody(http.HandlerFunc(s.handleFindSignedURL), 1<<20))))
	s.mux.Handle("GET /api/storage/proxy", s.apiLimiter.Middleware(http.HandlerFunc(s.handleStorageProxy)))

	// Access requests
	s.mux.Handle("POST /api/access-requests", s.authLimiter.Middleware(maxBody(http.HandlerFunc(s.handleCreateAccessRequest), 1<<20)))
	s.mux.Handle("GET /api/access-requests/check", s.apiLimiter.Middleware(http.HandlerFunc(s.handleCheckAccessRequest)))
	s.mux.Handle("GET /api/access-requests", admin(http.HandlerFunc(s.handleListAccessRequests)))
	s.mux.Handle("POST /api/access-requests/{id}/approve", admin(http.HandlerFunc(s.handleApproveAccessRequest)))
	s.mux.Handle("POST /api/access-requests/{id}/block", admin(http.HandlerFunc(s.handleBlockAccessRequest)))

	// Admin flags (admin secret)
	s.mux.Handle("GET /api/admins", admin(http.HandlerFunc(s.handleListAdmins)))
	s.mux.Handle("POST /api/admins/add", admin(maxBody(http.HandlerFunc(s.handleAddAdmin), 1<<20)))
	s.mux.Handle("POST /api/admins/remove-by-email", admin(maxBody(http.HandlerFunc(s.handleRemoveAdmin), 1<<20)))
	s.mux.Handle("POST /api/admins/block", admin(maxBody(http.HandlerFunc(s.handleBlockAccount), 1<<20)))
	s.mux.Handle("POST /api/admins/sync", admin(http.HandlerFunc(s.handleSyncAdmins)))

	// Access profiles (bearer; role rules enforced in the service)
	s.mux.Handle("GET /api/access-profiles", auth(http.HandlerFunc(s.handleListProfiles)))
	s.mux.Handle("GET /api/access-profiles/{id}", auth(http.HandlerFunc(s.handleGetProfile)))
	s.mux.Handle("PATCH /api/access-profiles/{id}", auth(maxBody(http.HandlerFunc(s.handleUpdateProfile), 1<<20)))

	// Folders
	s.mux.Handle("GET /api/folders", auth(http.HandlerFunc(s.handleListFolders)))
	s.mux.Handle("POST /api/folders", auth(maxBody(http.HandlerFunc(s.handleCreateFolder), 1<<20)))
	s.mux.Handle("PATCH /api/folders/{id}", auth(maxBody(http.HandlerFunc(s.handleRenameFolder), 1<<20)))
	s.mux.Handle("DELETE /api/folders/{id}", auth(http.HandlerFunc(s.handleDeleteFolder)))
	s.mux.Handle("GET /api/folders/{id}/items", auth(http.HandlerFunc(s.handleListFolderItems)))
	s.mux.Handle("POST /api/folders/{id}/items", auth(maxBody(http.HandlerFunc(s.handleAddFolderItem), 1<<20)))
	s.mux.Handle("DELETE /api/folders/{id}/items/{adId}", auth(http.HandlerFunc(s.handleRemoveFolderItem)))
	s.mux.Handle("POST /api/folders/{id}/transfer", auth(maxBody(http.HandlerFunc(s.handleTransferFolder), 1<<20)))

	// Personas
	s.mux.Handle("GET /api/personas", auth(http.HandlerFunc(s.handleListPersonas)))
	s.mux.Handle("GET /api/personas/shared/{token}", s.apiLimiter.Middleware(http.HandlerFunc(s.handleGetSharedPersona)))
	s.mux.Handle("POST /api/personas/shared/{token}/copy", auth(http.HandlerFunc(s.handleCopySharedPersona)))

	// Generation history
	s.mux.Handle("GET /api/designs", auth(http.HandlerFunc(s.handleListDesigns)))

	// Automation bridge
	s.mux.Handle("POST /api/parse-meta-link", auth(maxBody(http.HandlerFunc(s.handleParseMetaLink), 1<<20)))
	s.mux.Handle("POST /api/generate", auth(maxBody(http.HandlerFunc(s.handleGenerate), 32<<20)))
	s.mux.Handle("POST /api/webhook/make", hook(maxBody(http.HandlerFunc(s.handleWebhookAction), 8<<20)))
	s.mux.Handle("POST /api/webhook/meta-results", hook(maxBody(http.HandlerFunc(s.handleWebhookResults), 32<<20)))
}

// ---------- Helpers ----------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// allowedOrigins returns the list of origins permitted for CORS.
// In production, set ALLOWED_ORIGINS env var to a comma-separated list.
func allowedOrigins() map[string]bool {
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	origins := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:3001": true,
	}
	if originsStr != "" {
		for _, o := range strings.Split(originsStr, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				origins[o] = true
			}
		}
	}
	return origins
}

var corsOrigins = allowedOrigins()

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// Only allow whitelisted origins with credentials
		if origin != "" && corsOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Unknown origin — allow without credentials (no cookies sent)
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, x-admin-secret, x-api-key, Accept")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
