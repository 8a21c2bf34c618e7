package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/takenap/adlib/internal/access"
	"github.com/takenap/adlib/internal/bridge"
	"github.com/takenap/adlib/internal/config"
	"github.com/takenap/adlib/internal/database"
	"github.com/takenap/adlib/internal/library"
	"github.com/takenap/adlib/internal/server"
	"github.com/takenap/adlib/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	slog.Info("Connecting to database")
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	slog.Info("Connected to database")

	slog.Info("Running migrations")
	if err := database.RunMigrations(ctx, pool, migrations()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Migrations complete")

	media, err := storage.NewMediaStore(ctx, cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey)
	if err != nil {
		log.Fatalf("Failed to initialize media store: %v", err)
	}

	signTTL := time.Duration(cfg.SignedURLTTL) * time.Second
	// Cache entries expire before the signed URL itself does
	cacheTTL := signTTL - 5*time.Minute
	if cacheTTL <= 0 {
		cacheTTL = signTTL / 2
	}
	urlCache := storage.NewURLCache(
		func(ctx context.Context, bucket, objectPath string) (string, error) {
			return media.SignObjectURL(ctx, bucket, objectPath, signTTL)
		},
		media.PublicURL,
		cacheTTL,
	)

	mailer := access.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SiteURL)

	authService := access.NewAuthService(pool, cfg.JWTSecret, cfg.JWTExpiry)
	requestService := access.NewRequestService(pool, mailer)
	adminService := access.NewAdminService(pool)
	profileService := access.NewProfileService(pool)
	auditService := access.NewAuditService(pool)

	adService := library.NewAdService(pool)
	folderService := library.NewFolderService(pool)
	personaService := library.NewPersonaService(pool)

	makeClient := bridge.NewMakeClient(cfg.MakeWebhookURL, cfg.MakeGenerateURL, cfg.MakeAPIKey)
	ingestor := bridge.NewIngestor(adService)
	designService := bridge.NewDesignService(pool)

	// Ensure the bootstrap admin exists if ADMIN_EMAIL is set
	if cfg.AdminEmail != "" {
		slog.Info("Ensuring admin user exists", "email", cfg.AdminEmail)
		if err := authService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("Failed to create admin user: %v", err)
		}
		slog.Info("Admin user ready", "email", cfg.AdminEmail)
	}

	srv := server.New(cfg, pool,
		authService, requestService, adminService, profileService, auditService,
		adService, folderService, personaService,
		designService, makeClient, ingestor,
		media, urlCache,
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("Shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		httpServer.Shutdown(shutCtx)
		urlCache.Stop()
		pool.Close()
	}()

	slog.Info("Server started", "host", cfg.Host, "port", cfg.Port)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func migrations() []database.Migration {
	return []database.Migration{
		{
			Name: "001_users_and_access.sql",
			SQL: `
CREATE TABLE IF NOT EXISTS app_users (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  display_name TEXT,
  is_admin BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_app_users_email ON app_users(email);

CREATE TABLE IF NOT EXISTS access_requests (
  id BIGSERIAL PRIMARY KEY,
  email TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending'
    CHECK (status IN ('pending', 'approved', 'blocked')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_access_requests_email ON access_requests(email, created_at DESC);

CREATE TABLE IF NOT EXISTS user_admins (
  id BIGSERIAL PRIMARY KEY,
  user_id UUID REFERENCES app_users(id) ON DELETE SET NULL,
  email TEXT NOT NULL UNIQUE,
  is_admin BOOLEAN NOT NULL DEFAULT FALSE,
  is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_log (
  id BIGSERIAL PRIMARY KEY,
  user_id UUID REFERENCES app_users(id) ON DELETE SET NULL,
  action TEXT NOT NULL,
  resource_type TEXT,
  resource_id TEXT,
  ip_address TEXT,
  user_agent TEXT,
  metadata JSONB DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);
`,
		},
		{
			Name: "002_access_profiles.sql",
			SQL: `
CREATE TABLE IF NOT EXISTS user_access_profiles (
  id BIGSERIAL PRIMARY KEY,
  user_id UUID REFERENCES app_users(id) ON DELETE SET NULL,
  email TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'pending'
    CHECK (status IN ('pending', 'approved', 'blocked')),
  role TEXT NOT NULL DEFAULT 'user'
    CHECK (role IN ('user', 'admin', 'superadmin')),
  plan TEXT NOT NULL DEFAULT 'free',
  tags TEXT[] NOT NULL DEFAULT '{}',
  notes TEXT,
  requested_at TIMESTAMPTZ DEFAULT NOW(),
  approved_at TIMESTAMPTZ,
  blocked_at TIMESTAMPTZ,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_access_profiles_role ON user_access_profiles(role);

CREATE TABLE IF NOT EXISTS access_audit (
  id BIGSERIAL PRIMARY KEY,
  profile_id BIGINT NOT NULL REFERENCES user_access_profiles(id) ON DELETE CASCADE,
  actor_id TEXT,
  actor_email TEXT,
  field TEXT NOT NULL,
  old_value TEXT,
  new_value TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_access_audit_profile ON access_audit(profile_id);
`,
		},
		{
			Name: "003_ads_library.sql",
			SQL: `
CREATE TABLE IF NOT EXISTS ads_library (
  id BIGSERIAL PRIMARY KEY,
  ad_archive_id TEXT,
  page_name TEXT,
  display_format TEXT,
  title TEXT,
  text TEXT,
  caption TEXT,
  hook TEXT,
  topic TEXT,
  concept TEXT,
  character TEXT,
  realisation TEXT,
  cta_text TEXT,
  link_url TEXT,
  image_url TEXT,
  video_hd_url TEXT,
  video_preview_image_url TEXT,
  creative_hash TEXT,
  duplicate_of_id BIGINT REFERENCES ads_library(id) ON DELETE SET NULL,
  tags TEXT[] NOT NULL DEFAULT '{}',
  job_id TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- ad_archive_id is deliberately NOT unique: re-scrapes may insert the same
-- archive id again, and the debug report surfaces duplicates instead.
CREATE INDEX IF NOT EXISTS idx_ads_library_archive ON ads_library(ad_archive_id);
CREATE INDEX IF NOT EXISTS idx_ads_library_page ON ads_library(page_name);
CREATE INDEX IF NOT EXISTS idx_ads_library_job ON ads_library(job_id);
CREATE INDEX IF NOT EXISTS idx_ads_library_created ON ads_library(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ads_library_hash ON ads_library(creative_hash);
`,
		},
		{
			Name: "004_folders.sql",
			SQL: `
CREATE TABLE IF NOT EXISTS folders (
  id UUID PRIMARY KEY,
  user_id UUID NOT NULL REFERENCES app_users(id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_folders_user ON folders(user_id);

CREATE TABLE IF NOT EXISTS folder_items (
  id UUID PRIMARY KEY,
  folder_id UUID NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
  ad_id BIGINT NOT NULL REFERENCES ads_library(id) ON DELETE CASCADE,
  added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE(folder_id, ad_id)
);
`,
		},
		{
			Name: "005_personas_and_designs.sql",
			SQL: `
CREATE TABLE IF NOT EXISTS shared_personas (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  share_token TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_personas (
  id UUID PRIMARY KEY,
  user_id UUID NOT NULL REFERENCES app_users(id) ON DELETE CASCADE,
  source_id UUID REFERENCES shared_personas(id) ON DELETE SET NULL,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_user_personas_user ON user_personas(user_id);

CREATE TABLE IF NOT EXISTS adaptive_designs (
  id UUID PRIMARY KEY,
  user_id UUID REFERENCES app_users(id) ON DELETE SET NULL,
  creative_id TEXT,
  file_name TEXT NOT NULL DEFAULT '',
  user_prompt TEXT NOT NULL,
  response JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_adaptive_designs_user ON adaptive_designs(user_id);
`,
		},
	}
}
