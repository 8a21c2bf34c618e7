package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/takenap/adlib/internal/access"
	"github.com/takenap/adlib/internal/config"
	"github.com/takenap/adlib/internal/storage"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type fakeMedia struct {
	signCalls    int
	signBucket   string
	signPath     string
	signExpires  time.Duration
	findResult   *storage.SignedObject
	findTried    []string
	findExpires  time.Duration
	fetchBuckets [][]string
	fetchResult  *storage.FetchResult
	fetchErr     error
}

func (f *fakeMedia) SignObjectURL(ctx context.Context, bucket, objectPath string, expires time.Duration) (string, error) {
	f.signCalls++
	f.signBucket, f.signPath, f.signExpires = bucket, objectPath, expires
	return "https://signed.example/" + bucket + "/" + objectPath, nil
}

func (f *fakeMedia) FindFirst(ctx context.Context, bucket, base string, extensions []string, expires time.Duration) (*storage.SignedObject, []string, error) {
	f.findExpires = expires
	return f.findResult, f.findTried, nil
}

func (f *fakeMedia) Fetch(ctx context.Context, buckets []string, objectPath string) (*storage.FetchResult, error) {
	f.fetchBuckets = append(f.fetchBuckets, buckets)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.fetchResult, nil
}

func (f *fakeMedia) PublicURL(bucket, objectPath string) string {
	return "https://public.example/" + bucket + "/" + objectPath
}

// newMediaTestServer wires a server around a fake storage backend. The URL
// cache resolves through a stub so the cached and directly-signed paths are
// distinguishable in assertions.
func newMediaTestServer(t *testing.T, media *fakeMedia) *Server {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:    "router-test-secret-32-characters!!!!!!!!",
		AdminSecret:  "router-admin-secret",
		MakeAPIKey:   "router-api-key",
		ImageBucket:  "ads-images",
		VideoBucket:  "ads-videos",
		SignedURLTTL: 3600,
	}
	authService := access.NewAuthService(nil, cfg.JWTSecret, 3600)
	cache := storage.NewURLCache(
		func(ctx context.Context, bucket, objectPath string) (string, error) {
			return "https://cached.example/" + bucket + "/" + objectPath, nil
		},
		func(bucket, objectPath string) string {
			return "https://public.example/" + bucket + "/" + objectPath
		},
		time.Minute,
	)
	t.Cleanup(cache.Stop)
	return New(cfg, nil, authService, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, media, cache)
}

func bearerToken(t *testing.T) string {
	t.Helper()
	now := time.Now()
	claims := access.Claims{
		Email: "user@takenap.io",
		Type:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			Issuer:    "adlib",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("router-test-secret-32-characters!!!!!!!!"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Sign image
// ---------------------------------------------------------------------------

func TestSignImage_DefaultLifetimeUsesCache(t *testing.T) {
	media := &fakeMedia{}
	s := newMediaTestServer(t, media)

	rec := doJSON(t, s, "POST", "/api/sign-image", `{"path":"123456789.jpeg"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["url"] != "https://cached.example/ads-images/123456789.jpeg" {
		t.Errorf("unexpected url: %q", resp["url"])
	}
	if media.signCalls != 0 {
		t.Errorf("default-lifetime request must not bypass the cache, got %d direct signs", media.signCalls)
	}
}

func TestSignImage_ExpiresOverrideSignsDirectly(t *testing.T) {
	media := &fakeMedia{}
	s := newMediaTestServer(t, media)

	rec := doJSON(t, s, "POST", "/api/sign-image", `{"path":"123456789.jpeg","expiresIn":300}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["url"] != "https://signed.example/ads-images/123456789.jpeg" {
		t.Errorf("unexpected url: %q", resp["url"])
	}
	if media.signCalls != 1 {
		t.Fatalf("expected one direct sign, got %d", media.signCalls)
	}
	if media.signExpires != 300*time.Second {
		t.Errorf("expires = %v, want %v", media.signExpires, 300*time.Second)
	}
}

func TestSignImage_ExpiresQueryParamOnGET(t *testing.T) {
	media := &fakeMedia{}
	s := newMediaTestServer(t, media)

	rec := doJSON(t, s, "GET", "/api/sign-image?path=clip.mp4&bucket=ads-videos&expires=600", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if media.signCalls != 1 {
		t.Fatalf("expected one direct sign, got %d", media.signCalls)
	}
	if media.signBucket != "ads-videos" || media.signPath != "clip.mp4" {
		t.Errorf("signed %s/%s, want ads-videos/clip.mp4", media.signBucket, media.signPath)
	}
	if media.signExpires != 600*time.Second {
		t.Errorf("expires = %v, want %v", media.signExpires, 600*time.Second)
	}
}

func TestSignTTL_ClampsOverrides(t *testing.T) {
	s := &Server{signedURLTTL: 3600}

	tests := []struct {
		override int
		want     time.Duration
	}{
		{0, time.Hour},
		{300, 5 * time.Minute},
		{10, minSignTTL},
		{100 * 24 * 3600, maxSignTTL},
	}
	for _, tt := range tests {
		if got := s.signTTL(tt.override); got != tt.want {
			t.Errorf("signTTL(%d) = %v, want %v", tt.override, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Find signed URL
// ---------------------------------------------------------------------------

func TestFindSignedURL_MissIsNullURLNotAnError(t *testing.T) {
	media := &fakeMedia{
		findTried: []string{"123456789.jpeg", "123456789.jpg", "123456789.png"},
	}
	s := newMediaTestServer(t, media)

	rec := doJSON(t, s, "POST", "/api/storage/signed-url/find", `{"base":"123456789"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a miss, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		URL   *string  `json:"url"`
		Tried []string `json:"tried"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.URL != nil {
		t.Errorf("expected null url, got %q", *resp.URL)
	}
	if len(resp.Tried) != 3 || resp.Tried[0] != "123456789.jpeg" {
		t.Errorf("unexpected tried list: %v", resp.Tried)
	}
}

func TestFindSignedURL_HitReturnsSignedObject(t *testing.T) {
	media := &fakeMedia{
		findResult: &storage.SignedObject{
			URL:  "https://signed.example/ads-images/123456789.png",
			Path: "123456789.png",
		},
		findTried: []string{"123456789.jpeg", "123456789.jpg", "123456789.png"},
	}
	s := newMediaTestServer(t, media)

	rec := doJSON(t, s, "POST", "/api/storage/signed-url/find", `{"base":"123456789","expiresIn":120}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		URL  *string `json:"url"`
		Path string  `json:"path"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.URL == nil || *resp.URL != "https://signed.example/ads-images/123456789.png" {
		t.Errorf("unexpected url: %v", resp.URL)
	}
	if resp.Path != "123456789.png" {
		t.Errorf("path = %q, want %q", resp.Path, "123456789.png")
	}
	if media.findExpires != 120*time.Second {
		t.Errorf("expires = %v, want %v", media.findExpires, 120*time.Second)
	}
}

// ---------------------------------------------------------------------------
// Storage proxy
// ---------------------------------------------------------------------------

func TestStorageProxy_BucketParamIsCommaList(t *testing.T) {
	media := &fakeMedia{
		fetchResult: &storage.FetchResult{
			Body:        []byte("bytes"),
			ContentType: "image/jpeg",
			Bucket:      "legacy-images",
			Path:        "123456789.jpeg",
		},
	}
	s := newMediaTestServer(t, media)

	req := httptest.NewRequest("GET", "/api/storage/proxy?path=123456789.jpeg&bucket=legacy-images,%20ads-images", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(media.fetchBuckets) != 1 {
		t.Fatalf("expected one fetch, got %d", len(media.fetchBuckets))
	}
	got := media.fetchBuckets[0]
	if len(got) != 2 || got[0] != "legacy-images" || got[1] != "ads-images" {
		t.Errorf("fetch buckets = %v, want [legacy-images ads-images]", got)
	}
}

func TestStorageProxy_NoBucketParamTriesBothDefaults(t *testing.T) {
	media := &fakeMedia{
		fetchResult: &storage.FetchResult{Body: []byte("bytes"), ContentType: "video/mp4"},
	}
	s := newMediaTestServer(t, media)

	req := httptest.NewRequest("GET", "/api/storage/proxy?path=clip.mp4", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := media.fetchBuckets[0]
	if len(got) != 2 || got[0] != "ads-images" || got[1] != "ads-videos" {
		t.Errorf("fetch buckets = %v, want [ads-images ads-videos]", got)
	}
}

func TestBucketCandidates(t *testing.T) {
	defaults := []string{"ads-images", "ads-videos"}

	tests := []struct {
		param string
		want  []string
	}{
		{"", defaults},
		{" , ,", defaults},
		{"one", []string{"one"}},
		{"one,two", []string{"one", "two"}},
		{" one , two ", []string{"one", "two"}},
	}
	for _, tt := range tests {
		got := bucketCandidates(tt.param, defaults)
		if len(got) != len(tt.want) {
			t.Errorf("bucketCandidates(%q) = %v, want %v", tt.param, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("bucketCandidates(%q)[%d] = %q, want %q", tt.param, i, got[i], tt.want[i])
			}
		}
	}
}
