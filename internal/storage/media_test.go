package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ---------------------------------------------------------------------------
// Fake S3 backend
// ---------------------------------------------------------------------------

var errNotFound = &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}

// fakeS3 serves objects from an in-memory map of bucket -> key -> body and
// records every call in order.
type fakeS3 struct {
	objects map[string]map[string][]byte
	calls   []string
}

func (f *fakeS3) has(bucket, key string) bool {
	b, ok := f.objects[bucket]
	if !ok {
		return false
	}
	_, ok = b[key]
	return ok
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.calls = append(f.calls, "HEAD "+*in.Bucket+"/"+*in.Key)
	if !f.has(*in.Bucket, *in.Key) {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls = append(f.calls, "GET "+*in.Bucket+"/"+*in.Key)
	if !f.has(*in.Bucket, *in.Key) {
		return nil, errNotFound
	}
	body := f.objects[*in.Bucket][*in.Key]
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.calls = append(f.calls, "LIST "+*in.Bucket+"/"+aws.ToString(in.Prefix))
	b, ok := f.objects[*in.Bucket]
	if !ok {
		return nil, errNotFound
	}
	var contents []types.Object
	for key := range b {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			contents = append(contents, types.Object{Key: aws.String(key)})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

type fakePresigner struct {
	calls []string
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4PresignedRequest, error) {
	f.calls = append(f.calls, *in.Bucket+"/"+*in.Key)
	return &v4PresignedRequest{URL: "https://signed.test/" + *in.Bucket + "/" + *in.Key + "?sig=abc"}, nil
}

func newTestStore(objects map[string]map[string][]byte) (*MediaStore, *fakeS3, *fakePresigner) {
	backend := &fakeS3{objects: objects}
	signer := &fakePresigner{}
	store := &MediaStore{client: backend, presigner: signer, endpoint: "https://storage.test"}
	return store, backend, signer
}

// ---------------------------------------------------------------------------
// SignObjectURL
// ---------------------------------------------------------------------------

func TestSignObjectURL_ExistingObject(t *testing.T) {
	store, _, signer := newTestStore(map[string]map[string][]byte{
		"ads-images": {"123.jpeg": []byte("img")},
	})

	url, err := store.SignObjectURL(context.Background(), "ads-images", "123.jpeg", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(url, "ads-images/123.jpeg") {
		t.Errorf("unexpected signed URL: %q", url)
	}
	if len(signer.calls) != 1 {
		t.Errorf("expected 1 presign call, got %d", len(signer.calls))
	}
}

func TestSignObjectURL_MissingObject(t *testing.T) {
	store, _, signer := newTestStore(map[string]map[string][]byte{
		"ads-images": {},
	})

	_, err := store.SignObjectURL(context.Background(), "ads-images", "nope.jpeg", time.Hour)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if len(signer.calls) != 0 {
		t.Errorf("expected no presign call for a missing object, got %d", len(signer.calls))
	}
}

// ---------------------------------------------------------------------------
// FindFirst: strict probe order, first hit wins
// ---------------------------------------------------------------------------

func TestFindFirst_OnlyPngExists(t *testing.T) {
	store, backend, _ := newTestStore(map[string]map[string][]byte{
		"ads-images": {"base.png": []byte("img")},
	})

	obj, tried, err := store.FindFirst(context.Background(), "ads-images", "base", []string{"jpeg", "jpg", "png"}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj == nil {
		t.Fatal("expected a signed object")
	}
	if obj.Path != "base.png" {
		t.Errorf("expected path 'base.png', got %q", obj.Path)
	}
	if len(tried) != 3 {
		t.Errorf("expected 3 tried paths, got %v", tried)
	}

	wantOrder := []string{
		"HEAD ads-images/base.jpeg",
		"HEAD ads-images/base.jpg",
		"HEAD ads-images/base.png",
	}
	for i, want := range wantOrder {
		if backend.calls[i] != want {
			t.Errorf("call %d: expected %q, got %q", i, want, backend.calls[i])
		}
	}
}

func TestFindFirst_StopsAtFirstHit(t *testing.T) {
	store, backend, _ := newTestStore(map[string]map[string][]byte{
		"ads-images": {
			"base.jpeg": []byte("a"),
			"base.png":  []byte("b"),
		},
	})

	obj, tried, err := store.FindFirst(context.Background(), "ads-images", "base", []string{"jpeg", "jpg", "png"}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj.Path != "base.jpeg" {
		t.Errorf("expected first-hit path 'base.jpeg', got %q", obj.Path)
	}
	if len(tried) != 1 {
		t.Errorf("expected probing to stop after the first hit, tried %v", tried)
	}
	for _, call := range backend.calls {
		if strings.Contains(call, "base.jpg") || strings.Contains(call, "base.png") {
			t.Errorf("probed past the first hit: %q", call)
		}
	}
}

func TestFindFirst_NothingExists(t *testing.T) {
	store, _, _ := newTestStore(map[string]map[string][]byte{
		"ads-images": {},
	})

	obj, tried, err := store.FindFirst(context.Background(), "ads-images", "ghost", nil, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj != nil {
		t.Fatalf("expected no object, got %+v", obj)
	}
	want := []string{"ghost.jpeg", "ghost.jpg", "ghost.png"}
	if len(tried) != len(want) {
		t.Fatalf("expected tried %v, got %v", want, tried)
	}
	for i := range want {
		if tried[i] != want[i] {
			t.Errorf("tried[%d]: expected %q, got %q", i, want[i], tried[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Fetch: bucket candidates, listing match, legacy remap
// ---------------------------------------------------------------------------

func TestFetch_StraightDownload(t *testing.T) {
	store, _, _ := newTestStore(map[string]map[string][]byte{
		"ads-images": {"42.jpeg": []byte("payload")},
	})

	res, err := store.Fetch(context.Background(), []string{"ads-images"}, "42.jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Body) != "payload" {
		t.Errorf("unexpected body: %q", res.Body)
	}
	if res.ContentType != "image/jpeg" {
		t.Errorf("expected content type image/jpeg, got %q", res.ContentType)
	}
}

func TestFetch_SecondBucketWins(t *testing.T) {
	store, backend, _ := newTestStore(map[string]map[string][]byte{
		"ads-images": {},
		"ads-videos": {"42.mp4": []byte("video")},
	})

	res, err := store.Fetch(context.Background(), []string{"ads-images", "ads-videos"}, "42.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Bucket != "ads-videos" {
		t.Errorf("expected bucket ads-videos, got %q", res.Bucket)
	}
	if res.ContentType != "video/mp4" {
		t.Errorf("expected video/mp4, got %q", res.ContentType)
	}
	// First bucket must be tried to exhaustion before the second is touched
	firstVideoCall := -1
	lastImageCall := -1
	for i, call := range backend.calls {
		if strings.Contains(call, "ads-videos") && firstVideoCall == -1 {
			firstVideoCall = i
		}
		if strings.Contains(call, "ads-images") {
			lastImageCall = i
		}
	}
	if firstVideoCall != -1 && lastImageCall > firstVideoCall {
		t.Errorf("bucket candidates interleaved: %v", backend.calls)
	}
}

func TestFetch_MatchesDifferentExtensionViaListing(t *testing.T) {
	store, _, _ := newTestStore(map[string]map[string][]byte{
		"ads-images": {"42.webp": []byte("webp-bytes")},
	})

	res, err := store.Fetch(context.Background(), []string{"ads-images"}, "42.jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Path != "42.webp" {
		t.Errorf("expected listing match '42.webp', got %q", res.Path)
	}
	if res.ContentType != "image/webp" {
		t.Errorf("expected image/webp, got %q", res.ContentType)
	}
}

func TestFetch_LegacyNestedPathFallsBackToRoot(t *testing.T) {
	store, _, _ := newTestStore(map[string]map[string][]byte{
		"ads-images": {"42.jpeg": []byte("img")},
	})

	res, err := store.Fetch(context.Background(), []string{"ads-images"}, "ads/42/42.jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Path != "42.jpeg" {
		t.Errorf("expected legacy remap to '42.jpeg', got %q", res.Path)
	}
}

func TestFetch_RootPathFallsBackToLegacyNested(t *testing.T) {
	store, _, _ := newTestStore(map[string]map[string][]byte{
		"ads-images": {"ads/42/42.jpeg": []byte("img")},
	})

	res, err := store.Fetch(context.Background(), []string{"ads-images"}, "42.jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Path != "ads/42/42.jpeg" {
		t.Errorf("expected legacy nested match, got %q", res.Path)
	}
}

func TestFetch_NotFoundAfterAllFallbacks(t *testing.T) {
	store, _, _ := newTestStore(map[string]map[string][]byte{
		"ads-images": {},
		"ads-videos": {},
	})

	_, err := store.Fetch(context.Background(), []string{"ads-images", "ads-videos"}, "ghost.jpeg")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestLegacyCandidates(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{"nested_to_root", "ads/42/42.jpeg", []string{"42.jpeg"}},
		{"root_to_nested", "42.jpeg", []string{"ads/42/42.jpeg"}},
		{"other_subdir", "thumbs/42.jpeg", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := legacyCandidates(tt.path)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("candidate %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestContentTypeForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"42.jpeg", "image/jpeg"},
		{"42.JPG", "image/jpeg"},
		{"42.png", "image/png"},
		{"42.mp4", "video/mp4"},
		{"42.unknown", ""},
		{"noext", ""},
	}

	for _, tt := range tests {
		if got := ContentTypeForPath(tt.path); got != tt.want {
			t.Errorf("ContentTypeForPath(%q): expected %q, got %q", tt.path, tt.want, got)
		}
	}
}

func TestPublicURL(t *testing.T) {
	store, _, _ := newTestStore(nil)
	got := store.PublicURL("ads-images", "42.jpeg")
	if got != "https://storage.test/ads-images/42.jpeg" {
		t.Errorf("unexpected public URL: %q", got)
	}
}
