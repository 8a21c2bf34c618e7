package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// ErrObjectNotFound is returned when no bucket/extension/legacy combination
// resolves to an existing object.
var ErrObjectNotFound = errors.New("object not found")

// DefaultImageExtensions is the probe order used when the exact extension of
// a stored preview is unknown. Order matters: first hit wins.
var DefaultImageExtensions = []string{"jpeg", "jpg", "png"}

// knownExtensions maps every extension the ingest pipeline has ever written
// to its content type. The proxy matches directory listings against this set.
var knownExtensions = map[string]string{
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"webm": "video/webm",
}

// objectAPI is the subset of the S3 client used by MediaStore.
type objectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// presignAPI is the subset of the S3 presign client used by MediaStore.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4PresignedRequest, error)
}

// v4PresignedRequest mirrors the fields of s3.PresignedHTTPRequest we consume.
type v4PresignedRequest struct {
	URL string
}

// presignAdapter wraps the real presign client behind presignAPI.
type presignAdapter struct {
	client *s3.PresignClient
}

func (p *presignAdapter) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4PresignedRequest, error) {
	req, err := p.client.PresignGetObject(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return &v4PresignedRequest{URL: req.URL}, nil
}

// MediaStore resolves private storage objects into time-limited signed URLs
// and raw bytes. All S3 credentials stay server-side.
type MediaStore struct {
	client    objectAPI
	presigner presignAPI
	endpoint  string
}

// NewMediaStore builds a MediaStore against an S3-compatible endpoint.
func NewMediaStore(ctx context.Context, endpoint, region, accessKey, secretKey string) (*MediaStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // For MinIO/custom S3-compatible endpoints
		}
	})

	return &MediaStore{
		client:    client,
		presigner: &presignAdapter{client: s3.NewPresignClient(client)},
		endpoint:  strings.TrimSuffix(endpoint, "/"),
	}, nil
}

// SignedObject is a successfully resolved signed URL.
type SignedObject struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// SignObjectURL returns a presigned GET URL for an object that exists.
// Returns ErrObjectNotFound when the object is missing.
func (m *MediaStore) SignObjectURL(ctx context.Context, bucket, objectPath string, expires time.Duration) (string, error) {
	_, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		if isNotFound(err) {
			return "", ErrObjectNotFound
		}
		return "", fmt.Errorf("head %s/%s: %w", bucket, objectPath, err)
	}

	req, err := m.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectPath),
	}, func(o *s3.PresignOptions) {
		o.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, objectPath, err)
	}
	return req.URL, nil
}

// FindFirst probes base.<ext> for each extension strictly in order and signs
// the first object that exists. Returns (nil, tried, nil) when none exist.
func (m *MediaStore) FindFirst(ctx context.Context, bucket, base string, exts []string, expires time.Duration) (*SignedObject, []string, error) {
	if len(exts) == 0 {
		exts = DefaultImageExtensions
	}

	tried := make([]string, 0, len(exts))
	for _, ext := range exts {
		objectPath := base + "." + strings.TrimPrefix(ext, ".")
		tried = append(tried, objectPath)

		url, err := m.SignObjectURL(ctx, bucket, objectPath, expires)
		if errors.Is(err, ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, tried, err
		}
		return &SignedObject{URL: url, Path: objectPath}, tried, nil
	}
	return nil, tried, nil
}

// FetchResult holds the raw bytes of a proxied object.
type FetchResult struct {
	Body        []byte
	ContentType string
	Bucket      string
	Path        string
}

/// Fetch downloads an object, trying each candidate bucket to exhaustion:
// straight download, then a directory listing matched by basename against the
// known extensions, then the legacy nested layout ads/{id}/{id}.ext.
// Buckets are tried sequentially, never in parallel.
func (m *MediaStore) Fetch(ctx context.Context, buckets []string, objectPath string) (*FetchResult, error) {
	for _, bucket := range buckets {
		if res, err := m.fetchFromBucket(ctx, bucket, objectPath); err == nil {
			return res, nil
		} else if !errors.Is(err, ErrObjectNotFound) {
			return nil, err
		}
	}
	return nil, ErrObjectNotFound
}

func (m *MediaStore) fetchFromBucket(ctx context.Context, bucket, objectPath string) (*FetchResult, error) {
	// 1. Straight download
	if res, err := m.download(ctx, bucket, objectPath); err == nil {
		return res, nil
	} else if !errors.Is(err, ErrObjectNotFound) {
		return nil, err
	}

	// 2. List the parent directory and match by basename sans extension
	if found, err := m.matchByListing(ctx, bucket, objectPath); err != nil {
		return nil, err
	} else if found != "" {
		return m.download(ctx, bucket, found)
	}

	// 3. Legacy layout remap, in both directions
	for _, candidate := range legacyCandidates(objectPath) {
		if res, err := m.download(ctx, bucket, candidate); err == nil {
			return res, nil
		} else if !errors.Is(err, ErrObjectNotFound) {
			return nil, err
		}
	}

	return nil, ErrObjectNotFound
}

func (m *MediaStore) download(ctx context.Context, bucket, objectPath string) (*FetchResult, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", bucket, objectPath, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", bucket, objectPath, err)
	}

	ct := ContentTypeForPath(objectPath)
	if ct == "" && out.ContentType != nil {
		ct = *out.ContentType
	}
	if ct == "" {
		ct = "application/octet-stream"
	}

	return &FetchResult{Body: body, ContentType: ct, Bucket: bucket, Path: objectPath}, nil
}

// matchByListing lists the parent prefix of objectPath and returns the key of
// any object whose basename (sans extension) matches the expected basename
// with a known extension. Empty string means no match.
func (m *MediaStore) matchByListing(ctx context.Context, bucket, objectPath string) (string, error) {
	dir := path.Dir(objectPath)
	prefix := ""
	if dir != "." && dir != "/" {
		prefix = dir + "/"
	}
	base := trimExtension(path.Base(objectPath))

	out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix + base),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}

	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		name := path.Base(key)
		ext := strings.TrimPrefix(path.Ext(name), ".")
		if trimExtension(name) == base {
			if _, ok := knownExtensions[strings.ToLower(ext)]; ok {
				return key, nil
			}
		}
	}
	return "", nil
}

// legacyCandidates maps between the flat {id}.ext layout and the legacy
// nested ads/{id}/{id}.ext layout.
func legacyCandidates(objectPath string) []string {
	name := path.Base(objectPath)
	base := trimExtension(name)

	if strings.HasPrefix(objectPath, "ads/") {
		// ads/{id}/{id}.ext -> {id}.ext at bucket root
		return []string{name}
	}
	if !strings.Contains(objectPath, "/") && base != "" {
		// {id}.ext -> ads/{id}/{id}.ext
		return []string{"ads/" + base + "/" + name}
	}
	return nil
}

// PublicURL builds the would-be public URL for an object. Used as the
// soft-fail fallback — the buckets are private, so this likely 403s, but a
// broken image beats a broken page.
func (m *MediaStore) PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", m.endpoint, bucket, objectPath)
}

// ContentTypeForPath guesses a content type from the path's extension.
func ContentTypeForPath(objectPath string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(objectPath), "."))
	return knownExtensions[ext]
}

func trimExtension(name string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
			return true
		}
	}
	return false
}
