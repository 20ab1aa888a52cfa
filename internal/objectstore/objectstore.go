// Package objectstore wraps S3 access for the service. Media and transcript
// artifacts are always reached through presigned URLs; the rest of the system
// never holds S3 credentials.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/reson/transcription-service/internal/config"
	"github.com/reson/transcription-service/internal/jobname"
)

const (
	// UploadExpiry bounds how long a client has to start an upload.
	UploadExpiry = 60 * time.Second
	// DownloadExpiry is generous because transcripts are fetched by
	// server-side retry loops that may span minutes.
	DownloadExpiry = 100 * time.Minute
)

// Error reports an object store failure.
type Error struct {
	Op         string
	Key        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("object store %s failed for %s: %s: %v", e.Op, e.Key, e.Message, e.Cause)
	}
	return fmt.Sprintf("object store %s failed for %s: %s", e.Op, e.Key, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err represents a missing object, which for
// freshly written transcripts is usually eventual consistency, not absence.
func IsNotFound(err error) bool {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.StatusCode == http.StatusNotFound
	}
	return false
}

// DeleteAPI is the S3 client slice used for object deletion.
type DeleteAPI interface {
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// PresignAPI is the S3 presign client slice.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*PresignedRequest, error)
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.PresignOptions)) (*PresignedRequest, error)
}

// PresignedRequest mirrors the fields of the SDK's presigned request we use.
type PresignedRequest struct {
	URL string
}

// Store issues presigned URLs and fetches bytes from them.
type Store struct {
	bucket     string
	deleter    DeleteAPI
	presigner  PresignAPI
	httpClient *http.Client
}

// New creates a Store backed by the real S3 service.
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return NewWithClients(cfg.BucketName, client, &sdkPresigner{inner: s3.NewPresignClient(client)}, nil), nil
}

// NewWithClients creates a Store over explicit client implementations.
func NewWithClients(bucket string, deleter DeleteAPI, presigner PresignAPI, httpClient *http.Client) *Store {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Store{bucket: bucket, deleter: deleter, presigner: presigner, httpClient: httpClient}
}

// sdkPresigner adapts the SDK presign client to PresignAPI.
type sdkPresigner struct {
	inner *s3.PresignClient
}

func (p *sdkPresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	req, err := p.inner.PresignGetObject(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: req.URL}, nil
}

func (p *sdkPresigner) PresignPutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	req, err := p.inner.PresignPutObject(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: req.URL}, nil
}

// PresignUpload issues a presigned PUT URL for a new object in folder. The
// object key is generated from a fresh UUID plus the content type's subtype,
// mirroring how recorded media has always been keyed.
func (s *Store) PresignUpload(ctx context.Context, folder, contentType string) (url, key string, err error) {
	parts := strings.SplitN(contentType, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &Error{Op: "presign-upload", Message: fmt.Sprintf("invalid content type %q", contentType)}
	}
	if folder == "" {
		return "", "", &Error{Op: "presign-upload", Message: "folder is required"}
	}

	key = fmt.Sprintf("%s.%s", uuid.NewString(), parts[1])
	fullKey := jobname.NormalizePath(folder, key)

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(UploadExpiry))
	if err != nil {
		return "", "", &Error{Op: "presign-upload", Key: fullKey, Message: "presign failed", Cause: err}
	}
	return req.URL, key, nil
}

// PresignDownload issues a presigned GET URL for an existing object.
func (s *Store) PresignDownload(ctx context.Context, folder, key string) (string, error) {
	if key == "" || folder == "" {
		return "", &Error{Op: "presign-download", Key: key, Message: "folder and key are required"}
	}

	fullKey := jobname.NormalizePath(folder, key)
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	}, s3.WithPresignExpires(DownloadExpiry))
	if err != nil {
		return "", &Error{Op: "presign-download", Key: fullKey, Message: "presign failed", Cause: err}
	}
	return req.URL, nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, folder, key string) error {
	if key == "" || folder == "" {
		return &Error{Op: "delete", Key: key, Message: "folder and key are required"}
	}

	fullKey := jobname.NormalizePath(folder, key)
	if _, err := s.deleter.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	}); err != nil {
		return &Error{Op: "delete", Key: fullKey, Message: "delete failed", Cause: err}
	}
	return nil
}

// FetchBytes retrieves the body behind a presigned (or otherwise reachable) URL.
func (s *Store) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Op: "fetch", Key: url, Message: "failed to create request", Cause: err}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: "fetch", Key: url, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Op: "fetch", Key: url, StatusCode: resp.StatusCode, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: "fetch", Key: url, Message: "failed to read response body", Cause: err}
	}
	return body, nil
}
