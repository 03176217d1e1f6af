package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/atd-dts/mds-ingest/pkg/log"
)

// ErrNotInitialized is returned by operations invoked before the blob
// client is ready.
var ErrNotInitialized = errors.New("object store client is not initialized")

// DefaultEndpoint is the S3 endpoint used when none is configured.
const DefaultEndpoint = "s3.amazonaws.com"

// Config holds the connection settings for the versioned blob bucket.
type Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Insecure  bool
	// FernetKey enables the encryption layer when set.
	FernetKey string
}

// PutAck records where a write landed. Versioning is enabled on the
// bucket, so every put creates a new version and never destroys an old one.
type PutAck struct {
	Key       string
	VersionID string
	Size      int64
}

// Version describes one stored version of a key.
type Version struct {
	ID           string
	Size         int64
	LastModified time.Time
	IsLatest     bool
}

// Store is a bucket-scoped blob client with an optional symmetric
// encryption layer. It is safe for concurrent use.
type Store struct {
	bucket string
	client *minio.Client
	cipher *Cipher
}

// New validates the configuration and builds the blob client. The bucket
// and both credentials are required; the encryption key is optional and
// disables Put(encrypt=true) when absent.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("missing value for ATD_MDS_BUCKET environment variable")
	}
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("missing value for AWS_ACCESS_KEY_ID environment variable")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("missing value for AWS_SECRET_ACCESS_KEY environment variable")
	}

	s := &Store{bucket: cfg.Bucket}

	if cfg.FernetKey != "" {
		cipher, err := NewCipher(cfg.FernetKey)
		if err != nil {
			return nil, err
		}
		s.cipher = cipher
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: !cfg.Insecure,
		Region: cfg.Region,
	})
	if err != nil {
		// Leave the client unset; operations report ErrNotInitialized.
		logger := log.WithComponent("objectstore")
		logger.Error().Err(err).Msg("failed to initialize blob client")
		return s, nil
	}
	s.client = client
	return s, nil
}

// Ready reports whether the underlying client was initialized.
func (s *Store) Ready() bool {
	return s.client != nil
}

// Put writes a JSON document at key, optionally encrypting it first.
func (s *Store) Put(ctx context.Context, key string, body []byte, encrypt bool) (*PutAck, error) {
	if s.client == nil {
		return nil, ErrNotInitialized
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("document for %s is not valid JSON", key)
	}

	payload := body
	contentType := "application/json"
	if encrypt {
		if s.cipher == nil {
			return nil, fmt.Errorf("encryption requested for %s but no key is configured", key)
		}
		token, err := s.cipher.Encrypt(string(body))
		if err != nil {
			return nil, err
		}
		payload = []byte(token)
		contentType = "text/plain"
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("failed to write object %s: %w", key, err)
	}
	return &PutAck{Key: key, VersionID: info.VersionID, Size: info.Size}, nil
}

// GetBytes fetches the blob at key and strips the encryption layer when
// the marker matches. Errors are hard; use Get for the soft variant.
func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if s.client == nil {
		return nil, ErrNotInitialized
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch object %s: %w", key, err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	if IsEncrypted(string(raw)) {
		if s.cipher == nil {
			return nil, fmt.Errorf("object %s is encrypted but no key is configured", key)
		}
		plain, err := s.cipher.Decrypt(string(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt object %s: %w", key, err)
		}
		return []byte(plain), nil
	}
	return raw, nil
}

// Get fetches and decodes the JSON document at key. Failures are soft: a
// missing blob, undecryptable body, or invalid JSON logs the cause and
// returns an empty document so pipelines stay resilient to absent
// payloads.
func (s *Store) Get(ctx context.Context, key string) map[string]any {
	raw, err := s.GetBytes(ctx, key)
	if err != nil {
		logger := log.WithComponent("objectstore")
		logger.Warn().Err(err).Str("key", key).Msg("treating blob as empty")
		return map[string]any{}
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger := log.WithComponent("objectstore")
		logger.Warn().Err(err).Str("key", key).Msg("treating blob as empty")
		return map[string]any{}
	}
	return doc
}

// ListVersions returns every stored version of key, newest first as
// reported by the bucket.
func (s *Store) ListVersions(ctx context.Context, key string) ([]Version, error) {
	if s.client == nil {
		return nil, ErrNotInitialized
	}

	var versions []Version
	opts := minio.ListObjectsOptions{Prefix: key, Recursive: true, WithVersions: true}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list versions of %s: %w", key, obj.Err)
		}
		if obj.Key != key {
			continue
		}
		versions = append(versions, Version{
			ID:           obj.VersionID,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			IsLatest:     obj.IsLatest,
		})
	}
	return versions, nil
}

// DeleteAllVersions removes every version of key. This is the only
// destructive operation in the pipeline and exists for administrative
// cleanup.
func (s *Store) DeleteAllVersions(ctx context.Context, key string) (int, error) {
	versions, err := s.ListVersions(ctx, key)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, v := range versions {
		err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{VersionID: v.ID})
		if err != nil {
			return removed, fmt.Errorf("failed to remove version %s of %s: %w", v.ID, key, err)
		}
		removed++
	}
	return removed, nil
}
