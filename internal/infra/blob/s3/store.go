// Package s3 implements the blob store on an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"inventario/internal/blob/core"
)

// Store implements core.Store using an S3-compatible backend (AWS S3 or MinIO).
// Objects live at <prefix>/<partition>/<key> in a single bucket; the schema
// marker is <prefix>/schema.json.
type Store struct {
	client *s3.Client
	bucket string
	prefix string

	mu     sync.RWMutex
	open   bool
	schema core.Schema
}

// Config holds explicit construction parameters.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string // optional; if set enables custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	SessionToken    string // optional
	PathStyle       bool
}

// New creates an S3 blob store from Config. Call Init before use.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverS3 }

func (s *Store) root() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *Store) objectKey(partition, key string) string {
	return s.root() + partition + "/" + key
}

func (s *Store) check(partition string) error {
	if err := core.CheckPartition(partition); err != nil {
		return err
	}
	if !s.open {
		return core.ErrNotInitialized
	}
	return nil
}

func (s *Store) checkKey(partition, key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	return s.check(partition)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

// Init reads and upgrades the schema marker object.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	markerKey := s.root() + "schema.json"
	var current core.Schema
	b, found, err := s.read(ctx, markerKey)
	if err != nil {
		return core.Unavailable(s.Driver(), err)
	}
	if found {
		if err := json.Unmarshal(b, &current); err != nil {
			return core.Unavailable(s.Driver(), fmt.Errorf("schema marker: %w", err))
		}
	}
	next := current.Upgrade()
	raw, err := json.Marshal(next)
	if err != nil {
		return core.Unavailable(s.Driver(), err)
	}
	if err := s.write(ctx, markerKey, raw); err != nil {
		return core.Unavailable(s.Driver(), err)
	}
	s.schema = next
	s.open = true
	return nil
}

func (s *Store) read(ctx context.Context, objectKey string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &objectKey})
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) write(ctx context.Context, objectKey string, payload []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &objectKey,
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/octet-stream"),
	})
	return err
}

// Put uploads payload, replacing any previous object.
func (s *Store) Put(ctx context.Context, partition, key string, payload []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkKey(partition, key); err != nil {
		return err
	}
	if err := s.write(ctx, s.objectKey(partition, key), payload); err != nil {
		return core.WriteFailed(partition, key, err)
	}
	return nil
}

// Get downloads an object; a missing object reports found=false.
func (s *Store) Get(ctx context.Context, partition, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkKey(partition, key); err != nil {
		return nil, false, err
	}
	return s.read(ctx, s.objectKey(partition, key))
}

// Delete removes an object. S3 deletes of missing keys succeed.
func (s *Store) Delete(ctx context.Context, partition, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkKey(partition, key); err != nil {
		return err
	}
	objectKey := s.objectKey(partition, key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &objectKey})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &prefix, ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)
	return keys, nil
}

// List downloads every object of a partition.
func (s *Store) List(ctx context.Context, partition string) ([]core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(partition); err != nil {
		return nil, err
	}
	base := s.root() + partition + "/"
	keys, err := s.listKeys(ctx, base)
	if err != nil {
		return nil, err
	}
	out := make([]core.Entry, 0, len(keys))
	for _, k := range keys {
		b, found, err := s.read(ctx, k)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, core.Entry{Key: strings.TrimPrefix(k, base), Payload: b})
		}
	}
	return out, nil
}

// Destroy deletes every object under the prefix. Buckets have no exclusive
// handles, so deletion is never blocked.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.listKeys(ctx, s.root())
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: aws.String(k)}); err != nil && !isNotFound(err) {
			return err
		}
	}
	s.open = false
	s.schema = core.Schema{}
	return nil
}

// Close releases the handle.
func (s *Store) Close() error {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	return nil
}
