package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Enabled reports whether enough is set to build a sink.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

// objectStore is the part of *minio.Client the sink uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Sink buffers each run in memory and uploads runs/<run_id>.jsonl once
// the run reaches a terminal stage.
type S3Sink struct {
	client objectStore
	bucket string
	region string

	initOnce sync.Once
	initErr  error

	mu   sync.Mutex
	runs map[string]*bytes.Buffer
}

func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return newS3Sink(client, bucket, region), nil
}

func newS3Sink(client objectStore, bucket, region string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, region: region, runs: map[string]*bytes.Buffer{}}
}

func (s *S3Sink) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3Sink) Append(ctx context.Context, ev Event) error {
	if s == nil || ev.RunID == "" {
		return nil
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	buf, ok := s.runs[ev.RunID]
	if !ok {
		buf = &bytes.Buffer{}
		s.runs[ev.RunID] = buf
	}
	buf.Write(raw)
	buf.WriteByte('\n')
	if !ev.Terminal() {
		s.mu.Unlock()
		return nil
	}
	delete(s.runs, ev.RunID)
	s.mu.Unlock()
	return s.upload(ctx, ev.RunID, buf.Bytes())
}

func (s *S3Sink) upload(ctx context.Context, runID string, content []byte) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := s.client.PutObject(ctx, s.bucket, ObjectKey(runID), bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	return err
}

// ObjectKey is where a run's trace is stored.
func ObjectKey(runID string) string {
	return "runs/" + sanitizeRunID(runID) + ".jsonl"
}

// Close uploads runs that never reached a terminal stage.
func (s *S3Sink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	pending := s.runs
	s.runs = map[string]*bytes.Buffer{}
	s.mu.Unlock()
	var firstErr error
	for id, buf := range pending {
		if err := s.upload(context.Background(), id, buf.Bytes()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
