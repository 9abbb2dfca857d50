// Package payloadstore backs upload_payload/download_payload: oplog entries
// that would otherwise inline large function parameters or results instead
// spill them to blob storage and carry only an oplog.PayloadRef.
package payloadstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/golemproject/workerexec/internal/oplog"
)

// Store is the oversized-payload blob contract.
type Store interface {
	Upload(ctx context.Context, owner oplog.OwnedWorkerId, data []byte) (oplog.PayloadRef, error)
	Download(ctx context.Context, ref oplog.PayloadRef) ([]byte, error)
}

// Config holds S3 backend configuration, following the region/endpoint/
// path-style shape pithecene-io-quarry's lode/client_s3.go uses for
// S3-compatible providers.
type Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool

	// AccessKeyID/SecretAccessKey, when both set, pin the client to a
	// static credential pair instead of the default chain — needed for
	// S3-compatible dev endpoints (MinIO, etc.) with no IAM role to
	// assume.
	AccessKeyID     string
	SecretAccessKey string
}

func (c Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("payload store: S3 bucket is required")
	}
	return nil
}

// S3Store is the production payload backend.
type S3Store struct {
	client *s3.Client
	cfg    Config
}

// NewS3Store loads AWS credentials via the default chain (env vars, shared
// config, IAM role) using aws-sdk-go-v2/config + credentials, the same
// packages the teacher already depends on.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for payload store: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
	}, nil
}

func (s *S3Store) key(owner oplog.OwnedWorkerId, sha string) string {
	if s.cfg.Prefix == "" {
		return fmt.Sprintf("%s/%s", owner.String(), sha)
	}
	return fmt.Sprintf("%s/%s/%s", s.cfg.Prefix, owner.String(), sha)
}

func (s *S3Store) Upload(ctx context.Context, owner oplog.OwnedWorkerId, data []byte) (oplog.PayloadRef, error) {
	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])
	key := s.key(owner, sha)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return oplog.PayloadRef{}, fmt.Errorf("upload payload for %s: %w", owner, err)
	}

	return oplog.PayloadRef{
		Key:    key,
		Size:   int64(len(data)),
		SHA256: sha,
	}, nil
}

func (s *S3Store) Download(ctx context.Context, ref oplog.PayloadRef) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("download payload %s: %w", ref.Key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read payload body %s: %w", ref.Key, err)
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != ref.SHA256 {
		return nil, fmt.Errorf("payload %s failed integrity check", ref.Key)
	}
	return data, nil
}

var _ Store = (*S3Store)(nil)
