// Package storage writes daily ledger exports to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/digkill/faithtrain/internal/models"
)

type Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
	Prefix       string
}

// ObjectPutter is the part of *s3.Client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type LedgerArchive struct {
	cfg    Config
	client ObjectPutter
}

func NewLedgerArchive(cfg Config) (*LedgerArchive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return newLedgerArchive(cfg, s3.New(options)), nil
}

func newLedgerArchive(cfg Config, client ObjectPutter) *LedgerArchive {
	if cfg.Prefix == "" {
		cfg.Prefix = "ledger"
	}
	return &LedgerArchive{cfg: cfg, client: client}
}

// PutLedger uploads entries as JSON lines under a key derived from day, so
// re-running an export for the same day replaces the object.
func (a *LedgerArchive) PutLedger(ctx context.Context, day time.Time, entries []models.LedgerEntry) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return "", fmt.Errorf("encode ledger entry %d: %w", e.ID, err)
		}
	}

	key := a.key(day)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("upload ledger to s3: %w", err)
	}
	return key, nil
}

func (a *LedgerArchive) key(day time.Time) string {
	prefix := strings.Trim(a.cfg.Prefix, "/")
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", day.Year(), day.Month(), day.Day()), "ledger.jsonl")
}
