package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Service archives accepted import files so a bulk load can always
// be traced back to the exact file that produced it.
type S3Service struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	region     string
}

// UploadResult describes one archived file.
type UploadResult struct {
	S3Key      string
	S3Bucket   string
	FileHash   string // SHA-256 of the file content
	FileSize   int64
	UploadedAt time.Time
}

// NewS3Service builds the service from S3_BUCKET and S3_REGION.
// Returns nil when no bucket is configured; archival is then skipped.
func NewS3Service() (*S3Service, error) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		return nil, nil
	}
	region := os.Getenv("S3_REGION")
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Service{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		region:     region,
	}, nil
}

// ArchiveImport uploads an import file under imports/{sheetID}/ and
// returns its key and content hash.
func (s *S3Service) ArchiveImport(ctx context.Context, sheetID uuid.UUID, filename string, data []byte) (*UploadResult, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	key := fmt.Sprintf("imports/%s/%s_%s", sheetID, uuid.New().String(), filename)

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"sheet-id":  sheetID.String(),
			"file-hash": hash,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload import file: %w", err)
	}

	return &UploadResult{
		S3Key:      key,
		S3Bucket:   s.bucket,
		FileHash:   hash,
		FileSize:   int64(len(data)),
		UploadedAt: time.Now(),
	}, nil
}

// Download fetches an archived file by key.
func (s *S3Service) Download(ctx context.Context, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return buf.Bytes(), nil
}
