// Package storage archives run reports to an S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// Config describes the bucket reports are uploaded to.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every object key.
	Prefix string
}

// Validate checks the required fields.
func (c Config) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("minio storage: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ReportArchiver uploads report files to MinIO.
type ReportArchiver struct {
	client *minio.Client
	config Config
	logger *logrus.Logger

	mu          sync.Mutex
	bucketReady bool
}

// NewReportArchiver creates an archiver. No request is made until the first
// upload.
func NewReportArchiver(logger *logrus.Logger, cfg Config) (*ReportArchiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &ReportArchiver{client: client, config: cfg, logger: logger}, nil
}

// ObjectKey returns the key a report of runID is stored under.
func (a *ReportArchiver) ObjectKey(runID, reportPath string) string {
	if runID == "" {
		runID = "unnamed"
	}
	return path.Join(strings.Trim(a.config.Prefix, "/"), runID, filepath.Base(reportPath))
}

// Archive uploads reportPath and returns its "bucket/key" location.
func (a *ReportArchiver) Archive(ctx context.Context, runID, reportPath string) (string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := a.ObjectKey(runID, reportPath)
	info, err := a.client.FPutObject(ctx, a.config.Bucket, key, reportPath, minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"run-id": runID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	location := a.config.Bucket + "/" + key
	a.logger.WithFields(logrus.Fields{
		"location": location,
		"size":     info.Size,
	}).Info("Report archived")
	return location, nil
}

// ensureBucket creates the bucket if it doesn't exist. A failed check is
// retried on the next upload.
func (a *ReportArchiver) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bucketReady {
		return nil
	}
	if err := a.createBucket(ctx); err != nil {
		return err
	}
	a.bucketReady = true
	return nil
}

func (a *ReportArchiver) createBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	exists, err := a.client.BucketExists(ctx, a.config.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	a.logger.Infof("Creating bucket: %s", a.config.Bucket)
	err = a.client.MakeBucket(ctx, a.config.Bucket, minio.MakeBucketOptions{})
	if err != nil {
		// Another writer may have created it in between.
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}
