// Package storage uploads finished artifacts to a Supabase storage bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	storage_go "github.com/supabase-community/storage-go"
	supa "github.com/supabase-community/supabase-go"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/ports"
)

const cacheControl = "3600"

// Uploader implements ports.Uploader. Objects are upserted and the public
// URL is returned.
type Uploader struct {
	// storage-go keeps per-upload headers on the shared transport.
	mu      sync.Mutex
	storage *storage_go.Client
	bucket  string
	log     *logrus.Entry
}

var _ ports.Uploader = (*Uploader)(nil)

// New builds an uploader from Supabase credentials.
func New(supabaseURL, serviceKey, bucket string, log *logrus.Logger) (*Uploader, error) {
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	client, err := supa.NewClient(strings.TrimRight(supabaseURL, "/"), serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize supabase client: %w", err)
	}
	return NewWithClient(client.Storage, bucket, log), nil
}

// NewWithClient wraps an existing storage client.
func NewWithClient(client *storage_go.Client, bucket string, log *logrus.Logger) *Uploader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Uploader{
		storage: client,
		bucket:  bucket,
		log:     log.WithFields(logrus.Fields{"component": "storage", "bucket": bucket}),
	}
}

// Upload copies localPath to remotePath in the bucket.
func (u *Uploader) Upload(ctx context.Context, localPath, remotePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	remotePath = strings.TrimLeft(remotePath, "/")
	if remotePath == "" {
		return "", errors.New("upload: remote path is required")
	}
	mtype, err := mimetype.DetectFile(localPath)
	if err != nil {
		return "", fmt.Errorf("detect content type of %s: %w", localPath, err)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	contentType := mtype.String()
	upsert := true
	cache := cacheControl
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert, CacheControl: &cache}

	u.mu.Lock()
	_, err = u.storage.UploadFile(u.bucket, remotePath, f, opts)
	u.mu.Unlock()
	if err != nil {
		return "", classify(remotePath, err)
	}

	url := u.storage.GetPublicUrl(u.bucket, remotePath).SignedURL
	u.log.WithFields(logrus.Fields{
		"remote_path":  remotePath,
		"content_type": contentType,
		"url":          url,
	}).Info("artifact uploaded")
	return url, nil
}

// classify marks network failures and server-side storage errors transient.
func classify(remotePath string, err error) error {
	op := "upload " + remotePath
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.Transient(op, err)
	}
	var se *storage_go.StorageError
	if errors.As(err, &se) && (se.Status >= 500 || se.Status == 429) {
		return errs.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
