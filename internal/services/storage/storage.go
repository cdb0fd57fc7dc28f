package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object is what callers persist after an upload.
type Object struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Store uploads files to an S3-compatible bucket (DigitalOcean Spaces, MinIO, AWS).
type Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PublicURL string
}

func New(o Options) (*Store, error) {
	client, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
		Region: o.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	public := strings.TrimRight(o.PublicURL, "/")
	if public == "" {
		scheme := "http"
		if o.UseSSL {
			scheme = "https"
		}
		public = fmt.Sprintf("%s://%s.%s", scheme, o.Bucket, o.Endpoint)
	}
	return &Store{client: client, bucket: o.Bucket, publicURL: public}, nil
}

// ObjectKey builds <folder>/<uuid><ext>. The folder is cleaned so callers
// cannot escape their prefix.
func ObjectKey(folder, filename string) string {
	folder = strings.Trim(path.Clean("/"+strings.ReplaceAll(folder, "\\", "/")), "/")
	if folder == "" || folder == "." {
		folder = "uploads"
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return folder + "/" + uuid.NewString() + ext
}

func (s *Store) URL(key string) string {
	return s.publicURL + "/" + key
}

// Put uploads body and confirms the object exists before returning.
func (s *Store) Put(ctx context.Context, folder, filename string, body io.Reader, size int64, contentType string) (Object, error) {
	key := ObjectKey(folder, filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", key, err)
	}

	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return Object{}, fmt.Errorf("verify %s: %w", key, err)
	}

	return Object{URL: s.URL(key), Path: key, Size: info.Size}, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
