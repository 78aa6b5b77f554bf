package attachment

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// LocalStorage writes attachments under dir and references them as
// file://<key>. With an empty dir the body is discarded and only the
// reference is produced.
type LocalStorage struct {
	dir string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create attachment dir: %w", err)
		}
	}
	return &LocalStorage{dir: dir}, nil
}

func (l *LocalStorage) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if l.dir != "" {
		out, err := os.Create(filepath.Join(l.dir, filepath.Base(key)))
		if err != nil {
			return "", fmt.Errorf("create attachment file: %w", err)
		}
		defer out.Close()
		if _, err := io.Copy(out, body); err != nil {
			return "", fmt.Errorf("write attachment file: %w", err)
		}
	}
	return "file://" + key, nil
}

func (l *LocalStorage) Delete(_ context.Context, key string) error {
	if l.dir == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(l.dir, filepath.Base(key))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove attachment file: %w", err)
	}
	return nil
}

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectStore keeps attachments in an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket}, nil
}

func (o *ObjectStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	info, err := o.client.PutObject(ctx, o.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	endpoint := o.client.EndpointURL()
	return fmt.Sprintf("%s/%s/%s", endpoint.String(), o.bucket, url.PathEscape(info.Key)), nil
}

func (o *ObjectStore) Delete(ctx context.Context, key string) error {
	if err := o.client.RemoveObject(ctx, o.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
