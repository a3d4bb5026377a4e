package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/shaiso/Stockpipe/internal/domain"
)

// NewMinioClient создаёт клиент MinIO.
func NewMinioClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
}

// MinioStore — Store поверх MinIO.
//
// Bucket создаётся при первой записи, если его нет.
type MinioStore struct {
	client *minio.Client
	region string

	mu      sync.Mutex
	buckets map[string]bool // buckets, существование которых уже проверено
}

// NewMinioStore создаёт MinioStore.
func NewMinioStore(client *minio.Client, region string) *MinioStore {
	return &MinioStore{
		client:  client,
		region:  region,
		buckets: make(map[string]bool),
	}
}

// Put записывает объект, создавая bucket при необходимости.
func (s *MinioStore) Put(ctx context.Context, bucket, key string, data []byte) (domain.Reference, error) {
	if err := s.ensureBucket(ctx, bucket); err != nil {
		return "", fmt.Errorf("ensure bucket %s: %w", bucket, err)
	}

	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType(key)})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}

	return domain.ObjectRef(bucket, key), nil
}

// Get читает объект по ссылке.
func (s *MinioStore) Get(ctx context.Context, ref domain.Reference) ([]byte, error) {
	bucket, key, err := ref.Object()
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(err, ref)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapErr(err, ref)
	}
	return data, nil
}

// List возвращает ключи под prefix.
func (s *MinioStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			if isNoSuchBucket(obj.Err) {
				return nil, nil
			}
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// RemovePrefix удаляет все объекты под prefix.
func (s *MinioStore) RemovePrefix(ctx context.Context, bucket, prefix string) error {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := s.client.ListObjects(rctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})

	toRemove := make(chan minio.ObjectInfo)
	var listErr error
	go func() {
		defer close(toRemove)
		for obj := range objects {
			if obj.Err != nil {
				if !isNoSuchBucket(obj.Err) {
					listErr = obj.Err
				}
				return
			}
			select {
			case toRemove <- obj:
			case <-rctx.Done():
				return
			}
		}
	}()

	for rErr := range s.client.RemoveObjects(rctx, bucket, toRemove, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil {
			return fmt.Errorf("remove %s/%s: %w", bucket, rErr.ObjectName, rErr.Err)
		}
	}

	if listErr != nil {
		return fmt.Errorf("list %s/%s: %w", bucket, prefix, listErr)
	}
	return ctx.Err()
}

func (s *MinioStore) ensureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buckets[bucket] {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			// Параллельный run мог успеть создать bucket
			if code := minio.ToErrorResponse(err).Code; code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return err
			}
		}
	}

	s.buckets[bucket] = true
	return nil
}

func (s *MinioStore) mapErr(err error, ref domain.Reference) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return fmt.Errorf("get %s: %w", ref, err)
}

func isNoSuchBucket(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchBucket"
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
