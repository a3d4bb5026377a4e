package objectstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/Stockpipe/internal/domain"
)

// ErrNotFound — объект или ключ с нужным суффиксом не найден.
var ErrNotFound = errors.New("object not found")

// Store — интерфейс объектного хранилища.
type Store interface {
	// Put записывает объект и возвращает ссылку s3://bucket/key.
	// Повторная запись того же ключа перезаписывает объект.
	Put(ctx context.Context, bucket, key string, data []byte) (domain.Reference, error)

	// Get читает объект по ссылке.
	Get(ctx context.Context, ref domain.Reference) ([]byte, error)

	// List возвращает ключи с префиксом prefix (рекурсивно).
	List(ctx context.Context, bucket, prefix string) ([]string, error)

	// RemovePrefix удаляет все объекты с префиксом prefix.
	RemovePrefix(ctx context.Context, bucket, prefix string) error
}

// FindBySuffix возвращает первый в лексикографическом порядке ключ
// под prefix, оканчивающийся на suffix.
func FindBySuffix(ctx context.Context, store Store, bucket, prefix, suffix string) (string, error) {
	keys, err := store.List(ctx, bucket, prefix)
	if err != nil {
		return "", fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}

	sort.Strings(keys)
	for _, key := range keys {
		if strings.HasSuffix(key, suffix) {
			return key, nil
		}
	}

	return "", fmt.Errorf("%w: no %q object under %s/%s", ErrNotFound, suffix, bucket, prefix)
}
