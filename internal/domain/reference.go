package domain

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotObjectRef — ссылка не указывает на объект в хранилище.
var ErrNotObjectRef = errors.New("reference is not an object reference")

const objectScheme = "s3://"

// Reference — непрозрачный локатор данных, который stage отдаёт следующему.
//
// Движок никогда не читает содержимое по ссылке — только передаёт её дальше
// без изменений. Интерпретируют ссылку сами stages.
type Reference string

// ObjectRef формирует ссылку на объект: "s3://bucket/key".
func ObjectRef(bucket, key string) Reference {
	return Reference(objectScheme + bucket + "/" + strings.TrimPrefix(key, "/"))
}

// String возвращает строковое представление ссылки.
func (r Reference) String() string {
	return string(r)
}

// IsZero возвращает true для пустой ссылки.
func (r Reference) IsZero() bool {
	return r == ""
}

// Object разбирает ссылку на bucket и key.
func (r Reference) Object() (bucket, key string, err error) {
	s := string(r)
	if !strings.HasPrefix(s, objectScheme) {
		return "", "", fmt.Errorf("%w: %q", ErrNotObjectRef, s)
	}
	rest := strings.TrimPrefix(s, objectScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrNotObjectRef, s)
	}
	return bucket, key, nil
}

// IsPrefix возвращает true, если ссылка указывает на "каталог" (оканчивается на /).
func (r Reference) IsPrefix() bool {
	return strings.HasSuffix(string(r), "/")
}

// Dir возвращает каталог ключа объекта: "s3://b/AAPL/prices.json" → "AAPL".
func (r Reference) Dir() (string, error) {
	_, key, err := r.Object()
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(key, "/") {
		return strings.TrimSuffix(key, "/"), nil
	}
	return path.Dir(key), nil
}
