package objectstore

import (
	"errors"
	"fmt"
	"strings"
)

// Config — параметры подключения к MinIO.
type Config struct {
	Endpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minio"`
	SecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minio123"`
	Region    string `env:"MINIO_REGION" envDefault:"us-east-1"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	// Bucket — bucket для котировок.
	Bucket string `env:"MINIO_BUCKET" envDefault:"stock-market"`
}

// Validate проверяет конфигурацию.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("minio endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("minio endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" || strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("minio credentials are required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("minio bucket is required")
	}
	return nil
}

// EndpointFromURL отрезает схему у URL вида http://minio:9000.
// Endpoint в настройках подключения задаётся со схемой.
func EndpointFromURL(raw string) (endpoint string, secure bool) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(raw, "https://"), "/"), true
	case strings.HasPrefix(raw, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(raw, "http://"), "/"), false
	default:
		return raw, false
	}
}
