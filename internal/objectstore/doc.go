// Package objectstore — клиент объектного хранилища.
//
// Stages обмениваются ссылками вида s3://bucket/key, а данные живут
// в хранилище. Реализации:
//   - MinioStore — MinIO / S3-совместимое хранилище (minio-go)
//   - MemoryStore — in-memory, для тестов и локального запуска
//
// FindBySuffix ищет артефакт, порождённый внешней задачей, по суффиксу ключа.
package objectstore
