// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики runs, stages и sensor'а
//
// Daemon экспортирует метрики на /metrics endpoint.
package telemetry
