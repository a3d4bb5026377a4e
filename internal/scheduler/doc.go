// Package scheduler запускает pipeline по расписанию.
//
// Scheduler периодически вычисляет наступившие слоты cron-выражения
// и для каждого вызывает Submitter (обычно orchestrator.Coordinator).
//
// Структура:
//   - scheduler.go — Scheduler (Tick, Run)
//   - cron.go      — вычисление слотов по cron-выражению
//
// Catchup:
//
// При catchup=false после простоя запускается только последний
// наступивший слот, пропущенные не догоняются.
//
// Leader Election:
//
// При нескольких процессах тики выполняет только владелец
// pg_try_advisory_lock (repo.AdvisoryLock).
package scheduler
