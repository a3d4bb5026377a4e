// Package orchestrator выполняет runs pipeline.
//
// Coordinator проводит один run через все фазы:
//
//	pending → running → sensor → queued → stage 1 → ... → stage N → succeeded
//	                          ↘ timeout / fatal / retries exhausted / cancel → failed
//
// Stages выполняются строго последовательно: stage N+1 получает выходную
// ссылку stage N без изменений. После падения оставшиеся stages получают
// итог skipped, уже завершённые остаются succeeded.
//
// Runs разных слотов принимаются и ждут sensor параллельно, второй run
// того же слота отклоняется (ErrRunAlreadyActive). Stages разных runs пишут
// в одни ключи object store, поэтому их цепочки выполняются по очереди.
// По завершении run Notifier вызывается ровно один раз; ошибки и паники
// Notifier, как и ошибки RunStore, только логируются.
package orchestrator
