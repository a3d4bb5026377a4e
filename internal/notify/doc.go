// Package notify отправляет терминальные уведомления о runs.
//
// Уведомления — best effort: ошибка отправки никогда не меняет статус run.
//
// Реализации:
//   - SlackNotifier — incoming webhook Slack (канал general)
//   - MQNotifier    — событие run.finished в RabbitMQ
//   - LogNotifier   — запись в лог
//   - Multi         — рассылка всем получателям
package notify
