// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий runs
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - run.trigger   — запрос на ручной запуск pipeline для слота
//   - run.finished  — run перешёл в терминальный статус
//
// Exchanges:
//   - stockpipe.runs — события runs
//   - stockpipe.dlq  — dead letter queue
package mq
