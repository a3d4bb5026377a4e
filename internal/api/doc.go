// Package api содержит HTTP API демона stockpipe.
//
// Структура:
//   - handler.go          — Handler с DI (Runner, RunHistory, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - run_handler.go      — обработчики для /runs
//   - pipeline_handler.go — описание pipeline и /healthz
//
// Запуск run через API эквивалентен ручному trigger: run выполняется
// Coordinator'ом в фоне, ответ возвращается сразу.
package api
