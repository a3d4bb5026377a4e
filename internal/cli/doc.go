// Package cli реализует инструмент командной строки stockpipe.
//
// CLI работает через HTTP API демона и не импортирует внутренние пакеты.
//
// Client инкапсулирует HTTP-запросы, парсинг ответов (DataResponse,
// ListResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	runs, err := client.ListRuns(cli.ListRunsOpts{Active: true})
//
// Output печатает таблицы (text/tabwriter) или JSON (--json). Данные
// выводятся в stdout, сообщения в stderr, статусы раскрашиваются:
//
//	stockpipe-cli run list --json | jq .
//
// Команды:
//   - run: list, trigger, show, cancel
//   - pipeline
package cli
