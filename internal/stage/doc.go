// Package stage содержит абстракцию stage и исполнитель попыток.
//
// Stage — единица работы pipeline. Получает входную Reference
// (выход предыдущего stage или контекст sensor'а) и возвращает выходную.
// Конфигурация stage (bucket, endpoint, образ) передаётся при создании,
// а не через Execute.
//
// Executor выполняет stage с политикой retry и таймаутом:
//
//	attempt 1 → ошибка recoverable → backoff → attempt 2 → ... → max_attempts
//
// Классификация ошибок:
//   - *FatalError — run прерывается без повторов
//   - *RecoverableError и неклассифицированные — повтор в рамках бюджета
//   - *TimeoutError — recoverable, если не задан timeout_fatal
//
// Отмена run проверяется между попытками и во время backoff,
// но не прерывает выполняющуюся попытку. Попытки не пересекаются:
// после таймаута следующая начинается только когда предыдущая вернулась.
package stage
