// Package sensor реализует ожидание доступности внешнего источника.
//
// Sensor вызывает Probe с фиксированным интервалом, пока источник не станет
// готов или не истечёт бюджет ожидания. Ошибки проверки не прерывают
// ожидание — они считаются "ещё не готов". Контекст последней успешной
// проверки становится входной ссылкой первого stage.
//
// HTTPProbe проверяет поле finance.result ответа API котировок.
package sensor
