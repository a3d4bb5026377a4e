// Package warehouse загружает отформатированные котировки в PostgreSQL.
//
// Загрузка выполняется с replace-семантикой в одной транзакции:
// DROP TABLE → CREATE TABLE → COPY. Повторная загрузка того же CSV
// оставляет таблицу в том же состоянии.
package warehouse
