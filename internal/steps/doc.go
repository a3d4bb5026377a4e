// Package steps содержит stages pipeline котировок.
//
// Цепочка stock_market:
//
//	sensor (URL API) → store_prices → format_prices → get_formatted_csv → load_to_dw
//
//   - store_prices — загружает котировки символа и кладёт chart.result[0]
//     в <bucket>/<SYMBOL>/prices.json
//   - format_prices — очищает <SYMBOL>/formatted_prices/ и запускает
//     Spark-задачу форматирования в контейнере
//   - get_formatted_csv — находит первый .csv под formatted_prices/
//   - load_to_dw — загружает CSV в таблицу хранилища (replace)
//
// Между stages передаются только ссылки (s3://bucket/key), сами данные
// живут в объектном хранилище.
//
// Registry связывает тип stage из спецификации pipeline с реализацией.
package steps
