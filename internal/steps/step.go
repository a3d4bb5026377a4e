package steps

import (
	"errors"
)

// Имена типов stages.
const (
	TypeStorePrices     = "store_prices"
	TypeFormatPrices    = "format_prices"
	TypeGetFormattedCSV = "get_formatted_csv"
	TypeLoadToDW        = "load_to_dw"
)

// Ошибки stages.
var (
	// ErrStageNotFound — тип stage не зарегистрирован.
	ErrStageNotFound = errors.New("stage type not found")

	// ErrInvalidConfig — невалидная конфигурация stage.
	ErrInvalidConfig = errors.New("invalid stage config")

	// ErrBadInput — входная ссылка не того вида, который ожидает stage.
	ErrBadInput = errors.New("unexpected input reference")

	// ErrQuotes — API котировок вернул ошибку.
	ErrQuotes = errors.New("quotes api error")

	// ErrNoQuotes — API не вернул данных по символу.
	ErrNoQuotes = errors.New("no quotes for symbol")
)
