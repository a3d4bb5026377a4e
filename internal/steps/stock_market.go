package steps

import (
	"log/slog"

	"github.com/shaiso/Stockpipe/internal/objectstore"
	"github.com/shaiso/Stockpipe/internal/remotejob"
	"github.com/shaiso/Stockpipe/internal/warehouse"
)

// StockMarket — зависимости stages pipeline котировок.
type StockMarket struct {
	Quotes *QuoteClient
	Store  objectstore.Store
	Job    remotejob.Job
	Loader warehouse.Loader

	// Bucket — bucket для котировок (stock-market).
	Bucket string

	// Symbol — символ котировок (AAPL).
	Symbol string

	// Image и Network — параметры задачи форматирования.
	Image   string
	Network string

	Table  warehouse.Table
	Logger *slog.Logger
}

// NewStockMarketRegistry регистрирует все stages pipeline котировок.
func NewStockMarketRegistry(deps StockMarket) *Registry {
	if deps.Quotes == nil {
		deps.Quotes = NewQuoteClient(QuoteClientConfig{})
	}

	r := NewRegistry()
	r.Register(TypeStorePrices, &StorePrices{
		Quotes: deps.Quotes,
		Store:  deps.Store,
		Bucket: deps.Bucket,
		Symbol: deps.Symbol,
		Logger: deps.Logger,
	})
	r.Register(TypeFormatPrices, &FormatPrices{
		Job:     deps.Job,
		Store:   deps.Store,
		Image:   deps.Image,
		Network: deps.Network,
		Logger:  deps.Logger,
	})
	r.Register(TypeGetFormattedCSV, &GetFormattedCSV{Store: deps.Store})
	r.Register(TypeLoadToDW, &LoadToDW{
		Store:  deps.Store,
		Loader: deps.Loader,
		Table:  deps.Table,
		Logger: deps.Logger,
	})
	return r
}
