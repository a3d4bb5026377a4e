package steps

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/objectstore"
	"github.com/shaiso/Stockpipe/internal/stage"
)

// PricesObject — имя объекта с котировками внутри каталога символа.
const PricesObject = "prices.json"

// StorePrices загружает котировки и сохраняет их в <bucket>/<SYMBOL>/prices.json.
//
// Вход — URL API от sensor. Выход — ссылка на prices.json.
type StorePrices struct {
	Quotes *QuoteClient
	Store  objectstore.Store
	Bucket string
	Symbol string
	Logger *slog.Logger
}

// Execute реализует stage.Stage.
func (s *StorePrices) Execute(ctx context.Context, in domain.Reference) (domain.Reference, error) {
	base := in.String()
	if base == "" || strings.HasPrefix(base, "s3://") {
		return "", stage.Fatal(fmt.Errorf("%w: expected api url, got %q", ErrBadInput, base))
	}

	quotes, err := s.Quotes.Fetch(ctx, base, s.Symbol)
	if err != nil {
		return "", err
	}

	key := path.Join(quotes.Symbol, PricesObject)
	ref, err := s.Store.Put(ctx, s.Bucket, key, quotes.Raw)
	if err != nil {
		return "", stage.Recoverable(fmt.Errorf("store prices: %w", err))
	}

	logger(s.Logger).Info("prices stored", "symbol", quotes.Symbol, "ref", ref, "bytes", len(quotes.Raw))
	return ref, nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
