package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shaiso/Stockpipe/internal/stage"
)

// Quotes — дневные котировки символа в виде chart.result[0].
type Quotes struct {
	// Symbol — символ из meta.symbol ответа.
	Symbol string

	// Raw — объект chart.result[0] без изменений.
	Raw json.RawMessage
}

// QuoteClientConfig — конфигурация QuoteClient.
type QuoteClientConfig struct {
	// Headers — заголовки запроса (User-Agent и т.п.).
	Headers map[string]string

	// Interval и Range — параметры выборки. По умолчанию 1d и 1y.
	Interval string
	Range    string

	Client *http.Client
}

// QuoteClient загружает котировки из chart API.
type QuoteClient struct {
	headers  map[string]string
	interval string
	rng      string
	client   *http.Client
}

// NewQuoteClient создаёт QuoteClient.
func NewQuoteClient(cfg QuoteClientConfig) *QuoteClient {
	c := &QuoteClient{
		headers:  cfg.Headers,
		interval: cfg.Interval,
		rng:      cfg.Range,
		client:   cfg.Client,
	}
	if c.interval == "" {
		c.interval = "1d"
	}
	if c.rng == "" {
		c.rng = "1y"
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// chartResponse — нужная часть ответа chart API.
type chartResponse struct {
	Chart struct {
		Result []json.RawMessage `json:"result"`
		Error  json.RawMessage   `json:"error"`
	} `json:"chart"`
}

type chartMeta struct {
	Meta struct {
		Symbol string `json:"symbol"`
	} `json:"meta"`
}

// QuoteURL возвращает URL запроса котировок: base + symbol + параметры.
func (c *QuoteClient) QuoteURL(base, symbol string) string {
	q := url.Values{}
	q.Set("metrics", "high")
	q.Set("interval", c.interval)
	q.Set("range", c.rng)
	return base + url.PathEscape(symbol) + "?" + q.Encode()
}

// Fetch загружает котировки symbol с base.
//
// Сетевые ошибки и 5xx — recoverable, 4xx и пустой результат — fatal.
func (c *QuoteClient) Fetch(ctx context.Context, base, symbol string) (Quotes, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.QuoteURL(base, symbol), nil)
	if err != nil {
		return Quotes{}, stage.Fatal(fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Quotes{}, stage.Recoverable(fmt.Errorf("request quotes %s: %w", symbol, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quotes{}, stage.Recoverable(fmt.Errorf("read quotes %s: %w", symbol, err))
	}

	switch {
	case resp.StatusCode >= 500:
		return Quotes{}, stage.Recoverable(fmt.Errorf("%w: %s: status %d", ErrQuotes, symbol, resp.StatusCode))
	case resp.StatusCode >= 400:
		return Quotes{}, stage.Fatal(fmt.Errorf("%w: %s: status %d", ErrQuotes, symbol, resp.StatusCode))
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return Quotes{}, stage.Fatal(fmt.Errorf("%w: decode %s: %w", ErrQuotes, symbol, err))
	}
	if len(chart.Chart.Result) == 0 || isNull(chart.Chart.Result[0]) {
		return Quotes{}, stage.Fatal(fmt.Errorf("%w: %s", ErrNoQuotes, symbol))
	}

	raw := chart.Chart.Result[0]
	var meta chartMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Quotes{}, stage.Fatal(fmt.Errorf("%w: decode meta %s: %w", ErrQuotes, symbol, err))
	}
	if meta.Meta.Symbol == "" {
		meta.Meta.Symbol = symbol
	}

	return Quotes{Symbol: meta.Meta.Symbol, Raw: raw}, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
