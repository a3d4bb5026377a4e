package sensor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Stockpipe/internal/domain"
)

// Polarity — как трактовать поле finance.result ответа.
type Polarity string

const (
	// ResultNull — источник готов, когда finance.result равен null.
	// API котировок отвечает
	// {"finance":{"result":null,"error":...}} на корневой endpoint.
	ResultNull Polarity = "result_null"

	// ResultPresent — источник готов, когда finance.result не пуст.
	ResultPresent Polarity = "result_present"
)

// ParsePolarity разбирает строковое значение полярности.
func ParsePolarity(s string) (Polarity, error) {
	switch Polarity(s) {
	case "", ResultNull:
		return ResultNull, nil
	case ResultPresent:
		return ResultPresent, nil
	default:
		return "", fmt.Errorf("unknown probe polarity: %q", s)
	}
}

// HTTPProbeConfig — конфигурация HTTPProbe.
type HTTPProbeConfig struct {
	// Host — базовый URL API (например, "https://query1.finance.yahoo.com/").
	Host string

	// Endpoint — путь, добавляемый к Host (например, "v8/finance/chart/").
	Endpoint string

	// Headers — заголовки запроса (User-Agent и т.п.).
	Headers map[string]string

	Polarity Polarity

	// Client — HTTP клиент. По умолчанию с таймаутом 30s.
	Client *http.Client
}

// HTTPProbe проверяет доступность API котировок.
type HTTPProbe struct {
	url      string
	headers  map[string]string
	polarity Polarity
	client   *http.Client
}

// NewHTTPProbe создаёт HTTPProbe.
func NewHTTPProbe(cfg HTTPProbeConfig) *HTTPProbe {
	p := &HTTPProbe{
		url:      cfg.Host + cfg.Endpoint,
		headers:  cfg.Headers,
		polarity: cfg.Polarity,
		client:   cfg.Client,
	}
	if p.polarity == "" {
		p.polarity = ResultNull
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 30 * time.Second}
	}
	return p
}

// URL возвращает адрес проверки. Он же — контекст sensor'а.
func (p *HTTPProbe) URL() string {
	return p.url
}

type financeEnvelope struct {
	Finance *struct {
		Result json.RawMessage `json:"result"`
	} `json:"finance"`
}

// Probe выполняет GET и решает готовность по finance.result.
func (p *HTTPProbe) Probe(ctx context.Context) (bool, domain.Reference, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false, "", fmt.Errorf("create request: %w", err)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, "", fmt.Errorf("read probe response: %w", err)
	}

	// API котировок отвечает 404 на корневой endpoint, но с валидным JSON
	if resp.StatusCode >= 500 {
		return false, "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var env financeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if env.Finance == nil {
		return false, "", fmt.Errorf("%w: missing finance object", ErrMalformedResponse)
	}

	isNull := len(env.Finance.Result) == 0 || bytes.Equal(bytes.TrimSpace(env.Finance.Result), []byte("null"))

	ready := isNull
	if p.polarity == ResultPresent {
		ready = !isNull
	}

	return ready, domain.Reference(p.url), nil
}
