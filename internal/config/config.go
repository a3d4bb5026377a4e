package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/shaiso/Stockpipe/internal/objectstore"
	"github.com/shaiso/Stockpipe/internal/sensor"
)

// Config — конфигурация демона stockpipe.
type Config struct {
	// HTTP: API, /healthz и /metrics
	HTTPPort int `env:"STOCKPIPE_HTTP_PORT" envDefault:"8080"`

	// PipelineFile — YAML/JSON спецификация pipeline. Пустой — встроенная stock_market.
	PipelineFile string `env:"PIPELINE_FILE"`

	// DBURL — PostgreSQL для истории runs. Пустой — история не сохраняется.
	DBURL string `env:"DB_URL"`

	// RabbitMQURL — брокер для run.trigger и run.finished. Пустой — без очереди.
	RabbitMQURL string `env:"RABBITMQ_URL"`

	SchedulerEnabled bool          `env:"STOCKPIPE_SCHEDULER" envDefault:"true"`
	TickInterval     time.Duration `env:"STOCKPIPE_TICK_INTERVAL" envDefault:"10s"`
	ShutdownTimeout  time.Duration `env:"STOCKPIPE_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	Storage   objectstore.Config
	StockAPI  StockAPIConfig
	Docker    DockerConfig
	Slack     SlackConfig
	Warehouse WarehouseConfig
}

// StockAPIConfig — API котировок.
type StockAPIConfig struct {
	Host      string `env:"STOCK_API_HOST" envDefault:"https://query1.finance.yahoo.com/"`
	Endpoint  string `env:"STOCK_API_ENDPOINT" envDefault:"v8/finance/chart/"`
	UserAgent string `env:"STOCK_API_USER_AGENT" envDefault:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"`
	Symbol    string `env:"STOCK_SYMBOL" envDefault:"AAPL"`

	// ProbePolarity — "result_null" или "result_present".
	ProbePolarity string `env:"STOCK_API_PROBE_POLARITY" envDefault:"result_null"`
}

// Headers возвращает заголовки запросов к API.
func (c StockAPIConfig) Headers() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   c.UserAgent,
	}
}

// DockerConfig — запуск задачи форматирования.
type DockerConfig struct {
	Bin     string `env:"DOCKER_BIN" envDefault:"docker"`
	Host    string `env:"STOCKPIPE_DOCKER_HOST" envDefault:"tcp://docker-proxy:2375"`
	Image   string `env:"FORMAT_IMAGE" envDefault:"airflow/stock-app"`
	Network string `env:"FORMAT_NETWORK" envDefault:"container:spark-master"`
}

// SlackConfig — уведомления. Пустой WebhookURL — Slack отключён.
type SlackConfig struct {
	WebhookURL string `env:"SLACK_WEBHOOK_URL"`
	Channel    string `env:"SLACK_CHANNEL" envDefault:"general"`
}

// WarehouseConfig — хранилище данных (PostgreSQL).
type WarehouseConfig struct {
	// URL — строка подключения. Пустая — используется DB_URL.
	URL    string `env:"DW_URL"`
	Schema string `env:"DW_SCHEMA" envDefault:"public"`
	Table  string `env:"DW_TABLE" envDefault:"stock_market"`
}

// WarehouseDSN возвращает строку подключения к хранилищу данных.
func (c *Config) WarehouseDSN() string {
	if c.Warehouse.URL != "" {
		return c.Warehouse.URL
	}
	return c.DBURL
}

// Load читает конфигурацию из переменных окружения.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.TickInterval <= 0 {
		return errors.New("tick interval must be positive")
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if _, err := url.ParseRequestURI(c.StockAPI.Host); err != nil {
		return fmt.Errorf("invalid stock api host %q: %w", c.StockAPI.Host, err)
	}
	if c.StockAPI.Symbol == "" {
		return errors.New("stock symbol is required")
	}
	if _, err := sensor.ParsePolarity(c.StockAPI.ProbePolarity); err != nil {
		return err
	}

	if c.Docker.Image == "" {
		return errors.New("format image is required")
	}
	if c.Warehouse.Table == "" {
		return errors.New("warehouse table is required")
	}

	return nil
}

// HTTPAddr возвращает адрес HTTP сервера.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
