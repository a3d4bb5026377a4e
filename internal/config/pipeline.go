package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/engine"
)

//go:embed stock_market.yaml
var defaultPipeline []byte

// DefaultPipeline возвращает встроенную спецификацию stock_market.
func DefaultPipeline() (*domain.PipelineSpec, error) {
	return engine.ParseSpec(defaultPipeline, engine.FormatYAML)
}

// LoadPipeline читает спецификацию pipeline из path.
// Пустой path — встроенная спецификация.
func LoadPipeline(path string) (*domain.PipelineSpec, error) {
	if path == "" {
		return DefaultPipeline()
	}

	format, err := engine.FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}

	spec, err := engine.ParseSpec(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}
