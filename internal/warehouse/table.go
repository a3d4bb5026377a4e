package warehouse

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Ошибки загрузки.
var (
	// ErrEmptyCSV — в CSV нет заголовка.
	ErrEmptyCSV = errors.New("csv has no header")

	// ErrInvalidTable — не задано имя таблицы.
	ErrInvalidTable = errors.New("invalid table")
)

// Table — целевая таблица хранилища.
type Table struct {
	Schema string
	Name   string
}

// Identifier возвращает квотируемый идентификатор таблицы.
func (t Table) Identifier() pgx.Identifier {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Schema, t.Name}
}

// String возвращает schema.name.
func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ColumnType — тип колонки, выведенный по данным.
type ColumnType string

const (
	ColumnBigint    ColumnType = "BIGINT"
	ColumnDouble    ColumnType = "DOUBLE PRECISION"
	ColumnTimestamp ColumnType = "TIMESTAMPTZ"
	ColumnText      ColumnType = "TEXT"
)

// timestampLayouts — форматы дат, которые пишет задача форматирования.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCSV разбирает CSV на заголовок и строки.
func ParseCSV(data []byte) (header []string, rows [][]string, err error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, nil, ErrEmptyCSV
	}

	header = make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	rows = records[1:]
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, nil, fmt.Errorf("parse csv: row %d has %d fields, header has %d", i+2, len(row), len(header))
		}
	}
	return header, rows, nil
}

// InferColumnTypes выводит тип каждой колонки по значениям.
// Пустые значения не влияют на тип и загружаются как NULL.
func InferColumnTypes(header []string, rows [][]string) []ColumnType {
	types := make([]ColumnType, len(header))
	for col := range header {
		types[col] = inferColumn(rows, col)
	}
	return types
}

func inferColumn(rows [][]string, col int) ColumnType {
	isInt, isFloat, isTime := true, true, true
	seen := false

	for _, row := range rows {
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if isTime {
			if _, ok := parseTime(v); !ok {
				isTime = false
			}
		}
	}

	switch {
	case !seen:
		return ColumnText
	case isInt:
		return ColumnBigint
	case isFloat:
		return ColumnDouble
	case isTime:
		return ColumnTimestamp
	default:
		return ColumnText
	}
}

// ConvertRows приводит строковые значения к типам колонок.
func ConvertRows(rows [][]string, types []ColumnType) ([][]any, error) {
	out := make([][]any, len(rows))
	for i, row := range rows {
		values := make([]any, len(row))
		for col, raw := range row {
			v, err := convertValue(strings.TrimSpace(raw), types[col])
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i+1, col+1, err)
			}
			values[col] = v
		}
		out[i] = values
	}
	return out, nil
}

func convertValue(v string, t ColumnType) (any, error) {
	if v == "" {
		return nil, nil
	}
	switch t {
	case ColumnBigint:
		return strconv.ParseInt(v, 10, 64)
	case ColumnDouble:
		return strconv.ParseFloat(v, 64)
	case ColumnTimestamp:
		ts, ok := parseTime(v)
		if !ok {
			return nil, fmt.Errorf("invalid timestamp %q", v)
		}
		return ts, nil
	default:
		return v, nil
	}
}

func parseTime(v string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
