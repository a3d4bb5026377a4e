package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        color.Output,
		errW:     color.Error,
	}
}

// NewOutputTo создаёт Output с заданными потоками (для тестов и pipe).
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Title выводит жирный заголовок секции (только в табличном режиме).
func (o *Output) Title(title string) {
	if o.jsonMode {
		return
	}
	color.New(color.Bold).Fprintln(o.w, title)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	color.New(color.FgGreen).Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	color.New(color.FgRed).Fprintln(o.errW, "Error: "+msg)
}

// Status раскрашивает статус run или stage.
// При выводе не в терминал color отключает escape-коды сам.
func Status(s string) string {
	switch s {
	case "succeeded":
		return color.GreenString(s)
	case "failed":
		return color.RedString(s)
	case "running":
		return color.YellowString(s)
	case "skipped":
		return color.New(color.Faint).Sprint(s)
	default:
		return s
	}
}
