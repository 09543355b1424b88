package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urmzd/wallpad/pkg/ksx4506"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
)

// Formatter handles output formatting
type Formatter struct {
	format OutputFormat
	writer io.Writer
}

// NewFormatter creates a formatter writing to stdout. Unknown formats print
// as tables.
func NewFormatter(format string) *Formatter {
	f := OutputFormat(strings.ToLower(format))
	if f != FormatJSON {
		f = FormatTable
	}
	return &Formatter{format: f, writer: os.Stdout}
}

// SetWriter sets the output writer
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

func (f *Formatter) Printf(format string, args ...any) {
	fmt.Fprintf(f.writer, format, args...)
}

func (f *Formatter) Println(args ...any) {
	fmt.Fprintln(f.writer, args...)
}

// PrintJSON writes v as indented JSON.
func (f *Formatter) PrintJSON(v any) error {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintTable prints rows under headers with padded columns.
func (f *Formatter) PrintTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	line := func(cells []string) {
		for i, c := range cells {
			if i < len(widths) {
				fmt.Fprintf(f.writer, "%-*s ", widths[i], c)
			}
		}
		fmt.Fprintln(f.writer)
	}
	line(headers)
	sep := make([]string, len(headers))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	line(sep)
	for _, row := range rows {
		line(row)
	}
}

// FrameLine is one decoded frame in command output.
type FrameLine struct {
	Time    time.Time `json:"time"`
	Dir     string    `json:"dir"`
	Address string    `json:"address"`
	Command string    `json:"command"`
	Data    string    `json:"data"`
	Error   string    `json:"error,omitempty"`
}

func frameLine(t time.Time, dir string, pkt ksx4506.Packet) FrameLine {
	return FrameLine{
		Time:    t,
		Dir:     dir,
		Address: pkt.Address.String(),
		Command: pkt.Command.String(),
		Data:    fmt.Sprintf("% X", pkt.Data),
	}
}

func (l FrameLine) row() []string {
	data := l.Data
	if l.Error != "" {
		data = l.Error
	}
	return []string{l.Time.Format("15:04:05.000"), l.Dir, l.Address, l.Command, data}
}

var frameHeaders = []string{"TIME", "DIR", "ADDRESS", "COMMAND", "DATA"}

// PrintFrame streams one frame: a JSON object per line or a table row.
func (f *Formatter) PrintFrame(l FrameLine) {
	if f.format == FormatJSON {
		b, err := json.Marshal(l)
		if err == nil {
			f.Println(string(b))
		}
		return
	}
	f.Println(strings.Join(l.row(), "  "))
}
