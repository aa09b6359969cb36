package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"

	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func paint(enabled bool, colors text.Colors, s string) string {
	if !enabled {
		return s
	}
	return colors.Sprint(s)
}

func renderOutcomes(results []jobResult, tag language.Tag, color bool) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, outcomeRow(r.Input, r.Outcome, tag, color))
	}
	return renderTable(
		[]string{"Input", "Result", "Output", "Size", "Saved"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func outcomeRow(input string, o models.JobOutcome, tag language.Tag, color bool) []string {
	name := filepath.Base(input)
	if !o.Success {
		status := paint(color, text.Colors{text.FgRed}, string(o.Kind()))
		if o.Kind() == models.KindNoImprovement {
			status = paint(color, text.Colors{text.FgYellow}, string(o.Kind()))
		}
		return []string{name, status, joberror.Message(o.Kind(), o.Detail(), tag), "", ""}
	}

	size := ""
	if o.InputSizeBytes != nil && o.OutputSizeBytes != nil {
		size = fmt.Sprintf("%s → %s", formatBytes(*o.InputSizeBytes), formatBytes(*o.OutputSizeBytes))
	}
	saved := ""
	if o.CompressionRatioPercent != nil {
		saved = fmt.Sprintf("%.1f%%", *o.CompressionRatioPercent)
	}
	return []string{name, paint(color, text.Colors{text.FgGreen}, "ok"), o.Output(), size, saved}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
