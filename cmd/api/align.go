package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"go-hunt-dashboard/internal/timeline"
)

type alignOptions struct {
	lenient bool
	gaps    bool
	json    bool
	chart   string
}

func newAlignCommand() *cobra.Command {
	var opts alignOptions

	cmd := &cobra.Command{
		Use:   "align [file|-]",
		Short: "Align a saved analytics timeline answer into a dense table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runAlign(in, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.lenient, "lenient", false, "coerce malformed series instead of rejecting the answer")
	cmd.Flags().BoolVar(&opts.gaps, "gaps", false, "leave missing points empty instead of filling them with 0")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the aligned table as JSON")
	cmd.Flags().StringVar(&opts.chart, "chart", "", "also write an HTML line chart to this path")

	return cmd
}

func runAlign(in io.Reader, out io.Writer, opts alignOptions) error {
	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read timeline answer: %w", err)
	}

	mode := timeline.Strict
	if opts.lenient {
		mode = timeline.Lenient
	}
	resp, err := timeline.ParseResponse(raw, mode)
	if err != nil {
		return err
	}

	aligner := timeline.Aligner{}
	if opts.gaps {
		aligner = timeline.WithGaps()
	}
	tbl := aligner.Align(resp)

	if opts.chart != "" {
		if err := writeChart(opts.chart, tbl); err != nil {
			return err
		}
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"x":       tbl.X,
			"columns": tbl.Columns,
			"summary": timeline.Summarize(tbl),
		})
	}

	if tbl.Empty() {
		_, err := fmt.Fprintln(out, "no data")
		return err
	}
	_, err = fmt.Fprintln(out, renderTable(tbl))
	return err
}

func renderTable(tbl timeline.Table) string {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)

	header := table.Row{"time"}
	for _, col := range tbl.Columns[1:] {
		header = append(header, col[0])
	}
	w.AppendHeader(header)

	for i, ts := range tbl.Columns[0][1:] {
		row := table.Row{formatTimestamp(ts)}
		for _, col := range tbl.Columns[1:] {
			row = append(row, formatCount(col[i+1]))
		}
		w.AppendRow(row)
	}

	footer := table.Row{"total"}
	for _, s := range timeline.Summarize(tbl) {
		footer = append(footer, humanize.Comma(s.Total))
	}
	w.AppendFooter(footer)

	return w.Render()
}

func formatTimestamp(v any) string {
	ms, ok := v.(float64)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02 15:04:05")
}

func formatCount(v any) string {
	switch n := v.(type) {
	case nil:
		return "-"
	case int64:
		return humanize.Comma(n)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func writeChart(path string, tbl timeline.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := timeline.RenderChart(f, tbl, "Alerts timeline"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
