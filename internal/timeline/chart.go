package timeline

import (
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const tickFormat = "2006-01-02 15:04"

// RenderChart writes t as a standalone HTML line chart. Timestamps are read
// as epoch milliseconds.
func RenderChart(w io.Writer, t Table, title string) error {
	line := charts.NewLine()

	subtitle := ""
	if t.Empty() {
		subtitle = "no data"
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "240px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", AxisLabel: &opts.AxisLabel{Rotate: 15}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value"}),
	)

	times := t.Timestamps()
	labels := make([]string, len(times))
	for i, ts := range times {
		labels[i] = time.UnixMilli(int64(ts)).UTC().Format(tickFormat)
	}
	line.SetXAxis(labels)

	if len(t.Columns) > 1 {
		for _, col := range t.Columns[1:] {
			name, _ := col[0].(string)
			data := make([]opts.LineData, 0, len(col)-1)
			for _, v := range col[1:] {
				if v == nil {
					data = append(data, opts.LineData{Value: "-"})
					continue
				}
				data = append(data, opts.LineData{Value: v})
			}
			line.AddSeries(name, data,
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
			)
		}
	}

	return line.Render(w)
}
