package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echartsAssetsHost serves the ECharts runtime for exported pages.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// writeHTML renders one interactive chart per section into a single page.
func writeHTML(w io.Writer, runID string, f Filter, sections []Section) error {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.PageTitle = documentTitle

	for _, sec := range sections {
		subtitle := "filter: " + f.String()
		if sec.Kind == Summary {
			subtitle = "run " + runID
		} else if sec.Empty() {
			subtitle += " | " + NoResultsLine
		}
		global := []charts.GlobalOpts{
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsHost}),
			charts.WithTitleOpts(opts.Title{Title: sec.Kind.Title(), Subtitle: subtitle}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithYAxisOpts(opts.YAxis{Name: sec.ValueName}),
		}

		if sec.Kind == Summary {
			x := make([]int, len(sec.Trend))
			data := make([]opts.LineData, len(sec.Trend))
			for i, v := range sec.Trend {
				x[i] = i + 1
				data[i] = opts.LineData{Value: v}
			}
			line := charts.NewLine()
			line.SetGlobalOptions(append(global, charts.WithXAxisOpts(opts.XAxis{Name: "Tick"}))...)
			line.SetXAxis(x).AddSeries("average speed", data)
			page.AddCharts(line)
			continue
		}

		data := make([]opts.BarData, len(sec.Values))
		for i, v := range sec.Values {
			data[i] = opts.BarData{Value: v}
		}
		bar := charts.NewBar()
		bar.SetGlobalOptions(global...)
		bar.SetXAxis(sec.Labels).
			AddSeries(string(sec.Kind), data,
				charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
			)
		page.AddCharts(bar)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	return nil
}
