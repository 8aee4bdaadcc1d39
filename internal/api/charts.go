package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/trackpose/internal/httputil"
)

// maxChartPoints caps how many stored records one chart reads.
const maxChartPoints = 20000

// sessionChart renders recorded positions on the X/Z floor plane as an
// HTML scatter plot, one series per device.
func (s *Server) sessionChart(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "Recording is disabled")
		return
	}

	id := r.PathValue("id")
	records, err := s.db.SessionRecords(id, nil, maxChartPoints)
	if err != nil {
		s.sessionError(w, err)
		return
	}

	byDevice := make(map[uint32][]opts.ScatterData)
	for _, rec := range records {
		x, _, z := rec.Record.Position()
		if !finiteXZ(x, z) {
			continue
		}
		byDevice[rec.Device] = append(byDevice[rec.Device], opts.ScatterData{
			Value: []interface{}{x, z, rec.Seq},
		})
	}
	devices := make([]uint32, 0, len(byDevice))
	for d := range byDevice {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i] < devices[j] })

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Recorded poses", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Device positions (X/Z)", Subtitle: fmt.Sprintf("session=%s points=%d devices=%d", id, len(records), len(devices))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Z (m)", NameLocation: "middle", NameGap: 30}),
	)
	for _, d := range devices {
		scatter.AddSeries(fmt.Sprintf("device %d", d), byDevice[d], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func finiteXZ(x, z float32) bool {
	return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0) &&
		!math.IsNaN(float64(z)) && !math.IsInf(float64(z), 0)
}
