package app

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/vionav/internal/httputil"
	"github.com/banshee-data/vionav/internal/monitoring"
	"github.com/banshee-data/vionav/internal/version"
)

// AttachAdminRoutes mounts the debug surface: run status, a save trigger, a
// landmark scatter page and live SQL access to the working map.
func (a *App) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Warnf("app: failed to create tailsql server: %v", err)
	} else {
		tsql.SetDB("sqlite://vi_map.db", a.recorder.Store().DB(), &tailsql.DBOptions{
			Label: "Working map",
		})
		debug.Handle("tailsql/", "SQL live debugging of the working map", tsql.NewMux())
	}

	debug.Handle("status", "Run status", http.HandlerFunc(a.handleStatus))
	debug.Handle("save-map", "Save the working map now (POST)", http.HandlerFunc(a.handleSaveMap))
	debug.Handle("map-landmarks", "Scatter plot of working map landmarks", http.HandlerFunc(a.handleLandmarkScatter))
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	recorder := a.Recorder()
	status := map[string]interface{}{
		"state":       a.State().String(),
		"should_exit": a.ShouldExit(),
		"source_type": string(a.cfg.SourceType),
		"version":     version.Version,
	}
	if recorder != nil {
		vertices, frames, samples := recorder.Stats()
		status["run_id"] = recorder.RunID()
		status["vertices"] = vertices
		status["camera_frames"] = frames
		status["imu_samples"] = samples
	}
	httputil.WriteJSONOK(w, status)
}

// handleSaveMap triggers a save. An optional folder query parameter saves
// under a different name within the configured save area.
func (a *App) handleSaveMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	folder, err := a.SaveMapTo(r.URL.Query().Get("folder"))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("save failed: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"saved_to": folder})
}

func (a *App) handleLandmarkScatter(w http.ResponseWriter, r *http.Request) {
	recorder := a.Recorder()
	if recorder == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "not initialized")
		return
	}

	fm, err := recorder.Store().LoadFullMap()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load working map: %v", err))
		return
	}

	lmData := make([]opts.ScatterData, 0, len(fm.Landmarks))
	for _, lm := range fm.Landmarks {
		lmData = append(lmData, opts.ScatterData{Value: []interface{}{lm.X, lm.Y}})
	}
	trajData := make([]opts.ScatterData, 0, len(fm.Vertices))
	for _, v := range fm.Vertices {
		trajData = append(trajData, opts.ScatterData{Value: []interface{}{v.X, v.Y}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Working Map", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Working map (top-down)",
			Subtitle: fmt.Sprintf("run=%s landmarks=%d vertices=%d", fm.RunID, len(fm.Landmarks), len(fm.Vertices)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)"}),
	)
	scatter.AddSeries("landmarks", lmData, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	scatter.AddSeries("trajectory", trajData, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
