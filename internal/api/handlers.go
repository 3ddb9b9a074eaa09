// Package api exposes the coordinator's observable state to presentation
// collaborators over HTTP: the uploads panel, the jobs panel, the
// outstanding-work badge and the aggregated insights datasets.
package api

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ldelacroix/conveyor/internal/coordinator"
	"github.com/ldelacroix/conveyor/internal/dashboard"
	"github.com/ldelacroix/conveyor/internal/httputil"
	"github.com/ldelacroix/conveyor/internal/insights"
	"github.com/ldelacroix/conveyor/internal/upload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxUploadMemory  = 64 << 20
	defaultTimeframe = 30 * 24 * time.Hour
	dateLayout       = "2006-01-02"
)

// EventsFetcher is the backend operation behind the insights endpoint.
type EventsFetcher interface {
	AggregatedEvents(ctx context.Context, tf insights.Timeframe) (insights.EventRows, error)
}

type API struct {
	coord  *coordinator.Coordinator
	events EventsFetcher
	mux    *http.ServeMux
}

func NewAPI(coord *coordinator.Coordinator, events EventsFetcher) *API {
	api := &API{
		coord:  coord,
		events: events,
		mux:    http.NewServeMux(),
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/uploads", a.handleUploads)
	a.mux.HandleFunc("/api/uploads/clear", a.clearUploads)
	a.mux.HandleFunc("/api/jobs", a.listJobs)
	a.mux.HandleFunc("/api/jobs/refresh", a.refreshJobs)
	a.mux.HandleFunc("/api/outstanding", a.outstanding)
	a.mux.HandleFunc("/api/insights", a.getInsights)

	dash := dashboard.NewDashboard(a.coord)
	a.mux.HandleFunc("/api/dashboard/stats", dash.GetStats)

	a.mux.Handle("/metrics", promhttp.Handler())
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) handleUploads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.enqueueUploads(w, r)
	case http.MethodGet:
		httputil.WriteJSON(w, http.StatusOK, a.coord.Uploads())
	default:
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) enqueueUploads(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		httputil.WriteJSONError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	destination := r.FormValue("destination")
	if destination == "" {
		httputil.WriteJSONError(w, "Destination is required", http.StatusBadRequest)
		return
	}

	var files []upload.File
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			httputil.WriteJSONError(w, "Failed to read uploaded file", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		if closeErr := f.Close(); closeErr != nil {
			log.Printf("failed to close multipart file %s: %v", header.Filename, closeErr)
		}
		if err != nil {
			httputil.WriteJSONError(w, "Failed to read uploaded file", http.StatusBadRequest)
			return
		}
		files = append(files, upload.File{Name: header.Filename, Data: data})
	}

	if len(files) == 0 {
		httputil.WriteJSONError(w, "At least one file is required", http.StatusBadRequest)
		return
	}

	a.coord.Enqueue(destination, files)

	httputil.WriteJSON(w, http.StatusAccepted, a.coord.Uploads())
}

func (a *API) clearUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.coord.ClearFinished()

	httputil.WriteJSON(w, http.StatusOK, a.coord.Uploads())
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs, capturedAt, live := a.coord.Jobs()

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":        jobs,
		"captured_at": capturedAt,
		"live":        live,
	})
}

func (a *API) refreshJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs, err := a.coord.Refresh(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, jobs)
}

func (a *API) outstanding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{
		"outstanding": a.coord.Outstanding(),
	})
}

func (a *API) getInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tf, err := parseTimeframe(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := a.events.AggregatedEvents(r.Context(), tf)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, insights.Aggregate(rows, tf))
}

// parseTimeframe accepts YYYY-MM-DD or RFC3339 bounds and defaults to the
// trailing 30 days.
func parseTimeframe(start, end string) (insights.Timeframe, error) {
	tf := insights.Timeframe{End: time.Now().UTC()}

	if end != "" {
		t, err := parseDate(end)
		if err != nil {
			return insights.Timeframe{}, err
		}
		tf.End = t
	}
	if start != "" {
		t, err := parseDate(start)
		if err != nil {
			return insights.Timeframe{}, err
		}
		tf.Start = t
	} else {
		tf.Start = tf.End.Add(-defaultTimeframe)
	}

	return tf, nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}

	return time.Parse(time.RFC3339, value)
}
