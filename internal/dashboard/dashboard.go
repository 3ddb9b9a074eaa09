// Package dashboard implements the monitoring endpoint summarizing the
// current state of uploads and tracked jobs.
package dashboard

import (
	"net/http"
	"time"

	"github.com/ldelacroix/conveyor/internal/coordinator"
	"github.com/ldelacroix/conveyor/internal/httputil"
	"github.com/ldelacroix/conveyor/internal/job"
	"github.com/ldelacroix/conveyor/internal/upload"
)

type Dashboard struct {
	coord *coordinator.Coordinator
}

type Stats struct {
	QueuedUploads        int            `json:"queued_uploads"`
	ActiveUploads        int            `json:"active_uploads"`
	FailedUploads        int            `json:"failed_uploads"`
	QueuedJobs           int            `json:"queued_jobs"`
	RunningJobs          int            `json:"running_jobs"`
	FailedJobs           int            `json:"failed_jobs"`
	Outstanding          int            `json:"outstanding"`
	UploadsByDestination map[string]int `json:"uploads_by_destination"`
	Live                 bool           `json:"live"`
	CapturedAt           time.Time      `json:"captured_at"`
	LastUpdated          time.Time      `json:"last_updated"`
}

func NewDashboard(coord *coordinator.Coordinator) *Dashboard {
	return &Dashboard{coord: coord}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := Stats{
		UploadsByDestination: make(map[string]int),
		Outstanding:          d.coord.Outstanding(),
		LastUpdated:          time.Now(),
	}

	for _, u := range d.coord.Uploads() {
		switch u.Status {
		case upload.StatusQueued:
			stats.QueuedUploads++
		case upload.StatusUploading:
			stats.ActiveUploads++
		case upload.StatusFailed:
			stats.FailedUploads++
		case upload.StatusCompleted:
		}

		stats.UploadsByDestination[u.Destination]++
	}

	jobs, capturedAt, live := d.coord.Jobs()
	stats.Live = live
	stats.CapturedAt = capturedAt
	for _, j := range jobs {
		switch j.Status {
		case job.StatusQueued:
			stats.QueuedJobs++
		case job.StatusInProgress:
			stats.RunningJobs++
		case job.StatusFailed:
			stats.FailedJobs++
		case job.StatusCompleted:
		}
	}

	httputil.WriteJSON(w, http.StatusOK, stats)
}
