package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/services/report"
	"github.com/upb/ak-van-sync/utils"
)

// RunSummary is the JSON view of a finished run
type RunSummary struct {
	RunID           string                `json:"run_id"`
	Pipeline        string                `json:"pipeline"`
	DryRun          bool                  `json:"dry_run,omitempty"`
	StartedAt       string                `json:"started_at"`
	FinishedAt      string                `json:"finished_at,omitempty"`
	DurationSeconds float64               `json:"duration_seconds"`
	HasFailures     bool                  `json:"has_failures"`
	Regions         []report.RegionResult `json:"regions"`
}

// RunsHandler serves the last report of each pipeline
type RunsHandler struct {
	store  *report.Store
	logger *zap.Logger
}

// NewRunsHandler creates a new RunsHandler
func NewRunsHandler(store *report.Store, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{store: store, logger: logger}
}

// HandleLast handles GET /runs/{pipeline}/last
func (h *RunsHandler) HandleLast(w http.ResponseWriter, r *http.Request) {
	pipeline := chi.URLParam(r, "pipeline")
	if pipeline != report.PipelineImport && pipeline != report.PipelineExport {
		_ = utils.WriteError(w, http.StatusNotFound, "unknown pipeline "+pipeline, nil)
		return
	}

	last, ok := h.store.Last(pipeline)
	if !ok {
		_ = utils.WriteError(w, http.StatusNotFound, "no "+pipeline+" run recorded yet", nil)
		return
	}

	if err := utils.WriteOK(w, summarize(last)); err != nil {
		h.logger.Error("failed to write run response", zap.Error(err))
	}
}

func summarize(r *report.JobReport) RunSummary {
	s := RunSummary{
		RunID:           r.RunID,
		Pipeline:        r.Pipeline,
		DryRun:          r.DryRun,
		StartedAt:       r.StartedAt.Format(time.RFC3339),
		DurationSeconds: r.Duration().Seconds(),
		HasFailures:     r.HasFailures(),
		Regions:         r.Regions(),
	}
	if !r.FinishedAt.IsZero() {
		s.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return s
}
