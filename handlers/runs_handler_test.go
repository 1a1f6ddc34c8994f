package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/services/report"
)

func getLast(h *RunsHandler, pipeline string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/runs/"+pipeline+"/last", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("pipeline", pipeline)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	h.HandleLast(w, req)
	return w
}

func TestRunsHandler_HandleLast(t *testing.T) {
	store := report.NewStore()
	h := NewRunsHandler(store, zap.NewNop())

	t.Run("unknown pipeline", func(t *testing.T) {
		w := getLast(h, "backfill")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("no run yet", func(t *testing.T) {
		w := getLast(h, report.PipelineImport)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "no import run recorded yet")
	})

	t.Run("last run", func(t *testing.T) {
		r := report.New(report.PipelineImport)
		r.DryRun = true
		r.Region("NY").Created = 3
		r.Region("TX").Fail(assert.AnError)
		r.Finish()
		store.Record(r)

		w := getLast(h, report.PipelineImport)
		require.Equal(t, http.StatusOK, w.Code)

		data := decodeData(t, w)
		assert.Equal(t, r.RunID, data["run_id"])
		assert.Equal(t, true, data["dry_run"])
		assert.Equal(t, true, data["has_failures"])
		assert.NotEmpty(t, data["finished_at"])

		regions := data["regions"].([]interface{})
		require.Len(t, regions, 2)
		ny := regions[0].(map[string]interface{})
		assert.Equal(t, "NY", ny["region"])
		assert.Equal(t, float64(3), ny["created"])
		tx := regions[1].(map[string]interface{})
		assert.Equal(t, "failed", tx["status"])
	})
}
