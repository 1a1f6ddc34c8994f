package report

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestJobReport(t *testing.T) {
	r := New(PipelineImport)
	_, err := uuid.Parse(r.RunID)
	require.NoError(t, err)

	ny := r.Region("NY")
	ny.Found = 3
	ny.Created = 2
	ny.Failed = 1

	ca := r.Region("CA")
	ca.Found = 1
	ca.Skipped = 1
	ca.Status = StatusSkipped

	assert.Same(t, ny, r.Region("NY"))
	assert.False(t, r.HasFailures(), "per-event failures do not fail the run")

	regions := r.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, "CA", regions[0].Region)

	totals := r.Totals()
	assert.Equal(t, 4, totals.Found)
	assert.Equal(t, 2, totals.Created)
	assert.Equal(t, 1, totals.Skipped)

	r.Region("TX").Fail(errors.New("event types unavailable"))
	assert.True(t, r.HasFailures())
	assert.Equal(t, "event types unavailable", r.Region("TX").Error)
}

func TestJobReport_Log(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := New(PipelineExport)
	nj := r.Region("NJ")
	nj.Fetched = 4
	nj.Staged = 4
	nj.Updated = 3
	nj.Inserted = 1
	nj.UnmappedTypes = []string{"Rally"}
	r.Finish()

	r.Log(zap.New(core))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "region summary", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "NJ", fields["region"])
	assert.Equal(t, int64(3), fields["updated"])
	assert.Equal(t, []interface{}{"Rally"}, fields["unmapped_types"])
	assert.Equal(t, r.RunID, fields["run_id"])
	assert.Equal(t, "run summary", entries[1].Message)
	assert.Equal(t, false, entries[1].ContextMap()["has_failures"])
}

func TestStore(t *testing.T) {
	s := NewStore()
	_, ok := s.Last(PipelineImport)
	assert.False(t, ok)

	first := New(PipelineImport)
	s.Record(first)
	s.Record(New(PipelineExport))
	s.Record(nil)

	got, ok := s.Last(PipelineImport)
	require.True(t, ok)
	assert.Equal(t, first.RunID, got.RunID)

	second := New(PipelineImport)
	s.Record(second)
	got, _ = s.Last(PipelineImport)
	assert.Equal(t, second.RunID, got.RunID)
}
