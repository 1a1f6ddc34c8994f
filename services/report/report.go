// Package report collects per-region outcomes of a pipeline run.
package report

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline names
const (
	PipelineImport = "import"
	PipelineExport = "export"
)

// Region statuses
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// RegionResult is the summary for one region.
// Import fills Found through Failed; export fills Fetched through Inserted.
type RegionResult struct {
	Region string `json:"region"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// UnmappedTypes are configured event type names the region's VAN does not have
	UnmappedTypes []string `json:"unmapped_types,omitempty"`

	Found     int `json:"found,omitempty"`
	Created   int `json:"created,omitempty"`
	Recovered int `json:"recovered,omitempty"`
	Skipped   int `json:"skipped,omitempty"`
	Failed    int `json:"failed,omitempty"`

	Fetched  int   `json:"fetched,omitempty"`
	Staged   int   `json:"staged,omitempty"`
	Updated  int64 `json:"updated,omitempty"`
	Inserted int64 `json:"inserted,omitempty"`
}

// Fail marks the region failed with err
func (r *RegionResult) Fail(err error) {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
}

// Counts returns the non-status counters keyed by outcome name
func (r *RegionResult) Counts() map[string]int64 {
	return map[string]int64{
		"found":     int64(r.Found),
		"created":   int64(r.Created),
		"recovered": int64(r.Recovered),
		"skipped":   int64(r.Skipped),
		"failed":    int64(r.Failed),
		"fetched":   int64(r.Fetched),
		"staged":    int64(r.Staged),
		"updated":   r.Updated,
		"inserted":  r.Inserted,
	}
}

// JobReport is the summary of one pipeline run
type JobReport struct {
	RunID      string    `json:"run_id"`
	Pipeline   string    `json:"pipeline"`
	DryRun     bool      `json:"dry_run,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	mu      sync.Mutex
	regions map[string]*RegionResult
}

// New starts a report for a pipeline run
func New(pipeline string) *JobReport {
	return &JobReport{
		RunID:     uuid.New().String(),
		Pipeline:  pipeline,
		StartedAt: time.Now().UTC(),
		regions:   make(map[string]*RegionResult),
	}
}

// Region returns the result for a region, creating it with StatusOK
func (j *JobReport) Region(code string) *RegionResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.regions[code]
	if !ok {
		r = &RegionResult{Region: code, Status: StatusOK}
		j.regions[code] = r
	}
	return r
}

// Regions returns the results sorted by region code
func (j *JobReport) Regions() []RegionResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]RegionResult, 0, len(j.regions))
	for _, r := range j.regions {
		out = append(out, *r)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Region < out[b].Region })
	return out
}

// Finish stamps the end time
func (j *JobReport) Finish() {
	j.FinishedAt = time.Now().UTC()
}

// Duration is the elapsed run time, up to now when unfinished
func (j *JobReport) Duration() time.Duration {
	if j.FinishedAt.IsZero() {
		return time.Since(j.StartedAt)
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// HasFailures reports whether any region failed. Per-event failures do not count.
func (j *JobReport) HasFailures() bool {
	for _, r := range j.Regions() {
		if r.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Totals sums the counters over every region
func (j *JobReport) Totals() RegionResult {
	var t RegionResult
	for _, r := range j.Regions() {
		t.Found += r.Found
		t.Created += r.Created
		t.Recovered += r.Recovered
		t.Skipped += r.Skipped
		t.Failed += r.Failed
		t.Fetched += r.Fetched
		t.Staged += r.Staged
		t.Updated += r.Updated
		t.Inserted += r.Inserted
	}
	return t
}

// Log writes one line per region and a run total
func (j *JobReport) Log(logger *zap.Logger) {
	logger = logger.With(zap.String("run_id", j.RunID), zap.String("pipeline", j.Pipeline))

	for _, r := range j.Regions() {
		fields := []zap.Field{zap.String("region", r.Region), zap.String("status", r.Status)}
		fields = append(fields, j.countFields(r)...)
		if len(r.UnmappedTypes) > 0 {
			fields = append(fields, zap.Strings("unmapped_types", r.UnmappedTypes))
		}
		if r.Error != "" {
			fields = append(fields, zap.String("error", r.Error))
		}
		logger.Info("region summary", fields...)
	}

	fields := []zap.Field{
		zap.Int("regions", len(j.Regions())),
		zap.Bool("has_failures", j.HasFailures()),
		zap.Duration("duration", j.Duration()),
	}
	if j.DryRun {
		fields = append(fields, zap.Bool("dry_run", true))
	}
	fields = append(fields, j.countFields(j.Totals())...)
	logger.Info("run summary", fields...)
}

func (j *JobReport) countFields(r RegionResult) []zap.Field {
	if j.Pipeline == PipelineExport {
		return []zap.Field{
			zap.Int("fetched", r.Fetched),
			zap.Int("staged", r.Staged),
			zap.Int64("updated", r.Updated),
			zap.Int64("inserted", r.Inserted),
		}
	}
	return []zap.Field{
		zap.Int("found", r.Found),
		zap.Int("created", r.Created),
		zap.Int("recovered", r.Recovered),
		zap.Int("skipped", r.Skipped),
		zap.Int("failed", r.Failed),
	}
}

// Store keeps the most recent report of each pipeline
type Store struct {
	mu   sync.RWMutex
	last map[string]*JobReport
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{last: make(map[string]*JobReport)}
}

// Record replaces the pipeline's last report
func (s *Store) Record(r *JobReport) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[r.Pipeline] = r
}

// Last returns the pipeline's most recent report
func (s *Store) Last(pipeline string) (*JobReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.last[pipeline]
	return r, ok
}
