package mcf

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	IntHubspot "mcf/integration/hubspot"
	"mcf/model"
	U "mcf/util"
)

const (
	JobKindMCF          = "mcf_analysis"
	JobKindContribution = "contribution_batch"

	JobStatusIdle      = "idle"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusError     = "error"
)

// MCFQuery describes one multi-channel funnel analysis request.
type MCFQuery struct {
	ConversionType string  `json:"conversion_type"`
	StartDate      int64   `json:"start_date"`
	EndDate        int64   `json:"end_date"`
	ThresholdPct   float64 `json:"threshold_pct"`
	LookbackDays   int     `json:"lookback_days"`
}

// RunSnapshot is a point-in-time copy of a run's progress, safe to
// hand to a status poll while the run is in flight.
type RunSnapshot struct {
	RunID            string `json:"run_id"`
	Kind             string `json:"kind"`
	Status           string `json:"status"`
	Running          bool   `json:"running"`
	Processed        int    `json:"processed"`
	Converting       int    `json:"converting"`
	Updated          int    `json:"updated"`
	Failed           int    `json:"failed"`
	SkippedNoHistory int    `json:"skipped_no_history"`
	Message          string `json:"message,omitempty"`
	StartedAt        int64  `json:"started_at"`
	CompletedAt      int64  `json:"completed_at,omitempty"`
}

// runState is the single-writer progress record of one run. The
// running job mutates it through the mutex; status polls copy it.
type runState struct {
	mutex sync.Mutex

	runID            string
	kind             string
	status           string
	processed        int
	converting       int
	updated          int
	failed           int
	skippedNoHistory int
	message          string
	startedAt        int64
	completedAt      int64

	report *model.MCFReport
}

func (state *runState) snapshot() RunSnapshot {
	state.mutex.Lock()
	defer state.mutex.Unlock()

	return RunSnapshot{
		RunID:            state.runID,
		Kind:             state.kind,
		Status:           state.status,
		Running:          state.status == JobStatusRunning,
		Processed:        state.processed,
		Converting:       state.converting,
		Updated:          state.updated,
		Failed:           state.failed,
		SkippedNoHistory: state.skippedNoHistory,
		Message:          state.message,
		StartedAt:        state.startedAt,
		CompletedAt:      state.completedAt,
	}
}

func (state *runState) incrProcessed() {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	state.processed++
}

func (state *runState) incrConverting() {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	state.converting++
}

func (state *runState) incrUpdated() {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	state.updated++
}

func (state *runState) incrFailed() {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	state.failed++
}

func (state *runState) incrSkippedNoHistory() {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	state.skippedNoHistory++
}

func (state *runState) complete(report *model.MCFReport) {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	state.status = JobStatusCompleted
	state.report = report
	state.completedAt = U.TimeNowUnixMilli()
}

func (state *runState) fail(message string) {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	state.status = JobStatusError
	state.message = message
	state.completedAt = U.TimeNowUnixMilli()
}

// RunnerConfig carries the per-process analysis defaults.
type RunnerConfig struct {
	BatchSize          int
	ContributionPolicy string
	// contact property the contribution percent is written back to.
	ContributionProperty string
}

// Runner owns the keyed run-state table: one slot per (tenant, job
// kind, conversion type), single-flight per slot. A trigger while a
// run is in flight returns the in-flight snapshot instead of starting
// a second run. No queueing, no cancellation.
type Runner struct {
	api           IntHubspot.API
	pipelineCache *IntHubspot.PipelineCache
	conf          RunnerConfig

	mutex sync.Mutex
	runs  map[string]*runState
}

func NewRunner(api IntHubspot.API, pipelineCache *IntHubspot.PipelineCache,
	conf RunnerConfig) *Runner {

	if conf.BatchSize <= 0 {
		conf.BatchSize = 10
	}
	if conf.ContributionPolicy == "" {
		conf.ContributionPolicy = model.ContributionPolicyAllEntries
	}
	if conf.ContributionProperty == "" {
		conf.ContributionProperty = "mcf_marketing_contribution"
	}

	return &Runner{
		api:           api,
		pipelineCache: pipelineCache,
		conf:          conf,
		runs:          make(map[string]*runState),
	}
}

func runKey(tenant, kind, variant string) string {
	if variant == "" {
		return fmt.Sprintf("%s:%s", tenant, kind)
	}
	return fmt.Sprintf("%s:%s:%s", tenant, kind, variant)
}

// begin installs a fresh run state for key, or returns the in-flight
// one. The second return reports whether a new run was started.
func (r *Runner) begin(key, kind string) (*runState, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var previousReport *model.MCFReport
	if existing, exists := r.runs[key]; exists {
		existing.mutex.Lock()
		running := existing.status == JobStatusRunning
		previousReport = existing.report
		existing.mutex.Unlock()
		if running {
			return existing, false
		}
	}

	state := &runState{
		runID:     uuid.New().String(),
		kind:      kind,
		status:    JobStatusRunning,
		startedAt: U.TimeNowUnixMilli(),
		// the previous report stays readable until a new run
		// completes and supersedes it.
		report: previousReport,
	}
	r.runs[key] = state
	return state, true
}

// TriggerMCFRun starts an MCF analysis for the tenant and conversion
// type, unless one is already running for that pair.
func (r *Runner) TriggerMCFRun(tenant string, query MCFQuery) (RunSnapshot, bool) {
	state, started := r.begin(runKey(tenant, JobKindMCF, query.ConversionType), JobKindMCF)
	if !started {
		return state.snapshot(), false
	}

	logCtx := log.WithFields(log.Fields{"tenant": tenant,
		"conversion_type": query.ConversionType, "run_id": state.runID})
	logCtx.Info("Starting mcf analysis run.")

	go func() {
		report, err := buildMCFReport(r.api, r.pipelineCache, query, r.conf.BatchSize, state)
		if err != nil {
			logCtx.WithError(err).Error("Mcf analysis run failed.")
			state.fail(err.Error())
			return
		}

		state.complete(report)
		logCtx.WithFields(log.Fields{"total_conversions": report.TotalConversions,
			"paths": len(report.Paths)}).Info("Completed mcf analysis run.")
	}()

	return state.snapshot(), true
}

// TriggerContributionRun starts a contribution batch for the tenant,
// unless one is already running.
func (r *Runner) TriggerContributionRun(tenant string, marketingSources []string,
	policy string) (RunSnapshot, bool) {

	if !model.IsValidContributionPolicy(policy) {
		policy = r.conf.ContributionPolicy
	}

	state, started := r.begin(runKey(tenant, JobKindContribution, ""), JobKindContribution)
	if !started {
		return state.snapshot(), false
	}

	logCtx := log.WithFields(log.Fields{"tenant": tenant, "run_id": state.runID})
	logCtx.Info("Starting contribution batch run.")

	go func() {
		err := runContributionBatch(r.api, marketingSources, policy,
			r.conf.ContributionProperty, r.conf.BatchSize, state)
		if err != nil {
			logCtx.WithError(err).Error("Contribution batch run failed.")
			state.fail(err.Error())
			return
		}

		state.complete(nil)
		logCtx.Info("Completed contribution batch run.")
	}()

	return state.snapshot(), true
}

// GetStatus returns the latest snapshot for the slot, if any run was
// ever started for it.
func (r *Runner) GetStatus(tenant, kind, variant string) (RunSnapshot, bool) {
	r.mutex.Lock()
	state, exists := r.runs[runKey(tenant, kind, variant)]
	r.mutex.Unlock()
	if !exists {
		return RunSnapshot{Status: JobStatusIdle}, false
	}

	return state.snapshot(), true
}

// GetReport returns the report of the last completed MCF run for the
// (tenant, conversion type) pair.
func (r *Runner) GetReport(tenant, conversionType string) (*model.MCFReport, bool) {
	r.mutex.Lock()
	state, exists := r.runs[runKey(tenant, JobKindMCF, conversionType)]
	r.mutex.Unlock()
	if !exists {
		return nil, false
	}

	state.mutex.Lock()
	defer state.mutex.Unlock()
	if state.report == nil {
		return nil, false
	}
	return state.report, true
}
