package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/signal-backtest/internal/backtest"
	"github.com/wonny/signal-backtest/internal/scheduler"
	"github.com/wonny/signal-backtest/pkg/logger"
)

// Runner executes one back-test request
type Runner interface {
	Run(ctx context.Context, req backtest.Request) (*backtest.Result, error)
}

// PresetOutcome is the latest run of one preset
type PresetOutcome struct {
	Preset  string
	RanAt   time.Time
	Result  *backtest.Result
	Error   string
	Skipped bool // rejected as a client error, not retried
}

// PresetJob runs every preset of a presets file through the engine
type PresetJob struct {
	file   *PresetFile
	engine Runner
	logger *logger.Logger

	mu       sync.RWMutex
	outcomes map[string]PresetOutcome
}

// NewPresetJob creates a new preset job
func NewPresetJob(file *PresetFile, engine Runner, log *logger.Logger) *PresetJob {
	return &PresetJob{
		file:     file,
		engine:   engine,
		logger:   log,
		outcomes: make(map[string]PresetOutcome),
	}
}

// Name returns the job name
func (j *PresetJob) Name() string {
	return "backtest_presets"
}

// Schedule returns the cron schedule from the presets file
func (j *PresetJob) Schedule() string {
	return j.file.Schedule
}

// Run executes every preset. Client errors are recorded per preset and do
// not fail the job; a store failure stops the run so it can be retried.
func (j *PresetJob) Run(ctx context.Context) error {
	j.logger.WithField("presets", len(j.file.Presets)).Info("Running backtest presets")

	rejected := 0
	for _, p := range j.file.Presets {
		outcome := PresetOutcome{Preset: p.Name, RanAt: time.Now()}
		log := j.logger.WithField("preset", p.Name)

		result, err := j.engine.Run(ctx, p.Request())
		switch {
		case err == nil:
			outcome.Result = result
			log.WithFields(map[string]interface{}{
				"return":           result.TotalReturn.StringFixed(2),
				"num_observations": result.NumObservations,
				"skipped_rows":     result.SkippedRows,
			}).Info("Preset completed")

		case backtest.IsClientError(err):
			rejected++
			outcome.Error = err.Error()
			outcome.Skipped = true
			log.WithError(err).Warn("Preset rejected")

		default:
			outcome.Error = err.Error()
			j.record(outcome)
			return fmt.Errorf("preset %s: %w", p.Name, err)
		}

		j.record(outcome)
	}

	if rejected == len(j.file.Presets) {
		return scheduler.Permanent(fmt.Errorf("all %d presets were rejected", rejected))
	}
	return nil
}

func (j *PresetJob) record(o PresetOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes[o.Preset] = o
}

// Outcomes returns the latest outcome of every preset that has run
func (j *PresetJob) Outcomes() map[string]PresetOutcome {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make(map[string]PresetOutcome, len(j.outcomes))
	for k, v := range j.outcomes {
		out[k] = v
	}
	return out
}
