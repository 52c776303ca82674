package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/infiotinc/team-sync/internal/manifest"
	"github.com/infiotinc/team-sync/internal/metrics"
)

// Outcome is the per-group record of a run.
type Outcome struct {
	Team string
	Key  string
	Err  error
}

// Result collects the outcomes of every group a run attempted, in run order.
// Groups reconciled before a failure stay converged and keep their outcome
// even though the run as a whole failed.
type Result struct {
	Outcomes []Outcome
	Duration time.Duration
}

// Converged returns how many groups reconciled without error.
func (r *Result) Converged() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Runner drives the engine over an ordered set of teams, one group at a
// time.
type Runner struct {
	engine *Engine
	logger *zap.Logger
}

// NewRunner creates a runner around an engine.
func NewRunner(engine *Engine, logger *zap.Logger) *Runner {
	return &Runner{engine: engine, logger: logger.Named("runner")}
}

// Run reconciles every non-ignored team, parents before children, stopping
// at the first failure. Ignored teams cause no remote call of any kind. The
// returned result records the outcome of every attempted group, including
// the failing one; it is nil only when the ordering itself fails.
func (r *Runner) Run(ctx context.Context, teams []manifest.Team) (*Result, error) {
	ordered, err := Order(teams)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	start := time.Now()
	result := &Result{}

	for _, team := range ordered {
		r.logger.Info("reconciling group",
			zap.String("group", team.Name),
			zap.String("key", team.Key),
		)

		err := r.engine.Reconcile(ctx, team)
		result.Outcomes = append(result.Outcomes, Outcome{Team: team.Name, Key: team.Key, Err: err})
		if err != nil {
			result.Duration = time.Since(start)
			metrics.RunsTotal.WithLabelValues("failure").Inc()
			metrics.RunDuration.Set(result.Duration.Seconds())
			return result, fmt.Errorf("reconcile group %q: %w", team.Name, err)
		}
	}

	result.Duration = time.Since(start)
	metrics.RunsTotal.WithLabelValues("success").Inc()
	metrics.RunDuration.Set(result.Duration.Seconds())

	r.logger.Info("run complete",
		zap.Int("groups", len(result.Outcomes)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}
