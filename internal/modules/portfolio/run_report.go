package portfolio

import (
	"time"

	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/internal/modules/performance"
	"github.com/aristath/portfolio-advisor/internal/modules/reconciliation"
)

// Run steps, as recorded in StepFailure.Step
const (
	StepLoadPositions   = "load_positions"
	StepPerformance     = "performance"
	StepReconcile       = "reconcile"
	StepClosePositions  = "close_positions"
	StepRealizedGains   = "realized_gains"
	StepUniverse        = "universe"
	StepSentiment       = "sentiment"
	StepRecommendations = "recommendations"
	StepAdvisor         = "advisor"
	StepSavePositions   = "save_positions"
)

// StepFailure is a step that failed without stopping the run
type StepFailure struct {
	Step    string           `json:"step"`
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// RunReport is everything one run did
type RunReport struct {
	RunID      string    `json:"run_id"`
	Date       string    `json:"date"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Performance    *performance.Report      `json:"performance,omitempty"`
	Reconciliation *reconciliation.Result   `json:"reconciliation,omitempty"`
	Closed         []domain.ClosingRecord   `json:"closed"`
	RealizedGains  *reconciliation.Realized `json:"realized_gains,omitempty"`

	Sentiment       string            `json:"sentiment"`
	Recommendations int               `json:"recommendations"`
	Proposed        []domain.BuyOrder `json:"proposed"`
	Opened          []domain.Position `json:"opened"`

	Failures []StepFailure `json:"failures,omitempty"`
}

func (r *RunReport) fail(step string, err error) {
	r.Failures = append(r.Failures, StepFailure{
		Step:    step,
		Kind:    domain.KindOf(err),
		Message: err.Error(),
	})
}

// Failed reports whether step failed during the run
func (r *RunReport) Failed(step string) bool {
	for _, f := range r.Failures {
		if f.Step == step {
			return true
		}
	}
	return false
}

// Duration is the wall time of the run
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
