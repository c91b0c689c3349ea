// Package consensus merges the three stage results into the final verdict.
package consensus

import (
	"errors"
	"fmt"
	"math"
	"time"

	"triplecheck/internal/validation/models"
)

// Weights are the per-stage contributions to the overall score and confidence.
type Weights struct {
	Schema         float64 `yaml:"schema"`
	CrossReference float64 `yaml:"cross_reference"`
	External       float64 `yaml:"external"`
}

// DefaultWeights favours structural integrity, then internal consistency.
func DefaultWeights() Weights {
	return Weights{Schema: 0.40, CrossReference: 0.35, External: 0.25}
}

const weightTolerance = 1e-6

var ErrInvalidWeights = errors.New("invalid stage weights")

// Validate requires non-negative weights summing to 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Schema, w.CrossReference, w.External} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: negative or NaN weight in %+v", ErrInvalidWeights, w)
		}
	}
	if sum := w.Schema + w.CrossReference + w.External; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %.4f, want 1", ErrInvalidWeights, sum)
	}
	return nil
}

// Aggregator finalizes reports.
type Aggregator struct {
	weights Weights
}

// New returns an aggregator, rejecting weights that do not sum to 1.
func New(w Weights) (*Aggregator, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{weights: w}, nil
}

// Weights returns the configured weights.
func (a *Aggregator) Weights() Weights {
	return a.weights
}

// Finalize attaches the stage results to the report and computes the overall
// status, score and confidence. A missing stage result counts as failed.
func (a *Aggregator) Finalize(r *models.Report, schema, crossRef, external *models.StepResult, end time.Time) {
	r.Step1 = orFailed(schema, models.StepSchema, end)
	r.Step2 = orFailed(crossRef, models.StepCrossReference, end)
	r.Step3 = orFailed(external, models.StepExternal, end)

	w := []float64{a.weights.Schema, a.weights.CrossReference, a.weights.External}
	var score, confidence float64
	for i, step := range r.Steps() {
		score += w[i] * step.Score
		confidence += w[i] * step.Confidence
	}
	r.OverallScore = score
	r.OverallConfidence = confidence
	r.OverallStatus = Status(r.Steps()...)
	r.EndTime = &end
}

// Status applies the precedence rule: any failed stage fails the report, all
// passed passes it, anything else is a warning.
func Status(steps ...*models.StepResult) models.Status {
	allPassed := len(steps) > 0
	for _, s := range steps {
		if s == nil || s.Status == models.StatusFailed {
			return models.StatusFailed
		}
		if s.Status != models.StatusPassed {
			allPassed = false
		}
	}
	if allPassed {
		return models.StatusPassed
	}
	return models.StatusWarning
}

// FailedStep builds the result recorded for a stage that could not run.
func FailedStep(step, message string, at time.Time) *models.StepResult {
	return &models.StepResult{
		Step:      step,
		Status:    models.StatusFailed,
		Errors:    []string{message},
		Warnings:  []string{},
		Details:   map[string]any{},
		Timestamp: at,
	}
}

func orFailed(step *models.StepResult, name string, at time.Time) *models.StepResult {
	if step != nil {
		return step
	}
	return FailedStep(name, "stage did not produce a result", at)
}
