// Package stages implements the three validation passes. Each stage catches
// its own failures and encodes them into the StepResult it returns; no stage
// returns an error to its caller.
package stages

import (
	"context"
	"time"

	"triplecheck/internal/validation/models"
	"triplecheck/internal/validation/schema"
)

// Input is what every stage sees for one submission.
type Input struct {
	DataType string
	Items    []any
	Schema   schema.Definition
	// ExactSchema is false when Schema is the registry fallback for an
	// unknown data type.
	ExactSchema bool
}

// Stage is one validation pass. Implementations must be safe for concurrent
// use by multiple submissions.
type Stage interface {
	Name() string
	Validate(ctx context.Context, in Input) models.StepResult
}

// Clock supplies stage timestamps.
type Clock func() time.Time

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func asObject(item any) (map[string]any, bool) {
	m, ok := item.(map[string]any)
	return m, ok
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
