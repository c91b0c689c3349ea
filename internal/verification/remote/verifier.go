// Package remote contains the outbound verification services consulted by the
// external verification stage: a generative text service that scores a record
// and plain HTTP verification endpoints that hold reference copies of records.
//
// Every Verifier call is bounded by the caller's context. Failures are returned
// as *Error values with a normalized Category so the stage can record them
// without inspecting transport details.
package remote

//go:generate mockgen -source=verifier.go -destination=mocks/mocks.go -package=mocks Verifier

import (
	"context"
	"errors"
)

// Verdict is one remote opinion about one item.
type Verdict struct {
	Verifier   string  `json:"verifier"`
	Valid      bool    `json:"valid"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Verifier is implemented by every remote verification source.
type Verifier interface {
	Name() string
	// Verify returns ErrNotApplicable when the item lacks what the source
	// needs (for example an identifier); such calls are not scored.
	Verify(ctx context.Context, item map[string]any) (Verdict, error)
}

// ErrNotApplicable marks an item the verifier cannot judge.
var ErrNotApplicable = errors.New("verifier not applicable to item")

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
