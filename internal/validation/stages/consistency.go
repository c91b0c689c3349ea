package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"triplecheck/internal/validation/models"
)

// ConsistencyConfig tunes stage 2.
type ConsistencyConfig struct {
	IDField          string
	MaxIDLength      int
	PriceFields      []string
	EstimateFields   []string
	MinRatio         float64
	MaxRatio         float64
	WarningThreshold float64
}

// DefaultConsistencyConfig returns the stage 2 defaults.
func DefaultConsistencyConfig() ConsistencyConfig {
	return ConsistencyConfig{
		IDField:          "id",
		MaxIDLength:      256,
		PriceFields:      []string{"price", "list_price"},
		EstimateFields:   []string{"estimated_value"},
		MinRatio:         0.1,
		MaxRatio:         10,
		WarningThreshold: 0.8,
	}
}

// Consistency checks identifier well-formedness and the plausibility of the
// price to estimated-value ratio. Each check adds one match or mismatch per
// object item.
type Consistency struct {
	cfg   ConsistencyConfig
	clock Clock
}

// NewConsistency constructs the stage 2 validator.
func NewConsistency(cfg ConsistencyConfig, clock Clock) *Consistency {
	return &Consistency{cfg: cfg, clock: clockOrDefault(clock)}
}

func (c *Consistency) Name() string {
	return models.StepCrossReference
}

type tally struct {
	matches    int
	mismatches int
	errs       []*StageError
}

func (t *tally) record(err *StageError) {
	if err == nil {
		t.matches++
		return
	}
	t.mismatches++
	t.errs = append(t.errs, err)
}

func (c *Consistency) Validate(_ context.Context, in Input) models.StepResult {
	var idTally, ratioTally tally
	var warnings []string
	for i, item := range in.Items {
		if _, ok := asObject(item); !ok {
			warnings = append(warnings, fmt.Sprintf("%s: not an object, consistency checks skipped", itemPath(i)))
		}
	}

	// The two passes share no state; results are merged in a fixed order.
	var g errgroup.Group
	g.Go(func() error {
		for i, item := range in.Items {
			if obj, ok := asObject(item); ok {
				idTally.record(c.checkIdentifier(i, obj))
			}
		}
		return nil
	})
	g.Go(func() error {
		for i, item := range in.Items {
			if obj, ok := asObject(item); ok {
				ratioTally.record(c.checkRatio(i, obj))
			}
		}
		return nil
	})
	_ = g.Wait()

	matches := idTally.matches + ratioTally.matches
	mismatches := idTally.mismatches + ratioTally.mismatches
	total := matches + mismatches
	score := 1.0
	if total > 0 {
		score = float64(matches) / float64(total)
	}

	status := models.StatusFailed
	switch {
	case mismatches == 0:
		status = models.StatusPassed
	case score >= c.cfg.WarningThreshold:
		status = models.StatusWarning
	}

	errs := append(idTally.errs, ratioTally.errs...)
	return models.StepResult{
		Step:       c.Name(),
		Status:     status,
		Score:      score,
		Confidence: score,
		Errors:     messages(errs),
		Warnings:   nonNil(warnings),
		Details: map[string]any{
			"matches":      matches,
			"mismatches":   mismatches,
			"total_checks": total,
		},
		Timestamp: c.clock(),
	}
}

// checkIdentifier passes vacuously when the id field is absent.
func (c *Consistency) checkIdentifier(index int, obj map[string]any) *StageError {
	raw, present := obj[c.cfg.IDField]
	if !present {
		return nil
	}
	var id string
	switch v := raw.(type) {
	case nil:
		id = ""
	case string:
		id = v
	default:
		id = fmt.Sprint(v)
	}
	if id == "" {
		return newConsistencyError(index, "identifier '%s' is empty", c.cfg.IDField)
	}
	if n := utf8.RuneCountInString(id); n > c.cfg.MaxIDLength {
		return newConsistencyError(index, "identifier '%s' is %d characters, limit is %d", c.cfg.IDField, n, c.cfg.MaxIDLength)
	}
	return nil
}

// checkRatio passes vacuously unless both values are present, numeric and non-zero.
func (c *Consistency) checkRatio(index int, obj map[string]any) *StageError {
	priceField, price, ok := firstNumber(obj, c.cfg.PriceFields)
	if !ok {
		return nil
	}
	estimateField, estimate, ok := firstNumber(obj, c.cfg.EstimateFields)
	if !ok {
		return nil
	}
	if price == 0 || estimate == 0 {
		return nil
	}
	ratio := price / estimate
	if ratio < c.cfg.MinRatio || ratio > c.cfg.MaxRatio {
		return newConsistencyError(index, "%s/%s ratio %.4g outside [%g, %g]",
			priceField, estimateField, ratio, c.cfg.MinRatio, c.cfg.MaxRatio)
	}
	return nil
}

func firstNumber(obj map[string]any, fields []string) (string, float64, bool) {
	for _, f := range fields {
		raw, present := obj[f]
		if !present {
			continue
		}
		if n, ok := toFloat(raw); ok {
			return f, n, true
		}
		return f, 0, false
	}
	return "", 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
