package stages

import (
	"context"
	"fmt"

	"triplecheck/internal/validation/models"
)

// Structural checks field presence and non-emptiness against the schema.
// The outcome is binary: any error fails the stage.
type Structural struct {
	clock Clock
}

// NewStructural constructs the stage 1 validator.
func NewStructural(clock Clock) *Structural {
	return &Structural{clock: clockOrDefault(clock)}
}

func (s *Structural) Name() string {
	return models.StepSchema
}

func (s *Structural) Validate(_ context.Context, in Input) models.StepResult {
	var errs []*StageError
	var warnings []string
	validated := 0

	if !in.ExactSchema {
		warnings = append(warnings, fmt.Sprintf("unknown data type %q, validated against %q schema", in.DataType, in.Schema.Type))
	}
	if len(in.Items) == 0 {
		errs = append(errs, newSchemaError(noItem, "no items to validate"))
	}

	for i, item := range in.Items {
		itemErrs := validateItem(i, item, in.Schema.Required)
		if len(itemErrs) == 0 {
			validated++
			continue
		}
		errs = append(errs, itemErrs...)
	}

	total := len(in.Items)
	score := 0.0
	if total > 0 {
		score = float64(validated) / float64(total)
	}
	status := models.StatusPassed
	if len(errs) > 0 {
		status = models.StatusFailed
	}

	return models.StepResult{
		Step:       s.Name(),
		Status:     status,
		Score:      score,
		Confidence: clamp01(1.0 - 0.1*float64(len(errs))),
		Errors:     messages(errs),
		Warnings:   nonNil(warnings),
		Details: map[string]any{
			"total_items":     total,
			"validated_items": validated,
			"schema_type":     in.Schema.Type,
		},
		Timestamp: s.clock(),
	}
}

func validateItem(index int, item any, required []string) []*StageError {
	obj, ok := asObject(item)
	if !ok {
		return []*StageError{newSchemaError(index, "Expected object, got %s", jsonKind(item))}
	}
	var errs []*StageError
	for _, field := range required {
		value, present := obj[field]
		switch {
		case !present:
			errs = append(errs, newSchemaError(index, "Missing required field '%s'", field))
		case value == nil || value == "":
			errs = append(errs, newSchemaError(index, "Required field '%s' is empty", field))
		}
	}
	return errs
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "array"
	case float64, float32, int, int64, int32, uint, uint64, uint32:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
