package stages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplecheck/internal/validation/models"
	"triplecheck/internal/validation/schema"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func leadSchema(t *testing.T) schema.Definition {
	t.Helper()
	def, exact := schema.Default().Resolve("lead")
	require.True(t, exact)
	return def
}

func lead(id string) map[string]any {
	return map[string]any{
		"id":         id,
		"source_url": "https://example.com/listing/" + id,
		"scraped_at": "2025-03-14T09:00:00Z",
		"company":    "Acme Realty",
	}
}

func TestStructural(t *testing.T) {
	stage := NewStructural(fixedClock)
	ctx := context.Background()

	t.Run("complete item passes", func(t *testing.T) {
		res := stage.Validate(ctx, Input{DataType: "lead", Items: []any{lead("lead_001")}, Schema: leadSchema(t), ExactSchema: true})

		assert.Equal(t, models.StepSchema, res.Step)
		assert.Equal(t, models.StatusPassed, res.Status)
		assert.Equal(t, 1.0, res.Score)
		assert.Equal(t, 1.0, res.Confidence)
		assert.Empty(t, res.Errors)
		assert.Empty(t, res.Warnings)
		assert.Equal(t, fixedNow, res.Timestamp)
		assert.Equal(t, 1, res.Details["validated_items"])
	})

	t.Run("missing and empty fields fail the stage", func(t *testing.T) {
		missing := lead("lead_002")
		delete(missing, "source_url")
		empty := lead("lead_003")
		empty["scraped_at"] = ""

		res := stage.Validate(ctx, Input{DataType: "lead", Items: []any{lead("lead_001"), missing, empty}, Schema: leadSchema(t), ExactSchema: true})

		assert.Equal(t, models.StatusFailed, res.Status)
		assert.InDelta(t, 1.0/3.0, res.Score, 1e-9)
		assert.InDelta(t, 0.8, res.Confidence, 1e-9)
		assert.Equal(t, []string{
			"item[1]: Missing required field 'source_url'",
			"item[2]: Required field 'scraped_at' is empty",
		}, res.Errors)
	})

	t.Run("null required field counts as empty", func(t *testing.T) {
		item := lead("lead_004")
		item["id"] = nil
		res := stage.Validate(ctx, Input{DataType: "lead", Items: []any{item}, Schema: leadSchema(t), ExactSchema: true})

		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], "Required field 'id' is empty")
	})

	t.Run("non-object items are schema errors", func(t *testing.T) {
		res := stage.Validate(ctx, Input{DataType: "lead", Items: []any{"just text", []any{1.0}}, Schema: leadSchema(t), ExactSchema: true})

		assert.Equal(t, models.StatusFailed, res.Status)
		assert.Equal(t, 0.0, res.Score)
		assert.Equal(t, []string{
			"item[0]: Expected object, got string",
			"item[1]: Expected object, got array",
		}, res.Errors)
	})

	t.Run("empty submission fails", func(t *testing.T) {
		res := stage.Validate(ctx, Input{DataType: "lead", Schema: leadSchema(t), ExactSchema: true})

		assert.Equal(t, models.StatusFailed, res.Status)
		assert.Equal(t, 0.0, res.Score)
		assert.Equal(t, []string{"no items to validate"}, res.Errors)
	})

	t.Run("confidence floors at zero", func(t *testing.T) {
		items := make([]any, 12)
		for i := range items {
			items[i] = map[string]any{"id": "x"}
		}
		res := stage.Validate(ctx, Input{DataType: "lead", Items: items, Schema: leadSchema(t), ExactSchema: true})

		assert.Equal(t, 0.0, res.Confidence)
	})

	t.Run("fallback schema adds a warning", func(t *testing.T) {
		res := stage.Validate(ctx, Input{DataType: "vehicle", Items: []any{lead("lead_001")}, Schema: leadSchema(t)})

		assert.Equal(t, models.StatusPassed, res.Status)
		require.Len(t, res.Warnings, 1)
		assert.Contains(t, res.Warnings[0], `unknown data type "vehicle"`)
	})
}
