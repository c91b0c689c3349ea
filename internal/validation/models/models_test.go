package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Level
		wantErr  bool
	}{
		{name: "empty defaults to strict", input: "", expected: LevelStrict},
		{name: "mixed case", input: " Standard ", expected: LevelStandard},
		{name: "relaxed", input: "relaxed", expected: LevelRelaxed},
		{name: "unknown", input: "lenient", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestMeetsLevel(t *testing.T) {
	t.Run("strict requires a perfect score", func(t *testing.T) {
		r := &Report{Level: LevelStrict, OverallScore: 0.99}
		assert.False(t, r.MeetsLevel())
		r.OverallScore = 1.0
		assert.True(t, r.MeetsLevel())
	})

	t.Run("standard accepts 0.9", func(t *testing.T) {
		r := &Report{Level: LevelStandard, OverallScore: 0.4 + 0.35 + 0.15}
		assert.True(t, r.MeetsLevel())
	})

	t.Run("relaxed rejects below 0.75", func(t *testing.T) {
		r := &Report{Level: LevelRelaxed, OverallScore: 0.74}
		assert.False(t, r.MeetsLevel())
	})
}

func TestSummarize(t *testing.T) {
	t.Run("empty batch has zero pass rate", func(t *testing.T) {
		summary := Summarize(nil)
		assert.Equal(t, 0, summary.Total)
		assert.Equal(t, 0.0, summary.PassRate)
		assert.NotNil(t, summary.Reports)
	})

	t.Run("warnings count toward total only", func(t *testing.T) {
		reports := []*Report{
			{OverallStatus: StatusPassed},
			{OverallStatus: StatusWarning},
			{OverallStatus: StatusFailed},
			{OverallStatus: StatusPassed},
		}
		summary := Summarize(reports)
		assert.Equal(t, 4, summary.Total)
		assert.Equal(t, 2, summary.Passed)
		assert.Equal(t, 1, summary.Failed)
		assert.InDelta(t, 0.5, summary.PassRate, 1e-9)
		assert.Same(t, reports[1], summary.Reports[1])
	})
}

func TestValidationID(t *testing.T) {
	record := map[string]any{"id": "lead_001", "price": 250000}
	reordered := map[string]any{"price": 250000, "id": "lead_001"}
	t1 := time.Date(2026, 1, 11, 8, 30, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	id1 := NewValidationID(record, t1)
	id2 := NewValidationID(reordered, t2)

	assert.Equal(t, "val_20260111083000_"+ContentHash(record), id1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, ContentHash(record), ContentHash(reordered))
	assert.Len(t, ContentHash(record), 8)
	assert.True(t, strings.HasSuffix(id2, ContentHash(record)))
	assert.NotEqual(t, ContentHash(record), ContentHash(map[string]any{"id": "lead_002"}))
}

func TestSubmissionPayload(t *testing.T) {
	empty := ContentHash(Submission{DataType: "lead"}.Payload())
	nullItem := ContentHash(NewSubmission("lead", nil).Payload())
	emptyList := ContentHash(Submission{DataType: "lead", Items: []any{}}.Payload())

	assert.NotEqual(t, empty, nullItem)
	assert.Equal(t, empty, emptyList)

	record := map[string]any{"id": "lead_001"}
	assert.Equal(t, ContentHash(record), ContentHash(NewSubmission("lead", record).Payload()))
	assert.Equal(t, ContentHash([]any{record, record}), ContentHash(NewSubmission("lead", record, record).Payload()))
}

func TestReportJSON(t *testing.T) {
	start := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)

	t.Run("pending report has null end time and duration", func(t *testing.T) {
		r := NewReport("val_x", "lead", LevelStrict, start)
		raw, err := json.Marshal(r)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, "pending", decoded["overallStatus"])
		assert.Nil(t, decoded["endTime"])
		assert.Nil(t, decoded["durationSeconds"])
		assert.Nil(t, decoded["step1"])
	})

	t.Run("finalized report carries duration", func(t *testing.T) {
		end := start.Add(1500 * time.Millisecond)
		r := NewReport("val_x", "lead", LevelStandard, start)
		r.Step1 = &StepResult{Step: StepSchema, Status: StatusPassed, Score: 1, Errors: []string{}, Warnings: []string{}}
		r.OverallStatus = StatusPassed
		r.EndTime = &end

		raw, err := json.Marshal(r)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, 1.5, decoded["durationSeconds"])
		assert.Equal(t, "standard", decoded["level"])
		step1 := decoded["step1"].(map[string]any)
		assert.Equal(t, "Schema Validation", step1["step"])
		assert.True(t, r.Finalized())

		var roundTrip Report
		require.NoError(t, json.Unmarshal(raw, &roundTrip))
		assert.Equal(t, r.ValidationID, roundTrip.ValidationID)
		assert.Equal(t, StatusPassed, roundTrip.Step1.Status)
	})
}
