package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of a single stage or of a whole report.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
	StatusPending Status = "pending"
)

func (s Status) String() string {
	return string(s)
}

// Level is the caller-side strictness policy. The aggregator never applies it;
// callers compare Report.OverallScore against Level.Threshold.
type Level string

const (
	LevelStrict   Level = "strict"
	LevelStandard Level = "standard"
	LevelRelaxed  Level = "relaxed"
)

// ParseLevel accepts a level name in any case. Empty input yields LevelStrict.
func ParseLevel(raw string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(raw))) {
	case "", LevelStrict:
		return LevelStrict, nil
	case LevelStandard:
		return LevelStandard, nil
	case LevelRelaxed:
		return LevelRelaxed, nil
	default:
		return "", fmt.Errorf("unknown validation level %q", raw)
	}
}

// Threshold returns the advisory minimum overall score for the level.
func (l Level) Threshold() float64 {
	switch l {
	case LevelStandard:
		return 0.90
	case LevelRelaxed:
		return 0.75
	default:
		return 1.0
	}
}

// Stage names as they appear in StepResult.Step.
const (
	StepSchema         = "Schema Validation"
	StepCrossReference = "Cross-Reference Validation"
	StepExternal       = "External Verification"
)

// Submission is the unit handed to the engine: one or more harvested items
// sharing a data type. Items are normally map[string]any values decoded from
// JSON; anything else fails structural validation.
type Submission struct {
	DataType string
	Level    Level
	Items    []any
}

// NewSubmission builds a submission for the given data type.
func NewSubmission(dataType string, items ...any) Submission {
	return Submission{DataType: dataType, Items: items}
}

// Payload returns the value used for content hashing: the single item when
// there is exactly one, otherwise the whole list. No items hash as an empty
// list, never as null, so they stay distinct from a single null item.
func (s Submission) Payload() any {
	if len(s.Items) == 1 {
		return s.Items[0]
	}
	if s.Items == nil {
		return []any{}
	}
	return s.Items
}

// StepResult is produced once per stage invocation and is not mutated after.
type StepResult struct {
	Step       string         `json:"step"`
	Status     Status         `json:"status"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	Errors     []string       `json:"errors"`
	Warnings   []string       `json:"warnings"`
	Details    map[string]any `json:"details"`
	Timestamp  time.Time      `json:"timestamp"`
}

// HasErrors reports whether the stage recorded any error message.
func (r *StepResult) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// Report is the consolidated verdict for one submission.
//
// Invariants:
//   - Step1, Step2 and Step3 are all set once the report is finalized
//   - OverallStatus is StatusPending until finalized
//   - EndTime is nil until finalized
type Report struct {
	ValidationID      string      `json:"validationId"`
	DataType          string      `json:"dataType"`
	Level             Level       `json:"level"`
	Step1             *StepResult `json:"step1"`
	Step2             *StepResult `json:"step2"`
	Step3             *StepResult `json:"step3"`
	OverallStatus     Status      `json:"overallStatus"`
	OverallScore      float64     `json:"overallScore"`
	OverallConfidence float64     `json:"overallConfidence"`
	StartTime         time.Time   `json:"startTime"`
	EndTime           *time.Time  `json:"endTime"`
}

// NewReport starts a pending report.
func NewReport(validationID, dataType string, level Level, start time.Time) *Report {
	return &Report{
		ValidationID:  validationID,
		DataType:      dataType,
		Level:         level,
		OverallStatus: StatusPending,
		StartTime:     start,
	}
}

// Steps returns the stage results in stage order.
func (r *Report) Steps() []*StepResult {
	return []*StepResult{r.Step1, r.Step2, r.Step3}
}

// Finalized reports whether the aggregator has completed the report.
func (r *Report) Finalized() bool {
	return r.EndTime != nil && r.OverallStatus != StatusPending
}

// Duration is zero until the report is finalized.
func (r *Report) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// MeetsLevel applies the advisory threshold of the report's level.
func (r *Report) MeetsLevel() bool {
	return r.OverallScore+1e-9 >= r.Level.Threshold()
}

// MarshalJSON adds the derived durationSeconds and meetsLevel fields.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	var duration *float64
	if r.EndTime != nil {
		seconds := r.EndTime.Sub(r.StartTime).Seconds()
		duration = &seconds
	}
	return json.Marshal(struct {
		plain
		DurationSeconds *float64 `json:"durationSeconds"`
		MeetsLevel      bool     `json:"meetsLevel"`
	}{plain: plain(r), DurationSeconds: duration, MeetsLevel: r.MeetsLevel()})
}

// BatchSummary folds the reports of a batch. Reports keep input order.
type BatchSummary struct {
	Total    int       `json:"total"`
	Passed   int       `json:"passed"`
	Failed   int       `json:"failed"`
	PassRate float64   `json:"passRate"`
	Reports  []*Report `json:"reports"`
}

// Summarize counts passed and failed reports. Warning reports count toward
// Total only.
func Summarize(reports []*Report) BatchSummary {
	summary := BatchSummary{
		Total:   len(reports),
		Reports: reports,
	}
	if summary.Reports == nil {
		summary.Reports = []*Report{}
	}
	for _, r := range reports {
		if r == nil {
			continue
		}
		switch r.OverallStatus {
		case StatusPassed:
			summary.Passed++
		case StatusFailed:
			summary.Failed++
		}
	}
	if summary.Total > 0 {
		summary.PassRate = float64(summary.Passed) / float64(summary.Total)
	}
	return summary
}
