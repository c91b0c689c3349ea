package stages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"triplecheck/internal/validation/models"
	"triplecheck/internal/verification/remote"
)

// DefaultPlaceholderMarkers are the tokens that mark synthetic content.
var DefaultPlaceholderMarkers = []string{"test", "dummy", "fake", "xxx", "placeholder"}

// Credential is a named external-verification credential and whether the
// configuration supplied a value for it.
type Credential struct {
	Name    string
	Present bool
}

// ExternalConfig tunes stage 3.
type ExternalConfig struct {
	Credentials        []Credential
	Markers            []string
	PatternThreshold   float64
	WarningThreshold   float64
	ConfidenceDiscount float64
	// RemoteWeight is the share of the stage confidence taken from remote
	// verdicts when any remote verifier was consulted.
	RemoteWeight  float64
	RemoteSample  int
	RemoteTimeout time.Duration
}

// DefaultExternalConfig returns the stage 3 defaults.
func DefaultExternalConfig() ExternalConfig {
	return ExternalConfig{
		Markers:            DefaultPlaceholderMarkers,
		PatternThreshold:   0.9,
		WarningThreshold:   0.5,
		ConfidenceDiscount: 0.9,
		RemoteWeight:       0.3,
		RemoteSample:       5,
		RemoteTimeout:      10 * time.Second,
	}
}

// External checks credential availability and content plausibility, and
// optionally consults remote verifiers for a sample of items. Remote results
// only move the confidence and add diagnostics; they never change the score
// or status.
type External struct {
	cfg       ExternalConfig
	markers   []string
	verifiers []remote.Verifier
	clock     Clock
}

// NewExternal constructs the stage 3 verifier.
func NewExternal(cfg ExternalConfig, verifiers []remote.Verifier, clock Clock) *External {
	markers := make([]string, 0, len(cfg.Markers))
	for _, m := range cfg.Markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	return &External{
		cfg:       cfg,
		markers:   markers,
		verifiers: verifiers,
		clock:     clockOrDefault(clock),
	}
}

func (e *External) Name() string {
	return models.StepExternal
}

type check struct {
	name    string
	passed  bool
	message string
}

type patternOutcome struct {
	check
	valid    int
	total    int
	flagged  []string
	ratio    float64
	warnings []string
}

type remoteCall struct {
	verifier string
	v        remote.Verifier
	item     int
	verdict  remote.Verdict
	err      error
}

func (e *External) Validate(ctx context.Context, in Input) models.StepResult {
	var credentials check
	var patterns patternOutcome
	calls := e.plannedCalls(in.Items)

	var g errgroup.Group
	g.Go(func() error {
		credentials = e.checkCredentials()
		return nil
	})
	g.Go(func() error {
		patterns = e.checkPatterns(in.Items)
		return nil
	})
	for i := range calls {
		call := &calls[i]
		g.Go(func() error {
			call.verdict, call.err = e.consult(ctx, call.v, in.Items[call.item])
			return nil
		})
	}
	_ = g.Wait()

	checks := []check{credentials, patterns.check}
	passed := 0
	var errs []*StageError
	for _, c := range checks {
		if c.passed {
			passed++
			continue
		}
		errs = append(errs, newExternalError(noItem, c.message, nil))
	}
	score := float64(passed) / float64(len(checks))

	status := models.StatusFailed
	switch {
	case passed == len(checks):
		status = models.StatusPassed
	case score >= e.cfg.WarningThreshold:
		status = models.StatusWarning
	}

	warnings := append([]string{}, patterns.warnings...)
	confidence := score * e.cfg.ConfidenceDiscount
	remoteDetails, remoteMean, consulted := e.foldRemote(calls, &errs, &warnings)
	if consulted > 0 {
		w := clamp01(e.cfg.RemoteWeight)
		confidence = (1-w)*confidence + w*remoteMean*e.cfg.ConfidenceDiscount
	}

	return models.StepResult{
		Step:       e.Name(),
		Status:     status,
		Score:      score,
		Confidence: clamp01(confidence),
		Errors:     messages(errs),
		Warnings:   warnings,
		Details: map[string]any{
			"verified":      passed,
			"total":         len(checks),
			"credentials":   e.credentialDetails(),
			"valid_items":   patterns.valid,
			"total_items":   patterns.total,
			"pattern_ratio": patterns.ratio,
			"flagged_items": nonNil(patterns.flagged),
			"remote":        remoteDetails,
		},
		Timestamp: e.clock(),
	}
}

func (e *External) checkCredentials() check {
	var missing []string
	for _, c := range e.cfg.Credentials {
		if !c.Present {
			missing = append(missing, c.Name)
		}
	}
	if len(missing) == 0 {
		return check{name: "credentials", passed: true}
	}
	return check{
		name:    "credentials",
		message: fmt.Sprintf("credentials not configured: %s", strings.Join(missing, ", ")),
	}
}

func (e *External) credentialDetails() map[string]bool {
	out := make(map[string]bool, len(e.cfg.Credentials))
	for _, c := range e.cfg.Credentials {
		out[c.Name] = c.Present
	}
	return out
}

func (e *External) checkPatterns(items []any) patternOutcome {
	out := patternOutcome{check: check{name: "data_patterns"}, total: len(items)}
	for i, item := range items {
		obj, ok := asObject(item)
		if !ok {
			out.flagged = append(out.flagged, itemPath(i))
			out.warnings = append(out.warnings, fmt.Sprintf("%s: not an object", itemPath(i)))
			continue
		}
		if field, marker, found := e.findPlaceholder(obj); found {
			out.flagged = append(out.flagged, itemPath(i))
			out.warnings = append(out.warnings, fmt.Sprintf("%s: placeholder content %q in field '%s'", itemPath(i), marker, field))
			continue
		}
		out.valid++
	}
	if out.total > 0 {
		out.ratio = float64(out.valid) / float64(out.total)
	}
	out.passed = out.total > 0 && out.ratio >= e.cfg.PatternThreshold
	if out.passed {
		out.message = fmt.Sprintf("%d/%d items valid", out.valid, out.total)
	} else {
		out.message = fmt.Sprintf("Only %d/%d items valid", out.valid, out.total)
	}
	return out
}

// findPlaceholder walks every string value, including nested ones, in key
// order so the reported field is deterministic.
func (e *External) findPlaceholder(obj map[string]any) (field, marker string, found bool) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if path, m, ok := e.scan(k, obj[k]); ok {
			return path, m, true
		}
	}
	return "", "", false
}

func (e *External) scan(path string, value any) (string, string, bool) {
	switch v := value.(type) {
	case string:
		lower := strings.ToLower(v)
		for _, m := range e.markers {
			if strings.Contains(lower, m) {
				return path, m, true
			}
		}
	case map[string]any:
		if p, m, ok := e.findPlaceholder(v); ok {
			return path + "." + p, m, true
		}
	case []any:
		for i, el := range v {
			if p, m, ok := e.scan(fmt.Sprintf("%s[%d]", path, i), el); ok {
				return p, m, true
			}
		}
	}
	return "", "", false
}

// plannedCalls picks the first RemoteSample object items for every verifier.
func (e *External) plannedCalls(items []any) []remoteCall {
	if len(e.verifiers) == 0 || e.cfg.RemoteSample <= 0 {
		return nil
	}
	var sample []int
	for i, item := range items {
		if len(sample) == e.cfg.RemoteSample {
			break
		}
		if _, ok := asObject(item); ok {
			sample = append(sample, i)
		}
	}
	calls := make([]remoteCall, 0, len(sample)*len(e.verifiers))
	for _, v := range e.verifiers {
		for _, i := range sample {
			calls = append(calls, remoteCall{verifier: v.Name(), v: v, item: i})
		}
	}
	return calls
}

func (e *External) consult(ctx context.Context, v remote.Verifier, item any) (verdict remote.Verdict, err error) {
	obj, _ := asObject(item)
	defer func() {
		if r := recover(); r != nil {
			err = remote.NewError(remote.CategoryInternal, v.Name(), fmt.Sprintf("verifier panic: %v", r), nil)
		}
	}()
	timeout := e.cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = DefaultExternalConfig().RemoteTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return v.Verify(ctx, obj)
}

// foldRemote turns call outcomes into details, errors and warnings. Failed
// calls count as zero confidence; not-applicable calls are left out.
func (e *External) foldRemote(calls []remoteCall, errs *[]*StageError, warnings *[]string) ([]map[string]any, float64, int) {
	details := make([]map[string]any, 0, len(calls))
	sum := 0.0
	consulted := 0
	for _, c := range calls {
		entry := map[string]any{"verifier": c.verifier, "item": c.item}
		switch {
		case errors.Is(c.err, remote.ErrNotApplicable):
			entry["skipped"] = true
		case c.err != nil:
			consulted++
			entry["error"] = c.err.Error()
			entry["category"] = string(remote.CategoryOf(c.err))
			stageErr := newExternalError(c.item, "remote verification failed", c.err)
			entry["retryable"] = IsRetryable(stageErr)
			*errs = append(*errs, stageErr)
		default:
			consulted++
			sum += clamp01(c.verdict.Confidence)
			entry["valid"] = c.verdict.Valid
			entry["confidence"] = c.verdict.Confidence
			if !c.verdict.Valid {
				reason := c.verdict.Reason
				if reason == "" {
					reason = "rejected"
				}
				*warnings = append(*warnings, fmt.Sprintf("%s: %s: %s", itemPath(c.item), c.verifier, reason))
			}
		}
		details = append(details, entry)
	}
	if consulted == 0 {
		return details, 0, 0
	}
	return details, sum / float64(consulted), consulted
}
