package stages

import (
	"errors"
	"fmt"

	"triplecheck/internal/verification/remote"
)

// ErrorKind classifies the failures a stage records in its StepResult.
type ErrorKind string

const (
	// KindSchema covers missing or empty required fields and non-object items.
	KindSchema ErrorKind = "schema"

	// KindConsistency covers malformed identifiers and implausible numeric ratios.
	KindConsistency ErrorKind = "consistency"

	// KindExternal covers missing credentials, implausible content and remote
	// verification failures (network, timeout, bad payload).
	KindExternal ErrorKind = "external"
)

// noItem marks an error that does not belong to a single item.
const noItem = -1

// StageError is recorded, never raised: stages convert it to a message in
// StepResult.Errors.
type StageError struct {
	Kind       ErrorKind
	Item       int
	Message    string
	Underlying error
}

func (e *StageError) Error() string {
	msg := e.Message
	if e.Underlying != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	if e.Item == noItem {
		return msg
	}
	return fmt.Sprintf("%s: %s", itemPath(e.Item), msg)
}

func (e *StageError) Unwrap() error {
	return e.Underlying
}

func newSchemaError(item int, format string, args ...any) *StageError {
	return &StageError{Kind: KindSchema, Item: item, Message: fmt.Sprintf(format, args...)}
}

func newConsistencyError(item int, format string, args ...any) *StageError {
	return &StageError{Kind: KindConsistency, Item: item, Message: fmt.Sprintf(format, args...)}
}

func newExternalError(item int, message string, underlying error) *StageError {
	return &StageError{Kind: KindExternal, Item: item, Message: message, Underlying: underlying}
}

// KindOf extracts the kind from an error, or "" when err is not a StageError.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func itemPath(i int) string {
	return fmt.Sprintf("item[%d]", i)
}

func messages(errs []*StageError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

// IsRetryable reports whether err is an external failure that a later attempt
// could plausibly clear: timeouts, outages and throttling.
func IsRetryable(err error) bool {
	if KindOf(err) != KindExternal {
		return false
	}
	switch remote.CategoryOf(err) {
	case remote.CategoryTimeout, remote.CategoryOutage, remote.CategoryRateLimited, remote.CategoryCircuitOpen:
		return true
	default:
		return false
	}
}
