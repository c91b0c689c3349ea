package handler

import (
	"strings"

	"triplecheck/internal/validation/models"
	"triplecheck/pkg/platform/httputil"
)

const (
	maxItemsPerSubmission = 10000
	maxBatchSize          = 1000
	maxDataTypeLength     = 64
)

// ValidateRequest is the HTTP request body for POST /v1/validate.
type ValidateRequest struct {
	DataType string `json:"dataType"`
	Level    string `json:"level"`
	// Data is one object or an array of items.
	Data any `json:"data"`

	parsedLevel models.Level
}

// Validate validates and parses the request.
// Implements httputil.Validatable for httputil.DecodeAndPrepare.
func (r *ValidateRequest) Validate() error {
	if r == nil {
		return httputil.NewError(httputil.CodeBadRequest, "request body is required")
	}
	r.DataType = strings.TrimSpace(r.DataType)
	if r.DataType == "" {
		return httputil.NewError(httputil.CodeValidation, "dataType is required")
	}
	if len(r.DataType) > maxDataTypeLength {
		return httputil.NewError(httputil.CodeValidation, "dataType must be at most %d characters", maxDataTypeLength)
	}
	if r.Data == nil {
		return httputil.NewError(httputil.CodeValidation, "data is required")
	}
	if items, ok := r.Data.([]any); ok && len(items) > maxItemsPerSubmission {
		return httputil.NewError(httputil.CodeValidation, "data must hold at most %d items", maxItemsPerSubmission)
	}
	level, err := models.ParseLevel(r.Level)
	if err != nil {
		return httputil.NewError(httputil.CodeValidation, "%v", err)
	}
	r.parsedLevel = level
	return nil
}

// Submission converts the request into an engine submission. A JSON array
// becomes the item list; anything else is a single item.
func (r *ValidateRequest) Submission() models.Submission {
	items, ok := r.Data.([]any)
	if !ok {
		items = []any{r.Data}
	}
	return models.Submission{DataType: r.DataType, Level: r.parsedLevel, Items: items}
}

// BatchRequest is the HTTP request body for POST /v1/validate/batch.
type BatchRequest struct {
	Submissions []ValidateRequest `json:"submissions"`
}

func (r *BatchRequest) Validate() error {
	if r == nil {
		return httputil.NewError(httputil.CodeBadRequest, "request body is required")
	}
	if len(r.Submissions) > maxBatchSize {
		return httputil.NewError(httputil.CodeValidation, "batch must hold at most %d submissions", maxBatchSize)
	}
	for i := range r.Submissions {
		if err := r.Submissions[i].Validate(); err != nil {
			var msg string
			if he, ok := err.(*httputil.Error); ok {
				msg = he.Message
			} else {
				msg = err.Error()
			}
			return httputil.NewError(httputil.CodeValidation, "submissions[%d]: %s", i, msg)
		}
	}
	return nil
}

func (r *BatchRequest) submissions() []models.Submission {
	subs := make([]models.Submission, len(r.Submissions))
	for i := range r.Submissions {
		subs[i] = r.Submissions[i].Submission()
	}
	return subs
}
