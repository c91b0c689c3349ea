package audit

import "time"

// EventCategory classifies audit events for retention and routing.
type EventCategory string

const (
	// CategoryVerdict covers final outcomes of validations. These are the
	// records downstream storage decisions are traced back to.
	CategoryVerdict EventCategory = "verdict"

	// CategoryOperations covers batch bookkeeping and other routine activity.
	CategoryOperations EventCategory = "operations"
)

// Action names what happened.
type Action string

const (
	ActionValidationCompleted Action = "validation_completed"
	ActionValidationTimedOut  Action = "validation_timed_out"
	ActionValidationAborted   Action = "validation_aborted"
	ActionBatchCompleted      Action = "batch_completed"
)

var actionCategories = map[Action]EventCategory{
	ActionValidationCompleted: CategoryVerdict,
	ActionValidationTimedOut:  CategoryVerdict,
	ActionValidationAborted:   CategoryVerdict,
	ActionBatchCompleted:      CategoryOperations,
}

// Category returns the EventCategory for this action. Unknown actions default
// to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted by the engine to record a verdict. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category     EventCategory `json:"category"`
	Timestamp    time.Time     `json:"timestamp"`
	ValidationID string        `json:"validationId,omitempty"`
	BatchID      string        `json:"batchId,omitempty"`
	DataType     string        `json:"dataType,omitempty"`
	Action       Action        `json:"action"`
	Decision     string        `json:"decision,omitempty"`
	Score        float64       `json:"score"`
	Reason       string        `json:"reason,omitempty"`
}
