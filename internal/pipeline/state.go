package pipeline

// DocumentState is a step of the per-document state machine:
//
//	pending → fetching → resolving-customer → transforming → submitting
//	  → submitted | duplicate-retry (repeated) → submitted | abandoned | already-present
//	  → pdf-uploaded (optional) → cursor-advanced
//
// failed can be entered from any non-terminal step. cursor-advanced is reached
// on every path.
type DocumentState string

const (
	StatePending           DocumentState = "pending"
	StateFetching          DocumentState = "fetching"
	StateResolvingCustomer DocumentState = "resolving-customer"
	StateTransforming      DocumentState = "transforming"
	StateSubmitting        DocumentState = "submitting"
	StateDuplicateRetry    DocumentState = "duplicate-retry"
	StateSubmitted         DocumentState = "submitted"
	StateAbandoned         DocumentState = "abandoned"
	StateAlreadyPresent    DocumentState = "already-present"
	StatePDFUploaded       DocumentState = "pdf-uploaded"
	StateFailed            DocumentState = "failed"
	StateCursorAdvanced    DocumentState = "cursor-advanced"
)

// Booked reports whether the entry is known to exist in the target ledger.
func (s DocumentState) Booked() bool {
	switch s {
	case StateSubmitted, StatePDFUploaded, StateAlreadyPresent:
		return true
	default:
		return false
	}
}

// Stage names the step a failure happened in, for metrics.
func (s DocumentState) Stage() string {
	switch s {
	case StatePending, StateFetching:
		return "fetch"
	case StateResolvingCustomer:
		return "customer"
	case StateTransforming:
		return "transform"
	case StateSubmitting, StateDuplicateRetry, StateAbandoned, StateAlreadyPresent:
		return "submit"
	case StateSubmitted, StatePDFUploaded:
		return "attachment"
	default:
		return "unknown"
	}
}
