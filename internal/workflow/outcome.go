package workflow

// OutcomeKind is the explicit result of processing one record through one
// stage. Stages return a tagged outcome instead of encoding the result in
// free-form strings so routing decisions stay exhaustive.
type OutcomeKind int

const (
	// OutcomeAdvanced means the record moved to its next pipeline status.
	OutcomeAdvanced OutcomeKind = iota
	// OutcomeCompleted means the record reached a successful terminal status.
	OutcomeCompleted
	// OutcomeNeedsClarification means the record is now waiting on the
	// requester.
	OutcomeNeedsClarification
	// OutcomeEscalated means the record was handed to a human.
	OutcomeEscalated
	// OutcomeFailed means the record reached the failed terminal status.
	OutcomeFailed
	// OutcomeSkipped means the stage left the record untouched this pass.
	OutcomeSkipped
)

// Outcome pairs the outcome kind with the reason that drove it.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeCompleted:
		return "completed"
	case OutcomeNeedsClarification:
		return "needs_clarification"
	case OutcomeEscalated:
		return "escalated"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func advanced() Outcome                  { return Outcome{Kind: OutcomeAdvanced} }
func completed(reason string) Outcome    { return Outcome{Kind: OutcomeCompleted, Reason: reason} }
func clarification(reason string) Outcome {
	return Outcome{Kind: OutcomeNeedsClarification, Reason: reason}
}
func escalated(reason string) Outcome { return Outcome{Kind: OutcomeEscalated, Reason: reason} }
func failed(reason string) Outcome    { return Outcome{Kind: OutcomeFailed, Reason: reason} }
func skipped(reason string) Outcome   { return Outcome{Kind: OutcomeSkipped, Reason: reason} }
