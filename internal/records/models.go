package records

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a record.
type Status string

const (
	StatusNew                   Status = "new"
	StatusClassified            Status = "classified"
	StatusInProgress            Status = "in_progress"
	StatusDataExtracted         Status = "data_extracted"
	StatusAwaitingClarification Status = "awaiting_clarification"
	StatusMatched               Status = "matched"
	StatusDontHelpResponding    Status = "dont_help_responding"
	StatusCompletedSuccess      Status = "completed_success"
	StatusCompletedDontHelp     Status = "completed_dont_help"
	StatusEscalated             Status = "escalated"
	StatusFailed                Status = "failed"
)

var allStatuses = []Status{
	StatusNew,
	StatusClassified,
	StatusInProgress,
	StatusDataExtracted,
	StatusAwaitingClarification,
	StatusMatched,
	StatusDontHelpResponding,
	StatusCompletedSuccess,
	StatusCompletedDontHelp,
	StatusEscalated,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompletedSuccess:  {},
	StatusCompletedDontHelp: {},
	StatusEscalated:         {},
	StatusFailed:            {},
}

// forwardTransitions is the directed status graph. Escalation is additionally
// reachable from every non-terminal state; see CanTransition.
var forwardTransitions = map[Status][]Status{
	StatusNew:                   {StatusClassified},
	StatusClassified:            {StatusInProgress, StatusDontHelpResponding},
	StatusInProgress:            {StatusDataExtracted, StatusFailed},
	StatusDataExtracted:         {StatusAwaitingClarification, StatusMatched, StatusFailed},
	StatusAwaitingClarification: {StatusDataExtracted},
	StatusMatched:               {StatusCompletedSuccess, StatusFailed},
	StatusDontHelpResponding:    {StatusCompletedDontHelp},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further automated transition occurs from a status.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// IsResumable reports whether the pipeline itself is responsible for moving
// the record forward. Awaiting-clarification records wait on the requester
// instead and are excluded.
func (s Status) IsResumable() bool {
	return !s.IsTerminal() && s != StatusAwaitingClarification
}

// CanTransition reports whether the status graph allows moving from one status
// to another. Escalation is allowed from any non-terminal state.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if to == StatusEscalated {
		return !from.IsTerminal()
	}
	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Label is the triage decision attached by the classifier.
type Label string

const (
	LabelHelp     Label = "help"
	LabelDontHelp Label = "dont_help"
	LabelEscalate Label = "escalate"
)

// ParseLabel converts a string into a known Label.
func ParseLabel(value string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case LabelHelp, LabelDontHelp, LabelEscalate:
		return normalized, true
	default:
		return "", false
	}
}

// ChangeRequest is the structured change extracted from a help email.
type ChangeRequest struct {
	TargetTitle  string `json:"target_title"`
	ChangeKind   string `json:"change_kind"`
	NewContent   string `json:"new_content"`
	Requester    string `json:"requester,omitempty"`
	Rationale    string `json:"rationale,omitempty"`
	Completeness int    `json:"completeness"`
}

// CatalogRef points at the catalog entry a change request resolved to.
type CatalogRef struct {
	Name string `json:"name"`
	Ref  string `json:"ref"`
}

// ClarificationExchange is one question/answer round with the requester.
type ClarificationExchange struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer,omitempty"`
	AskedAt    time.Time  `json:"asked_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// Record tracks one email through the processing lifecycle. Records are
// serialized one JSON object per line in the state file and never deleted.
type Record struct {
	EmailID        string `json:"email_id"`
	ConversationID string `json:"conversation_id,omitempty"`

	Sender     string    `json:"sender,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body,omitempty"`
	ReceivedAt time.Time `json:"received_at"`

	Label      Label  `json:"label,omitempty"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason,omitempty"`

	Extracted     *ChangeRequest    `json:"extracted_data,omitempty"`
	MatchedEntry  *CatalogRef       `json:"matched_entry,omitempty"`
	UpdatePayload map[string]string `json:"update_payload,omitempty"`

	Status                Status                  `json:"status"`
	CreatedAt             time.Time               `json:"created_at"`
	UpdatedAt             time.Time               `json:"updated_at"`
	AttemptCount          int                     `json:"attempt_count"`
	ClarificationAttempts int                     `json:"clarification_attempt_count"`
	ClarificationHistory  []ClarificationExchange `json:"clarification_history,omitempty"`
	LastError             string                  `json:"last_error,omitempty"`
}

// New creates a record for a freshly fetched email.
func New(emailID, conversationID, sender, subject, body string, receivedAt time.Time) *Record {
	now := time.Now().UTC()
	return &Record{
		EmailID:        emailID,
		ConversationID: conversationID,
		Sender:         sender,
		Subject:        subject,
		Body:           body,
		ReceivedAt:     receivedAt.UTC(),
		Status:         StatusNew,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Age returns how long ago the record was last mutated.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.UpdatedAt)
}

// SetFailed marks the record failed with the given error message.
func (r *Record) SetFailed(message string) {
	r.Status = StatusFailed
	r.LastError = strings.TrimSpace(message)
}

// SetEscalated marks the record escalated, keeping the reason for the audit trail.
func (r *Record) SetEscalated(reason string) {
	r.Status = StatusEscalated
	if reason = strings.TrimSpace(reason); reason != "" {
		r.Reason = reason
	}
}

// OpenClarification returns the most recent unanswered clarification exchange.
func (r *Record) OpenClarification() *ClarificationExchange {
	for i := len(r.ClarificationHistory) - 1; i >= 0; i-- {
		if r.ClarificationHistory[i].AnsweredAt == nil {
			return &r.ClarificationHistory[i]
		}
	}
	return nil
}
