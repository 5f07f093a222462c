package llm

import (
	"context"
	"fmt"
	"strings"

	"tend/internal/services"
)

// Classification is the model's verdict on how an incoming email should be
// handled.
type Classification struct {
	Label      string `json:"label"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// Extraction carries the structured change request recovered from an email
// body, along with the model's estimate of how complete the request is.
type Extraction struct {
	TargetTitle   string   `json:"target_title"`
	ChangeKind    string   `json:"change_kind"`
	NewContent    string   `json:"new_content"`
	Requester     string   `json:"requester"`
	Rationale     string   `json:"rationale"`
	Completeness  int      `json:"completeness"`
	MissingFields []string `json:"missing_fields"`
}

// ConflictReport describes contradictions the model found between the
// requested change and the email's own content.
type ConflictReport struct {
	HasConflicts  bool     `json:"has_conflicts"`
	SafeToProceed bool     `json:"safe_to_proceed"`
	Severity      string   `json:"severity"`
	Details       []string `json:"details"`
}

const classifySystemPrompt = `You triage emails sent to a service catalog maintenance mailbox.
Classify each email into exactly one label:
- "help": a concrete request to add, update, or remove service catalog content.
- "dont_help": spam, newsletters, out-of-office replies, or anything unrelated to catalog content.
- "escalate": requests that need a human decision (access grants, policy changes, complaints, anything ambiguous).
Respond with JSON only: {"label": ..., "confidence": <0-100 integer>, "reason": "<one sentence>"}.`

const extractSystemPrompt = `You extract structured change requests from service catalog emails.
Identify the catalog entry the sender wants changed and what the change is.
Respond with JSON only:
{"target_title": "<entry name>", "change_kind": "<add|update|remove|other>", "new_content": "<requested content>", "requester": "<name or address>", "rationale": "<why>", "completeness": <0-100 integer>, "missing_fields": ["<field>", ...]}.
Score completeness by how actionable the request is without further questions. List any missing_fields that block the change.`

const conflictSystemPrompt = `You review an extracted service catalog change request against the email it came from.
Report contradictions: the email asking for incompatible things, the extraction not matching the email, or instructions that cancel each other out.
Respond with JSON only: {"has_conflicts": <bool>, "safe_to_proceed": <bool>, "severity": "<none|low|medium|high>", "details": ["<finding>", ...]}.`

// Classify labels an incoming email and scores the model's confidence.
func (c *Client) Classify(ctx context.Context, sender, subject, body string) (Classification, error) {
	prompt := emailPrompt(sender, subject, body)
	content, err := c.CompleteJSON(ctx, classifySystemPrompt, prompt)
	if err != nil {
		return Classification{}, err
	}
	if err := validatePayload(classificationSchema, content); err != nil {
		return Classification{}, services.Wrap(services.ErrParse, "llm", "classify", "invalid payload", err)
	}
	var result Classification
	if err := DecodeJSON(content, &result); err != nil {
		return Classification{}, services.Wrap(services.ErrParse, "llm", "classify", "decode payload", err)
	}
	result.Label = strings.ToLower(strings.TrimSpace(result.Label))
	return result, nil
}

// Extract recovers the structured change request from an email.
func (c *Client) Extract(ctx context.Context, sender, subject, body string) (Extraction, error) {
	prompt := emailPrompt(sender, subject, body)
	content, err := c.CompleteJSON(ctx, extractSystemPrompt, prompt)
	if err != nil {
		return Extraction{}, err
	}
	if err := validatePayload(extractionSchema, content); err != nil {
		return Extraction{}, services.Wrap(services.ErrParse, "llm", "extract", "invalid payload", err)
	}
	var result Extraction
	if err := DecodeJSON(content, &result); err != nil {
		return Extraction{}, services.Wrap(services.ErrParse, "llm", "extract", "decode payload", err)
	}
	return result, nil
}

// DetectConflicts checks the extracted request against the source email for
// contradictions that make the change unsafe to apply automatically.
func (c *Client) DetectConflicts(ctx context.Context, extraction Extraction, body string) (ConflictReport, error) {
	prompt := fmt.Sprintf("Extracted request:\nTarget: %s\nChange: %s\nContent: %s\n\nOriginal email body:\n%s",
		extraction.TargetTitle, extraction.ChangeKind, extraction.NewContent, body)
	content, err := c.CompleteJSON(ctx, conflictSystemPrompt, prompt)
	if err != nil {
		return ConflictReport{}, err
	}
	if err := validatePayload(conflictSchema, content); err != nil {
		return ConflictReport{}, services.Wrap(services.ErrParse, "llm", "conflicts", "invalid payload", err)
	}
	var result ConflictReport
	if err := DecodeJSON(content, &result); err != nil {
		return ConflictReport{}, services.Wrap(services.ErrParse, "llm", "conflicts", "decode payload", err)
	}
	return result, nil
}

func emailPrompt(sender, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", sender)
	fmt.Fprintf(&b, "Subject: %s\n\n", subject)
	b.WriteString(body)
	return b.String()
}
