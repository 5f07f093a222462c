// Package llm provides the chat-completion client used for email
// classification, change-request extraction, and conflict review. All model
// calls run in JSON mode and every payload is schema-validated before the
// orchestrator sees it.
package llm
