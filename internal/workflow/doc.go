// Package workflow orchestrates the email triage pipeline. A single manager
// polls the mailbox, classifies each email, extracts and validates the change
// request, matches it against the service catalog, and applies the update.
// Every status transition is persisted before the next collaborator call so a
// crash resumes cleanly from the record store.
package workflow
