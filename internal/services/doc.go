// Package services holds the shared plumbing for external collaborator calls:
// the sentinel error taxonomy, failure-kind classification, the retry policy,
// and context carriers for structured logging.
package services
