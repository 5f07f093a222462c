// Package notifications sends push notifications for run lifecycle events,
// mass-email aborts, escalations, and errors via ntfy. Every event class can
// be toggled off in configuration; without a topic the service is a noop.
package notifications
