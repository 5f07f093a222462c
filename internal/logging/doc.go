// Package logging wires log/slog with the console and JSON handlers used by
// the daemon and CLI, plus typed attribute helpers and context-derived fields
// so every record mutation can be traced to a run, stage, and email.
package logging
