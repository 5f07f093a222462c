// Package catalog resolves requested entry names against search candidates
// using normalized sequence similarity with conservative thresholds. Anything
// short of a clear single winner is a signal to escalate, never to guess.
package catalog
