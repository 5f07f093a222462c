// Package search provides the client for the service catalog backend: full
// text candidate search plus the entry update call the workflow applies once
// a match is confirmed.
package search
