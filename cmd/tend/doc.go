// Command tend is the operator CLI: inspect the record store, run one-off
// triage passes, and manage configuration.
package main
