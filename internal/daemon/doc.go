// Package daemon wires the record store and workflow manager into a
// long-running background process guarded by a single-instance lock file.
package daemon
