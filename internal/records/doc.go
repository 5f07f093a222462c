// Package records defines the durable unit of work (one Record per email) and
// the crash-tolerant line-delimited store that tracks each record through the
// processing lifecycle. Completed and escalated records are kept forever as an
// audit trail.
package records
