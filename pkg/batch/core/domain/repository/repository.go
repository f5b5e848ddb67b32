// Package repository declares the persistence contract for batch execution metadata.
//
// Lookups return the package's NotFound sentinels (possibly wrapped) when nothing matches;
// Update* calls on an unknown ID do the same. Updates are last-write-wins by ID.
package repository

// JobRepository records job instances, job executions and their step executions.
// The COB launcher and operator both depend on it; inmemory and sql implement it.
type JobRepository interface {
	JobInstance
	JobExecution
	StepExecution

	Close() error
}
