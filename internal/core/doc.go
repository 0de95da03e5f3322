// Package core defines the task model shared by the orchestrator, the
// built-in task modules and the document patch pipeline.
//
// It is intentionally split into:
//   - Task modules (Task): opaque units of work producing metrics and keyed prose
//   - Outcomes (TaskResult): immutable records, one per task run
//   - ResultStore: the explicit value passed from the orchestrator to the patch stage
//
// There is no process-wide result registry; every pipeline run owns its store.
package core
