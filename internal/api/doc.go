// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates internal library models into transport-friendly
// DTOs that the CLI and other consumers can render without coupling to
// internal types.
//
// # Key Types
//
// RunItem: transport representation of an assembly run with progress, artifact
// paths, and degradations.
//
// WorkflowStatus: daemon running state, queue stats, stage health, and last run.
//
// DaemonStatus: aggregated runtime information including dependencies.
//
// # Converters
//
// FromRun: library.Run -> RunItem with progress stage defaults and
// degradation decoding.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// StageHealthSlice: deterministic ordering of stage health map.
//
// # CLI Workflows
//
// IngestText, ExportText, and AlignText are the one-shot flows the CLI runs
// against the store directly, without the daemon.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers. Internal
// enums (library.Status, library.ProcessingLane) are exposed as lowercase
// strings. Timestamps use RFC3339 with milliseconds.
package api
