// Package workflow advances assembly runs through the configured processing
// stages.
//
// The Manager polls the run queue, reclaims stale work via heartbeats, and
// feeds runs into registered stage handlers (produce, mix) while capturing
// progress and failure metadata. It also aggregates queue stats, calls stage
// health checks, and emits queue-level notifications when processing starts
// or completes.
//
// The workflow runs two independent lanes: production (combining speech,
// dispatching and awaiting generation jobs) and mixdown (cue resolution,
// layered rendering, publishing). Each lane polls for runs matching its
// statuses and processes them independently, so text B can produce while
// text A mixes. Within a single run the stages stay strictly ordered by
// status.
//
// Add new lifecycle stages by extending StageSet, updating the run status
// enums, and teaching the manager how to transition runs; this package is the
// authoritative home for that coordination logic.
package workflow
