// Package library persists texts, speech segments, sound effects, generation
// jobs, and assembly runs in SQLite.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-run recovery, and status transitions that
// mirror the public workflow enum. Audio payloads live in the store as blobs;
// runs reference the staged and published files produced from them.
//
// Runs are treated as transient workflow state rather than a long-term
// archive. Schema changes bump the version in schema.go; users clear the
// database to adopt the new schema.
//
// Treat this package as the single source of truth for run semantics; when you
// add new statuses or columns, update schema.sql and bump schemaVersion.
package library
