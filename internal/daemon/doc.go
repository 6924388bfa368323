// Package daemon coordinates the long-running Soundloom process and its
// integration points.
//
// It wires configuration, the library store, the workflow manager, and the
// generation webhook processor into a single lifecycle with flock-based
// locking to prevent multiple instances. The daemon exposes run queue
// maintenance helpers for the IPC layer, serves the HTTP API (health,
// status, queue views, and the provider webhook receiver), and sweeps
// tracked generation jobs at startup so callbacks missed while down are
// reconciled.
//
// Keep orchestration logic here: individual workflow steps should live in
// their respective packages while the daemon focuses on startup, shutdown,
// and high level coordination.
package daemon
