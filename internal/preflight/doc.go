// Package preflight provides readiness checks for external services
// and filesystem paths that soundloom depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll once at startup and refuses to serve when a
//     check fails, so broken paths or a bad provider token surface before
//     any run is claimed.
//   - The CLI status command uses individual check functions
//     (CheckGeneration, CheckDirectoryAccess) to display service health.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
