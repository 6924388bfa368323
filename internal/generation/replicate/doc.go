// Package replicate provides a predictions API client for asynchronous audio
// generation.
//
// This package is used by:
//   - Generation dispatcher: create background-music and sound-effect jobs
//   - Recovery sweep: poll predictions whose webhook never arrived
//   - Webhook processor: download finished artifacts
//
// # Prediction Lifecycle
//
// CreatePrediction returns as soon as the provider accepts the job; the model
// runs remotely and the provider calls back on the configured webhook URL with
// the same Prediction shape this package decodes. GetPrediction fetches the
// current record for a prediction id so stuck jobs can be reconciled without
// a callback.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CreatePrediction: dispatch a generation job, returns the prediction id.
// Client.GetPrediction: fetch current provider state for a prediction.
// Client.Download: fetch a finished artifact from its delivery URL.
//
// # Retry Behaviour
//
// API calls retry on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff (base 1s, max 10s, up to 5 attempts by default),
// honoring Retry-After when present. Context cancellation aborts retries
// immediately. Artifact downloads are single attempts under their own longer
// timeout; the recovery sweep is the second chance.
package replicate
