// Package generation coordinates asynchronous music and sound-effect
// creation against a remote predictions provider.
//
// Three pieces cooperate around the job key (job_type, job_id):
//
//   - Dispatcher creates remote predictions and records them in the store.
//     The job id is the effect id for sound effects and the text id for
//     background music, so re-dispatch replaces the tracked job in place.
//   - Registry holds keyed completion events. Pipeline workers register
//     interest before the dispatch call goes out, then block on the handle;
//     a callback landing between dispatch and wait is never lost.
//   - Processor applies provider callbacks: download the artifact, run
//     post-processing, store the blob, update the job record, and signal the
//     registry last so a signalled waiter always finds the artifact persisted.
//
// A timed-out wait is not a failure. The remote job keeps running; when its
// callback eventually arrives the Processor stores the artifact as usual and
// the signal lands on no waiter, which is a recorded no-op. The recovery
// sweep covers the opposite gap: callbacks that never arrived for jobs the
// provider already finished.
package generation
