// Package state persists per-series checkpoint documents that record which
// pipeline steps completed for which work units.
//
// Each series owns one JSON document under the configured state directory.
// Every mutation rewrites the document atomically (temp file plus rename) so
// an interrupted run never leaves a partially written checkpoint behind. The
// document also carries in-progress markers naming the temp files a crashed
// step may have left on disk; those markers are only cleared by a matching
// completion or an explicit cleanup.
package state
