// Package indexer implements the index pipeline step. It folds each
// episode's transcript into the shared full-text search catalog and
// writes a per-episode summary document that records what was indexed.
//
// The summary under index/ is the step's resumable artifact: reruns skip
// episodes whose summary already exists, and a rerun after a wiped state
// directory rebuilds both the summaries and the catalog rows. Scene
// documents are folded in when present but are not required, so series
// that skip scene detection still index cleanly.
package indexer
