// Package pipeline contains the step contract and the machinery that drives
// steps to completion: per-unit skip decisions against checkpoints and
// outputs on disk, self-healing of untracked outputs, drift reprocessing,
// and filesystem reconstruction of lost checkpoint documents.
package pipeline
