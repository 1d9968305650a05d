// Package main hosts the reeldex CLI entrypoint and command graph.
//
// The Cobra-based command tree drives pipeline runs, checkpoint inspection
// and repair, transcript search, preflight checks, and configuration
// scaffolding. It centralizes configuration resolution, run locking, and
// logger setup so subcommands can focus on user experience instead of
// wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
