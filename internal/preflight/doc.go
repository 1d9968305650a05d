// Package preflight provides readiness checks for the filesystem paths
// and external binaries a pipeline run depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before executing any step. If a check
//     fails, the run aborts instead of discovering the problem hours in.
//   - The CLI "reeldex preflight" command prints every check so operators
//     can diagnose a host before scheduling work.
//
// Directory checks use access(2) rather than a trial write so they never
// disturb the tree they inspect.
package preflight
