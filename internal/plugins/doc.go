// Package plugins manages curator plugins: directories with an optional package.json, either registered from
// a local path or cloned from a git repository.
//
// All external tools (git, npm) go through an [Executor], so commands are bounded by a timeout and can be
// replaced in tests. [Manager.Migrate] is a best-effort step; callers log its failure and keep the result of
// the primary operation.
package plugins
