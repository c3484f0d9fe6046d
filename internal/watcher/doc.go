// Package watcher reports Go file changes under a project root. Events
// are debounced so one editor save produces one handler call, and new
// directories are watched as they appear. The handler typically marks
// the changed files dirty and kicks off an incremental index run.
package watcher
