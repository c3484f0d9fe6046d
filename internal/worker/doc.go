// Package worker manages the dedicated database worker processes: one
// process per database file, discovered and validated through PID files.
//
// The Manager side runs in caller processes. GetOrStartWorker reuses a
// live worker when its PID file checks out, cleans up stale files from
// crashed workers, and spawns a fresh process otherwise. The Registry
// tracks every worker this process acquired so shutdown stops them all.
//
// Run is the other side: the main loop of the worker process itself.
//
// Background is a smaller sibling of the Registry for in-process tasks
// such as the file watcher. It never spawns processes; it tracks named
// goroutines and cancels them together on shutdown.
package worker
