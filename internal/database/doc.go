// Package database provides access to the SQLite index database under a
// strict single-writer model.
//
// Exactly one process, the worker, ever opens the database file: the
// DirectDriver refuses to connect unless the worker environment marker is
// set. Everyone else uses the ProxyDriver, which forwards each operation
// to the worker over its socket as a job and polls for the result. The DB
// facade wraps whichever driver the config selects; no caller outside this
// package references a concrete driver type.
//
// On open the facade reconciles the live database against the platform
// schema definition, backing the file up first whenever it holds data.
//
// # Build Tags
//
// Two SQLite drivers are supported:
//
// CGO build (cgo_sqlite tag), using github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "cgo_sqlite,fts5"
//
// Pure Go build (default), using modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build
package database
