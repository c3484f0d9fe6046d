// Package types provides shared type definitions for the codescope platform.
//
// It holds the value types that cross package boundaries: database rows and
// introspected table schemas, the Job and RPC wire envelopes exchanged with
// the database worker process, worker identity records, and code symbols
// extracted by the indexer.
//
// # Database Types
//
// Row is a column-name-keyed result row. TableSchema describes the live
// structure of one table as reported by engine introspection:
//
//	schema, err := db.TableInfo(ctx, "symbols")
//	for _, col := range schema.Columns {
//	    fmt.Println(col.Name, col.Type, col.NotNull)
//	}
//
// # Jobs and the Wire Contract
//
// A Job is one database operation executed by the single-writer worker
// process. Jobs are immutable once submitted; only the worker writes
// Status, Result and Error. Request/Response are the JSON envelopes carried
// over the worker's local socket, one request per connection:
//
//	req := types.Request{Command: types.CmdSubmit, Operation: types.OpExecute, SQL: "..."}
//
// # Worker Identity
//
// WorkerInfo records the PID, socket and database path of a live worker.
// PIDPath and SocketPath derive the well-known file locations for a given
// database file, so any process can locate or validate an existing worker.
package types
