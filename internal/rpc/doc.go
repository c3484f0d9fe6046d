// Package rpc implements the wire protocol between proxy drivers and the
// database worker process: JSON requests and responses over a Unix domain
// socket, one request per connection.
//
// The Server side runs inside the worker. It turns submit requests into
// jobs, executes them in accept order on a single runner goroutine, and
// answers status polls until the terminal state has been observed. The
// Client side is used by proxy drivers and the lifecycle manager.
package rpc
