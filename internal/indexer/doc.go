// Package indexer walks a Go project, parses every source file, and stores
// the extracted symbols and code chunks through the database facade.
//
// The pipeline has three stages:
//
//  1. Discovery: walk the project root, collecting .go files and applying
//     the vendor and _test.go filters.
//  2. Parse: a worker pool parses files concurrently. Files whose SHA-256
//     content hash matches the stored hash are skipped unless Force is set.
//  3. Store: results are written in batched transactions. Each file's
//     symbols and chunks are replaced wholesale, then the full-text symbol
//     index is rebuilt.
//
// Parse failures are recorded per file and never abort the run; only
// storage errors are fatal. A single Indexer allows one run at a time.
package indexer
