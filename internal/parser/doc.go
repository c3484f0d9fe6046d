// Package parser extracts symbols and metadata from Go source files using
// AST parsing.
//
// The parser leverages Go's standard library (go/parser, go/ast, go/token)
// to extract functions, methods, types, constants and variables from Go
// source code, together with signatures, doc comments and precise
// positions.
//
// # Basic Usage
//
//	p := parser.New()
//	result, err := p.Parse("/path/to/file.go", src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, symbol := range result.Symbols {
//	    fmt.Printf("Found %s: %s\n", symbol.Kind, symbol.Name)
//	}
//
// # Error Handling
//
// Syntax errors are recorded in Result.SyntaxErrors rather than failing
// the parse; the partial AST is still walked, so indexing continues even
// when some files are broken.
package parser
