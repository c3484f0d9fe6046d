package types

import (
	"errors"
	"go/token"
)

// SymbolKind represents the type of Go language symbol
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
)

// Position represents a location in source code
type Position struct {
	Line   int
	Column int
}

// Symbol represents a code symbol extracted from Go source via AST parsing
type Symbol struct {
	Name    string
	Kind    SymbolKind
	Package string

	Signature  string // Function signature or type definition
	DocComment string
	Receiver   string // For methods: receiver type name

	Start Position
	End   Position
}

// IsExported returns true if the symbol is visible outside its package
func (s *Symbol) IsExported() bool {
	return token.IsExported(s.Name)
}

// Validate performs basic validation of the symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}
	switch s.Kind {
	case KindFunction, KindMethod, KindStruct, KindInterface, KindType, KindConst, KindVar:
	default:
		return errors.New("invalid symbol kind")
	}
	if s.Package == "" {
		return errors.New("package name is required")
	}
	if s.Kind == KindMethod && s.Receiver == "" {
		return errors.New("methods must have a receiver type")
	}
	if s.Start.Line <= 0 || s.End.Line <= 0 || s.Start.Line > s.End.Line {
		return errors.New("invalid symbol position")
	}
	return nil
}
