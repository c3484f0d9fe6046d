package parser

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"github.com/codescope/codescope/pkg/types"
)

// Result is the outcome of parsing one source file.
type Result struct {
	PackageName string
	Imports     []string
	Symbols     []types.Symbol
	// SyntaxErrors records parse problems; a partial AST is still walked
	// so a file with one bad function keeps contributing the rest.
	SyntaxErrors []string
}

// Parser handles AST-based parsing of Go source files.
type Parser struct {
	fset *token.FileSet
}

// New creates a new Parser instance.
func New() *Parser {
	return &Parser{fset: token.NewFileSet()}
}

// Parse parses Go source and extracts package name, imports and symbols.
func (p *Parser) Parse(filePath string, src []byte) (*Result, error) {
	result := &Result{}

	file, err := parser.ParseFile(p.fset, filePath, src, parser.ParseComments)
	if err != nil {
		// Syntax errors are non-fatal; the parser usually returns a
		// partial AST worth walking.
		result.SyntaxErrors = append(result.SyntaxErrors, err.Error())
	}
	if file == nil {
		return result, nil
	}

	if file.Name != nil {
		result.PackageName = file.Name.Name
	}
	for _, imp := range file.Imports {
		result.Imports = append(result.Imports, strings.Trim(imp.Path.Value, `"`))
	}

	e := &extractor{fset: p.fset, packageName: result.PackageName}
	ast.Inspect(file, e.visit)
	result.Symbols = e.symbols
	return result, nil
}

// extractor walks the AST collecting symbols.
type extractor struct {
	fset        *token.FileSet
	packageName string
	symbols     []types.Symbol
}

func (e *extractor) visit(node ast.Node) bool {
	if node == nil {
		return false
	}
	switch n := node.(type) {
	case *ast.FuncDecl:
		e.extractFunction(n)
	case *ast.GenDecl:
		for _, spec := range n.Specs {
			switch s := spec.(type) {
			case *ast.TypeSpec:
				e.extractType(s, n.Doc)
			case *ast.ValueSpec:
				e.extractValue(s, n.Doc, n.Tok)
			}
		}
	}
	return true
}

func (e *extractor) extractFunction(fn *ast.FuncDecl) {
	sym := types.Symbol{
		Name:       fn.Name.Name,
		Kind:       types.KindFunction,
		Package:    e.packageName,
		DocComment: docText(fn.Doc),
		Signature:  e.functionSignature(fn),
		Start:      e.position(fn.Pos()),
		End:        e.position(fn.End()),
	}
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Receiver = receiverName(fn.Recv.List[0].Type)
	}
	e.symbols = append(e.symbols, sym)
}

func (e *extractor) extractType(spec *ast.TypeSpec, doc *ast.CommentGroup) {
	if spec.Doc != nil {
		doc = spec.Doc
	}
	sym := types.Symbol{
		Name:       spec.Name.Name,
		Package:    e.packageName,
		DocComment: docText(doc),
		Start:      e.position(spec.Pos()),
		End:        e.position(spec.End()),
	}
	switch t := spec.Type.(type) {
	case *ast.StructType:
		sym.Kind = types.KindStruct
		sym.Signature = fmt.Sprintf("type %s struct { ... } // %d fields", spec.Name.Name, fieldCount(t.Fields))
	case *ast.InterfaceType:
		sym.Kind = types.KindInterface
		sym.Signature = fmt.Sprintf("type %s interface { ... } // %d methods", spec.Name.Name, fieldCount(t.Methods))
	default:
		sym.Kind = types.KindType
		sym.Signature = fmt.Sprintf("type %s %s", spec.Name.Name, exprString(spec.Type))
	}
	e.symbols = append(e.symbols, sym)
}

func (e *extractor) extractValue(spec *ast.ValueSpec, doc *ast.CommentGroup, tok token.Token) {
	kind := types.KindVar
	if tok == token.CONST {
		kind = types.KindConst
	}
	for _, name := range spec.Names {
		if name.Name == "_" {
			continue
		}
		sym := types.Symbol{
			Name:       name.Name,
			Kind:       kind,
			Package:    e.packageName,
			DocComment: docText(doc),
			Start:      e.position(spec.Pos()),
			End:        e.position(spec.End()),
		}
		switch {
		case spec.Type != nil:
			sym.Signature = fmt.Sprintf("%s %s", name.Name, exprString(spec.Type))
		case len(spec.Values) > 0:
			sym.Signature = name.Name + " = ..."
		default:
			sym.Signature = name.Name
		}
		e.symbols = append(e.symbols, sym)
	}
}

func (e *extractor) functionSignature(fn *ast.FuncDecl) string {
	var sig strings.Builder
	sig.WriteString("func ")
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprString(fn.Recv.List[0].Type))
		sig.WriteString(") ")
	}
	sig.WriteString(fn.Name.Name)
	sig.WriteString("(")
	if fn.Type.Params != nil {
		sig.WriteString(fieldListString(fn.Type.Params))
	}
	sig.WriteString(")")
	if fn.Type.Results != nil {
		results := fieldListString(fn.Type.Results)
		if results != "" {
			if fn.Type.Results.NumFields() > 1 {
				sig.WriteString(" (" + results + ")")
			} else {
				sig.WriteString(" " + results)
			}
		}
	}
	return sig.String()
}

func (e *extractor) position(pos token.Pos) types.Position {
	p := e.fset.Position(pos)
	return types.Position{Line: p.Line, Column: p.Column}
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr: // generic receiver
		return receiverName(t.X)
	case *ast.IndexListExpr:
		return receiverName(t.X)
	}
	return ""
}

func fieldCount(fields *ast.FieldList) int {
	if fields == nil {
		return 0
	}
	return fields.NumFields()
}

func fieldListString(fieldList *ast.FieldList) string {
	if fieldList == nil || len(fieldList.List) == 0 {
		return ""
	}
	var parts []string
	for _, field := range fieldList.List {
		typeStr := exprString(field.Type)
		if len(field.Names) > 0 {
			for _, name := range field.Names {
				parts = append(parts, fmt.Sprintf("%s %s", name.Name, typeStr))
			}
		} else {
			parts = append(parts, typeStr)
		}
	}
	return strings.Join(parts, ", ")
}

func exprString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprString(t.Key), exprString(t.Value))
	case *ast.ChanType:
		return "chan " + exprString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprString(t.Elt)
	default:
		return "..."
	}
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}
