package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/pkg/types"
)

const sampleSource = `package sample

import (
	"fmt"
	"strings"
)

// MaxRetries bounds retry attempts.
const MaxRetries = 3

var defaultName = "anonymous"

// User represents an account holder.
type User struct {
	ID   int
	Name string
}

// Storer persists users.
type Storer interface {
	Store(u *User) error
	Load(id int) (*User, error)
}

// Name returns the display name.
func (u *User) Name2() string {
	return strings.TrimSpace(u.Name)
}

// NewUser creates a user.
func NewUser(id int, name string) (*User, error) {
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	return &User{ID: id, Name: name}, nil
}
`

func findSymbol(symbols []types.Symbol, name string) (types.Symbol, bool) {
	for _, s := range symbols {
		if s.Name == name {
			return s, true
		}
	}
	return types.Symbol{}, false
}

func TestParseExtractsSymbols(t *testing.T) {
	p := New()
	result, err := p.Parse("sample.go", []byte(sampleSource))
	require.NoError(t, err)
	assert.Empty(t, result.SyntaxErrors)
	assert.Equal(t, "sample", result.PackageName)
	assert.ElementsMatch(t, []string{"fmt", "strings"}, result.Imports)

	fn, ok := findSymbol(result.Symbols, "NewUser")
	require.True(t, ok)
	assert.Equal(t, types.KindFunction, fn.Kind)
	assert.Equal(t, "func NewUser(id int, name string) (*User, error)", fn.Signature)
	assert.Equal(t, "NewUser creates a user.", fn.DocComment)
	assert.True(t, fn.IsExported())
	assert.Greater(t, fn.Start.Line, 0)
	assert.GreaterOrEqual(t, fn.End.Line, fn.Start.Line)

	method, ok := findSymbol(result.Symbols, "Name2")
	require.True(t, ok)
	assert.Equal(t, types.KindMethod, method.Kind)
	assert.Equal(t, "User", method.Receiver)

	st, ok := findSymbol(result.Symbols, "User")
	require.True(t, ok)
	assert.Equal(t, types.KindStruct, st.Kind)
	assert.Contains(t, st.Signature, "2 fields")

	iface, ok := findSymbol(result.Symbols, "Storer")
	require.True(t, ok)
	assert.Equal(t, types.KindInterface, iface.Kind)
	assert.Contains(t, iface.Signature, "2 methods")

	c, ok := findSymbol(result.Symbols, "MaxRetries")
	require.True(t, ok)
	assert.Equal(t, types.KindConst, c.Kind)

	v, ok := findSymbol(result.Symbols, "defaultName")
	require.True(t, ok)
	assert.Equal(t, types.KindVar, v.Kind)
	assert.False(t, v.IsExported())
}

func TestParseTypeAlias(t *testing.T) {
	src := `package sample

type ID int64
type Handler func(...)
`
	p := New()
	result, err := p.Parse("alias.go", []byte(src))
	require.NoError(t, err)

	alias, ok := findSymbol(result.Symbols, "ID")
	require.True(t, ok)
	assert.Equal(t, types.KindType, alias.Kind)
	assert.Equal(t, "type ID int64", alias.Signature)
}

func TestParseSyntaxErrorKeepsPartialResult(t *testing.T) {
	src := `package broken

func Good() int { return 1 }

func Bad( {
`
	p := New()
	result, err := p.Parse("broken.go", []byte(src))
	require.NoError(t, err)
	assert.NotEmpty(t, result.SyntaxErrors)
	assert.Equal(t, "broken", result.PackageName)

	_, ok := findSymbol(result.Symbols, "Good")
	assert.True(t, ok, "valid symbols survive a syntax error elsewhere")
}

func TestParseEmptySource(t *testing.T) {
	p := New()
	result, err := p.Parse("empty.go", []byte(""))
	require.NoError(t, err)
	assert.NotEmpty(t, result.SyntaxErrors)
	assert.Empty(t, result.Symbols)
}

func TestSymbolValidate(t *testing.T) {
	valid := types.Symbol{
		Name: "Thing", Kind: types.KindStruct, Package: "sample",
		Start: types.Position{Line: 1}, End: types.Position{Line: 3},
	}
	assert.NoError(t, valid.Validate())

	missingReceiver := valid
	missingReceiver.Kind = types.KindMethod
	assert.Error(t, missingReceiver.Validate())

	badKind := valid
	badKind.Kind = "mystery"
	assert.Error(t, badKind.Validate())
}
