package parser

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer/stateful"

	"github.com/jaywalker76/LocustDB/errors"
)

var (
	lex = stateful.MustSimple([]stateful.Rule{
		{Name: `Ident`, Pattern: "((?i)[a-zA-Z_][a-zA-Z_0-9]*)|`[^`]*`"},
		{Name: `Number`, Pattern: `[-+]?\d*\.?\d+([eE][-+]?\d+)?`},
		{Name: `String`, Pattern: `'[^']*'|"[^"]*"`},
		{Name: `Punct`, Pattern: `<>|!=|<=|>=|[-+*/%,.()=<>;]`},
		{Name: `Whitespace`, Pattern: `\s+`},
	})
	sqlParser = participle.MustBuild(&AST{},
		participle.Lexer(lex),
		participle.CaseInsensitive("Ident"),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
		participle.Unquote("String"),
	)
)

// Parse an SQL statement.
func Parse(sql string) (*AST, error) {
	ast := &AST{}
	if err := sqlParser.ParseString("", sql, ast); err != nil {
		return nil, errors.NewInvalidStatementError(err.Error())
	}
	return ast, nil
}
