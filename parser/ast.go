// Package parser contains the SQL surface parser.
//
//nolint:govet
package parser

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/jaywalker76/LocustDB/common"
	"github.com/jaywalker76/LocustDB/errors"
)

// AST is the root of a parsed statement.
type AST struct {
	Pos lexer.Position

	Select *SelectStatement `  "SELECT" @@`
	Create *CreateTable     `| "CREATE" "TABLE" @@`
}

type CreateTable struct {
	Name    string       `@Ident`
	Columns []*ColumnDef `"(" @@ ("," @@)* ")"`
}

type ColumnDef struct {
	Name string      `@Ident`
	Type common.Type `@("BIGINT" | "DOUBLE" | "VARCHAR" | "BOOLEAN")` // conversion by common.Type.Capture()
}

// ToTableInfo converts the parsed definition to schema metadata.
func (c *CreateTable) ToTableInfo() (*common.TableInfo, error) {
	info := &common.TableInfo{Name: strings.ToLower(c.Name)}
	seen := map[string]struct{}{}
	for _, def := range c.Columns {
		name := strings.ToLower(def.Name)
		if _, ok := seen[name]; ok {
			return nil, errors.NewInvalidStatementError("duplicate column " + name)
		}
		seen[name] = struct{}{}
		info.ColumnNames = append(info.ColumnNames, name)
		info.ColumnTypes = append(info.ColumnTypes, common.ColumnTypesByType[def.Type])
	}
	return info, nil
}

type SelectStatement struct {
	Star    bool          `( @"*"`
	Exprs   []*SelectExpr `| @@ ("," @@)* )`
	From    string        `"FROM" @Ident`
	Where   *Expression   `("WHERE" @@)?`
	GroupBy []string      `("GROUP" "BY" @Ident ("," @Ident)*)?`
	OrderBy []*OrderTerm  `("ORDER" "BY" @@ ("," @@)*)?`
	Limit   *int64        `("LIMIT" @Number)?`
}

type SelectExpr struct {
	Agg    *AggExpr `  @@`
	Column string   `| @Ident`
}

type AggExpr struct {
	Func   string `@("SUM" | "COUNT" | "MIN" | "MAX" | "AVG")`
	Star   bool   `"(" ( @"*"`
	Column string `    | @Ident ) ")"`
}

type OrderTerm struct {
	Column string `@Ident`
	Desc   bool   `( @"DESC" | "ASC" )?`
}

// Expression is a predicate with standard precedence: OR binds loosest,
// then AND, then NOT, then comparisons and parenthesized groups.
type Expression struct {
	Or []*AndExpression `@@ ("OR" @@)*`
}

type AndExpression struct {
	And []*NotExpression `@@ ("AND" @@)*`
}

type NotExpression struct {
	Not     *NotExpression    `  "NOT" @@`
	Primary *PrimaryPredicate `| @@`
}

type PrimaryPredicate struct {
	Paren      *Expression `  "(" @@ ")"`
	Comparison *Comparison `| @@`
}

type Comparison struct {
	Column string   `@Ident`
	Op     string   `( @("<>" | "!=" | "<=" | ">=" | "=" | "<" | ">")`
	Value  *Value   `  @@`
	In     []*Value `| "IN" "(" @@ ("," @@)* ")" )`
}

type Boolean bool

func (b *Boolean) Capture(values []string) error {
	*b = Boolean(strings.EqualFold(values[0], "TRUE"))
	return nil
}

type Value struct {
	Null   bool     `  @"NULL"`
	Bool   *Boolean `| @("TRUE" | "FALSE")`
	Number *string  `| @Number`
	String *string  `| @String`
}

func (v *Value) ToLiteral() (common.Literal, error) {
	switch {
	case v.Null:
		return common.NullLiteral(), nil
	case v.Bool != nil:
		return common.BoolLiteral(bool(*v.Bool)), nil
	case v.Number != nil:
		if i, err := strconv.ParseInt(*v.Number, 10, 64); err == nil {
			return common.Int64Literal(i), nil
		}
		f, err := strconv.ParseFloat(*v.Number, 64)
		if err != nil {
			return common.Literal{}, errors.NewInvalidStatementError("invalid number " + *v.Number)
		}
		return common.FloatLiteral(f), nil
	case v.String != nil:
		return common.StringLiteral(*v.String), nil
	}
	return common.Literal{}, errors.NewInvalidStatementError("empty literal")
}

func (e *Expression) ToPredicate() (*common.Predicate, error) {
	children := make([]*common.Predicate, len(e.Or))
	for i, c := range e.Or {
		p, err := c.toPredicate()
		if err != nil {
			return nil, err
		}
		children[i] = p
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return common.NewOr(children...), nil
}

func (e *AndExpression) toPredicate() (*common.Predicate, error) {
	children := make([]*common.Predicate, len(e.And))
	for i, c := range e.And {
		p, err := c.toPredicate()
		if err != nil {
			return nil, err
		}
		children[i] = p
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return common.NewAnd(children...), nil
}

func (e *NotExpression) toPredicate() (*common.Predicate, error) {
	if e.Not != nil {
		child, err := e.Not.toPredicate()
		if err != nil {
			return nil, err
		}
		return common.NewNot(child), nil
	}
	if e.Primary.Paren != nil {
		return e.Primary.Paren.ToPredicate()
	}
	return e.Primary.Comparison.toPredicate()
}

func (c *Comparison) toPredicate() (*common.Predicate, error) {
	colName := strings.ToLower(c.Column)
	if c.Value == nil {
		lits := make([]common.Literal, len(c.In))
		for i, v := range c.In {
			lit, err := v.ToLiteral()
			if err != nil {
				return nil, err
			}
			lits[i] = lit
		}
		return common.NewIn(colName, lits), nil
	}
	var op common.PredicateOp
	switch c.Op {
	case "=":
		op = common.OpEq
	case "<>", "!=":
		op = common.OpNe
	case "<":
		op = common.OpLt
	case "<=":
		op = common.OpLe
	case ">":
		op = common.OpGt
	case ">=":
		op = common.OpGe
	default:
		return nil, errors.NewInvalidStatementError("unknown operator " + c.Op)
	}
	lit, err := c.Value.ToLiteral()
	if err != nil {
		return nil, err
	}
	return common.NewComparison(op, colName, lit), nil
}

// ToQueryDesc converts the parsed select to the abstract query description
// the planner consumes.
func (s *SelectStatement) ToQueryDesc() (*common.QueryDesc, error) {
	desc := &common.QueryDesc{
		TableName: strings.ToLower(s.From),
		Star:      s.Star,
		Limit:     -1,
	}
	for _, expr := range s.Exprs {
		if expr.Agg != nil {
			agg := common.AggDesc{}
			switch strings.ToUpper(expr.Agg.Func) {
			case "SUM":
				agg.Func = common.AggSum
			case "COUNT":
				agg.Func = common.AggCount
			case "MIN":
				agg.Func = common.AggMin
			case "MAX":
				agg.Func = common.AggMax
			case "AVG":
				agg.Func = common.AggAvg
			}
			if expr.Agg.Star {
				if agg.Func != common.AggCount {
					return nil, errors.NewInvalidStatementError(strings.ToLower(expr.Agg.Func) + "(*) is not valid")
				}
			} else {
				agg.ColName = strings.ToLower(expr.Agg.Column)
			}
			desc.Aggregates = append(desc.Aggregates, agg)
			continue
		}
		desc.SelectCols = append(desc.SelectCols, strings.ToLower(expr.Column))
	}
	if s.Where != nil {
		pred, err := s.Where.ToPredicate()
		if err != nil {
			return nil, err
		}
		desc.Filter = pred
	}
	for _, g := range s.GroupBy {
		desc.GroupBy = append(desc.GroupBy, strings.ToLower(g))
	}
	for _, o := range s.OrderBy {
		desc.OrderBy = append(desc.OrderBy, common.OrderDesc{
			ColName:    strings.ToLower(o.Column),
			Descending: o.Desc,
		})
	}
	if s.Limit != nil {
		if *s.Limit < 0 {
			return nil, errors.NewInvalidStatementError("limit must not be negative")
		}
		desc.Limit = *s.Limit
	}
	return desc, nil
}
