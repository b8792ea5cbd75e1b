package common

import (
	"fmt"
	"strings"
)

// PredicateOp is the operator at one node of a predicate tree.
type PredicateOp int

const (
	OpEq PredicateOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpIn
	OpAnd
	OpOr
	OpNot
)

func (o PredicateOp) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpIn:
		return "in"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	}
	return "?"
}

// Literal is a typed constant appearing in a predicate.
type Literal struct {
	Type   Type
	Int64  int64
	Float  float64
	String string
	Bool   bool
	IsNull bool
}

func Int64Literal(v int64) Literal   { return Literal{Type: TypeBigInt, Int64: v} }
func FloatLiteral(v float64) Literal { return Literal{Type: TypeDouble, Float: v} }
func StringLiteral(v string) Literal { return Literal{Type: TypeVarchar, String: v} }
func BoolLiteral(v bool) Literal     { return Literal{Type: TypeBoolean, Bool: v} }
func NullLiteral() Literal           { return Literal{IsNull: true} }

func (l Literal) Describe() string {
	if l.IsNull {
		return "null"
	}
	switch l.Type {
	case TypeBigInt:
		return fmt.Sprintf("%d", l.Int64)
	case TypeDouble:
		return fmt.Sprintf("%g", l.Float)
	case TypeVarchar:
		return fmt.Sprintf("'%s'", l.String)
	case TypeBoolean:
		return fmt.Sprintf("%t", l.Bool)
	}
	return "?"
}

// Predicate is one node of a predicate tree. Comparison nodes reference a
// column by name; the planner binds ColIndex when it validates the query
// against a schema. ColIndex is -1 until bound.
type Predicate struct {
	Op       PredicateOp
	ColName  string
	ColIndex int
	Literals []Literal
	Children []*Predicate
}

func NewComparison(op PredicateOp, colName string, lit Literal) *Predicate {
	return &Predicate{Op: op, ColName: colName, ColIndex: -1, Literals: []Literal{lit}}
}

func NewIn(colName string, lits []Literal) *Predicate {
	return &Predicate{Op: OpIn, ColName: colName, ColIndex: -1, Literals: lits}
}

func NewAnd(children ...*Predicate) *Predicate {
	return &Predicate{Op: OpAnd, ColIndex: -1, Children: children}
}

func NewOr(children ...*Predicate) *Predicate {
	return &Predicate{Op: OpOr, ColIndex: -1, Children: children}
}

func NewNot(child *Predicate) *Predicate {
	return &Predicate{Op: OpNot, ColIndex: -1, Children: []*Predicate{child}}
}

// IsComparison reports whether the node compares a column against
// literal(s), as opposed to combining child predicates.
func (p *Predicate) IsComparison() bool {
	switch p.Op {
	case OpAnd, OpOr, OpNot:
		return false
	}
	return true
}

// ReferencedColumns appends the names of all columns referenced beneath
// this node.
func (p *Predicate) ReferencedColumns(names map[string]struct{}) {
	if p.IsComparison() {
		names[p.ColName] = struct{}{}
		return
	}
	for _, c := range p.Children {
		c.ReferencedColumns(names)
	}
}

func (p *Predicate) String() string {
	if p == nil {
		return "true"
	}
	switch p.Op {
	case OpAnd, OpOr:
		parts := make([]string, len(p.Children))
		for i, c := range p.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " "+p.Op.String()+" ") + ")"
	case OpNot:
		return "not " + p.Children[0].String()
	case OpIn:
		parts := make([]string, len(p.Literals))
		for i, l := range p.Literals {
			parts[i] = l.Describe()
		}
		return fmt.Sprintf("%s in (%s)", p.ColName, strings.Join(parts, ", "))
	default:
		return fmt.Sprintf("%s %s %s", p.ColName, p.Op, p.Literals[0].Describe())
	}
}
