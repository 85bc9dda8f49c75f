package datastore

import (
	"cmp"
	"fmt"
	"strings"
)

// Op is a comparison operator usable in set-based updates.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "<>"
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

func (o Op) Valid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Condition compares one column against a literal value.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

// Where builds a single condition.
func Where(column string, op Op, value any) Condition {
	return Condition{Column: column, Op: op, Value: value}
}

// Predicate is a conjunction of conditions. The empty predicate matches every row.
type Predicate []Condition

// Assignments maps column names to the values a set-based update writes.
type Assignments map[string]any

// Matches evaluates the predicate against e. The schema's key column
// compares against the entity key.
func (p Predicate) Matches(schema Schema, e Entity) (bool, error) {
	for _, c := range p {
		var actual any
		if c.Column == schema.KeyColumn {
			actual = e.Key
		} else {
			col, ok := schema.Column(c.Column)
			if !ok {
				return false, fmt.Errorf("unknown column %q on %s", c.Column, schema.Name)
			}
			want, err := col.Kind.Coerce(c.Value)
			if err != nil {
				return false, err
			}
			c.Value = want
			actual = e.Fields[c.Column]
		}
		ok, err := compare(actual, c.Op, c.Value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (p Predicate) String() string {
	if len(p) == 0 {
		return "true"
	}
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = fmt.Sprintf("%s %s %v", c.Column, c.Op, c.Value)
	}
	return strings.Join(parts, " AND ")
}

func compare(actual any, op Op, want any) (bool, error) {
	if !op.Valid() {
		return false, fmt.Errorf("unsupported operator %q", op)
	}
	if actual == nil || want == nil {
		switch op {
		case OpEq:
			return actual == nil && want == nil, nil
		case OpNe:
			return (actual == nil) != (want == nil), nil
		}
		return false, nil
	}

	var c int
	switch a := actual.(type) {
	case int64:
		w, ok := want.(int64)
		if !ok {
			return false, mismatch(actual, want)
		}
		c = cmp.Compare(a, w)
	case float64:
		w, ok := want.(float64)
		if !ok {
			return false, mismatch(actual, want)
		}
		c = cmp.Compare(a, w)
	case string:
		w, ok := want.(string)
		if !ok {
			return false, mismatch(actual, want)
		}
		c = cmp.Compare(a, w)
	case bool:
		w, ok := want.(bool)
		if !ok {
			return false, mismatch(actual, want)
		}
		switch op {
		case OpEq:
			return a == w, nil
		case OpNe:
			return a != w, nil
		}
		return false, fmt.Errorf("operator %q is not defined for bool", op)
	default:
		return false, fmt.Errorf("unsupported value type %T", actual)
	}

	switch op {
	case OpEq:
		return c == 0, nil
	case OpNe:
		return c != 0, nil
	case OpLt:
		return c < 0, nil
	case OpLte:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func mismatch(actual, want any) error {
	return fmt.Errorf("cannot compare %T with %T", actual, want)
}
