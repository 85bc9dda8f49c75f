package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-cache/datastore"
)

type clause struct {
	query string
	args  []any
}

// whereClauses renders a predicate as bun WHERE clauses. bun refuses updates
// without a WHERE, so the empty predicate renders as an always-true clause.
func whereClauses(schema datastore.Schema, p datastore.Predicate) ([]clause, error) {
	if len(p) == 0 {
		return []clause{{query: "1 = 1"}}, nil
	}

	out := make([]clause, 0, len(p))
	for _, c := range p {
		if !c.Op.Valid() {
			return nil, invalidCondition(schema, c, fmt.Sprintf("unsupported operator %q", c.Op))
		}

		kind := datastore.KindString
		if c.Column != schema.KeyColumn {
			col, ok := schema.Column(c.Column)
			if !ok {
				return nil, invalidCondition(schema, c, "unknown column")
			}
			kind = col.Kind
		}
		value, err := kind.Coerce(c.Value)
		if err != nil {
			return nil, invalidCondition(schema, c, err.Error())
		}

		ident := bun.Ident(c.Column)
		switch {
		case value == nil && c.Op == datastore.OpEq:
			out = append(out, clause{query: "? IS NULL", args: []any{ident}})
		case value == nil && c.Op == datastore.OpNe:
			out = append(out, clause{query: "? IS NOT NULL", args: []any{ident}})
		case value == nil:
			out = append(out, clause{query: "1 = 0"})
		default:
			out = append(out, clause{query: "? " + string(c.Op) + " ?", args: []any{ident, value}})
		}
	}
	return out, nil
}

func invalidCondition(schema datastore.Schema, c datastore.Condition, msg string) error {
	return errors.NewValidation(
		fmt.Sprintf("invalid predicate on %s", schema.Name),
		errors.FieldError{Field: c.Column, Message: msg, Value: c.Value},
	)
}
