package datastore

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
)

// Kind is the storage type of a column.
type Kind string

const (
	KindInt    Kind = "int"
	KindString Kind = "string"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
)

// Column describes one mutable field of an entity type.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Kind Kind   `json:"kind" yaml:"kind"`
}

// Schema describes an entity type: its identity column and its mutable fields.
type Schema struct {
	Name         string   `json:"name" yaml:"name"`
	KeyColumn    string   `json:"key_column" yaml:"key_column"`
	Columns      []Column `json:"columns" yaml:"columns"`
	GeneratedKey bool     `json:"generated_key" yaml:"generated_key"`
	// Cacheable marks the type as eligible for the shared second-level cache.
	Cacheable bool `json:"cacheable" yaml:"cacheable"`
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (s Schema) Validate() error {
	if verr := errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&s,
			validation.Field(&s.Name, validation.Required, validation.Match(identifierPattern)),
			validation.Field(&s.KeyColumn, validation.Required, validation.Match(identifierPattern)),
			validation.Field(&s.Columns, validation.Each(validation.By(validateColumn))),
		)
	}, fmt.Sprintf("invalid schema %q", s.Name)); verr != nil {
		return verr
	}

	seen := map[string]bool{s.KeyColumn: true}
	for _, c := range s.Columns {
		if seen[c.Name] {
			return errors.NewValidation(
				fmt.Sprintf("invalid schema %q", s.Name),
				errors.FieldError{Field: "columns", Message: fmt.Sprintf("duplicate column %q", c.Name)},
			)
		}
		seen[c.Name] = true
	}
	return nil
}

func validateColumn(value any) error {
	c, ok := value.(Column)
	if !ok {
		return fmt.Errorf("unexpected column value %T", value)
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Match(identifierPattern)),
		validation.Field(&c.Kind, validation.Required, validation.In(KindInt, KindString, KindFloat, KindBool)),
	)
}

// Column returns the column definition for name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Normalize coerces the field values of e to the canonical Go type of each
// column so that entities read from different stores compare equal.
// Unknown columns are rejected.
func (s Schema) Normalize(e Entity) (Entity, error) {
	out := Entity{Type: s.Name, Key: e.Key, Fields: make(Fields, len(s.Columns))}
	for name, raw := range e.Fields {
		col, ok := s.Column(name)
		if !ok {
			return Entity{}, errors.NewValidation(
				fmt.Sprintf("invalid %s entity", s.Name),
				errors.FieldError{Field: name, Message: "unknown column"},
			)
		}
		v, err := col.Kind.Coerce(raw)
		if err != nil {
			return Entity{}, errors.NewValidation(
				fmt.Sprintf("invalid %s entity", s.Name),
				errors.FieldError{Field: name, Message: err.Error(), Value: raw},
			)
		}
		out.Fields[name] = v
	}
	return out, nil
}

// Coerce converts v into the canonical Go type for the kind:
// int64, string, float64 or bool. A nil value stays nil.
func (k Kind) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int8:
			return int64(n), nil
		case int16:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case uint8:
			return int64(n), nil
		case uint16:
			return int64(n), nil
		case uint32:
			return int64(n), nil
		case uint64:
			if n > math.MaxInt64 {
				return nil, fmt.Errorf("value %d overflows int64", n)
			}
			return int64(n), nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("value %v is not integral", n)
			}
			return int64(n), nil
		case []byte:
			return strconv.ParseInt(string(n), 10, 64)
		case string:
			return strconv.ParseInt(n, 10, 64)
		}
	case KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		case []byte:
			return strconv.ParseFloat(string(n), 64)
		}
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case int:
			return b != 0, nil
		}
	}
	return nil, fmt.Errorf("cannot store %T as %s", v, k)
}
