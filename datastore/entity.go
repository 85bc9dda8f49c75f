package datastore

import (
	"fmt"
	"maps"
)

// Fields holds the mutable column values of an entity, keyed by column name.
type Fields map[string]any

// Entity is a record with an immutable identity and mutable fields.
type Entity struct {
	Type   string
	Key    string
	Fields Fields
}

// NewEntity builds an entity of the given type.
func NewEntity(entityType, key string, fields Fields) Entity {
	return Entity{Type: entityType, Key: key, Fields: fields}
}

// Clone returns a copy whose Fields map can be mutated independently.
func (e Entity) Clone() Entity {
	out := Entity{Type: e.Type, Key: e.Key}
	if e.Fields != nil {
		out.Fields = make(Fields, len(e.Fields))
		maps.Copy(out.Fields, e.Fields)
	}
	return out
}

// With returns a copy of the entity with the given field set.
func (e Entity) With(column string, value any) Entity {
	out := e.Clone()
	if out.Fields == nil {
		out.Fields = Fields{}
	}
	out.Fields[column] = value
	return out
}

// Int returns an integer field, or 0 when the field is absent or not an int64.
func (e Entity) Int(column string) int64 {
	v, _ := e.Fields[column].(int64)
	return v
}

// String returns a string field, or "" when the field is absent or not a string.
func (e Entity) String(column string) string {
	v, _ := e.Fields[column].(string)
	return v
}

// Ref returns the type-qualified identity of the entity.
func (e Entity) Ref() Ref {
	return Ref{Type: e.Type, Key: e.Key}
}

// Ref identifies an entity across types.
type Ref struct {
	Type string
	Key  string
}

func (r Ref) String() string {
	return fmt.Sprintf("%s#%s", r.Type, r.Key)
}
