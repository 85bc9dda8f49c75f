package datastore

import (
	"testing"
)

func employeeSchema() Schema {
	return Schema{
		Name:      "employee",
		KeyColumn: "name",
		Columns: []Column{
			{Name: "title", Kind: KindString},
			{Name: "oca", Kind: KindInt},
		},
		Cacheable: true,
	}
}

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr bool
	}{
		{name: "valid", schema: employeeSchema()},
		{
			name:    "missing name",
			schema:  Schema{KeyColumn: "id"},
			wantErr: true,
		},
		{
			name:    "missing key column",
			schema:  Schema{Name: "employee"},
			wantErr: true,
		},
		{
			name:    "bad identifier",
			schema:  Schema{Name: "employee; drop", KeyColumn: "id"},
			wantErr: true,
		},
		{
			name: "unknown kind",
			schema: Schema{Name: "employee", KeyColumn: "id", Columns: []Column{
				{Name: "title", Kind: Kind("blob")},
			}},
			wantErr: true,
		},
		{
			name: "duplicate column",
			schema: Schema{Name: "employee", KeyColumn: "id", Columns: []Column{
				{Name: "title", Kind: KindString},
				{Name: "title", Kind: KindString},
			}},
			wantErr: true,
		},
		{
			name: "column shadows key",
			schema: Schema{Name: "employee", KeyColumn: "id", Columns: []Column{
				{Name: "id", Kind: KindString},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchema_Normalize(t *testing.T) {
	s := employeeSchema()

	got, err := s.Normalize(Entity{Key: "John Smith", Fields: Fields{
		"title": []byte("Mr"),
		"oca":   int(3),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Type != "employee" {
		t.Errorf("expected type employee, got %q", got.Type)
	}
	if got.String("title") != "Mr" {
		t.Errorf("expected title Mr, got %v", got.Fields["title"])
	}
	if got.Int("oca") != 3 {
		t.Errorf("expected oca 3, got %v", got.Fields["oca"])
	}

	if _, err := s.Normalize(Entity{Key: "x", Fields: Fields{"salary": 1}}); err == nil {
		t.Error("expected error for unknown column")
	}
	if _, err := s.Normalize(Entity{Key: "x", Fields: Fields{"oca": "three"}}); err == nil {
		t.Error("expected error for non numeric oca")
	}
}

func TestKind_Coerce(t *testing.T) {
	tests := []struct {
		kind    Kind
		in      any
		want    any
		wantErr bool
	}{
		{KindInt, int32(7), int64(7), false},
		{KindInt, float64(2), int64(2), false},
		{KindInt, 2.5, nil, true},
		{KindInt, []byte("42"), int64(42), false},
		{KindString, []byte("abc"), "abc", false},
		{KindString, 5, nil, true},
		{KindFloat, int64(2), float64(2), false},
		{KindBool, int64(1), true, false},
		{KindBool, int64(0), false, false},
		{KindBool, "yes", nil, true},
		{KindInt, nil, nil, false},
	}

	for _, tt := range tests {
		got, err := tt.kind.Coerce(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s.Coerce(%#v) error = %v, wantErr %v", tt.kind, tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%s.Coerce(%#v) = %#v, want %#v", tt.kind, tt.in, got, tt.want)
		}
	}
}

func TestEntity_CloneIsIndependent(t *testing.T) {
	e := NewEntity("employee", "John Smith", Fields{"oca": int64(0)})
	c := e.With("oca", int64(1))

	if e.Int("oca") != 0 {
		t.Errorf("original mutated: oca = %d", e.Int("oca"))
	}
	if c.Int("oca") != 1 {
		t.Errorf("expected clone oca 1, got %d", c.Int("oca"))
	}
	if c.Ref() != e.Ref() {
		t.Errorf("expected identical refs, got %v and %v", c.Ref(), e.Ref())
	}
	if e.Ref().String() != "employee#John Smith" {
		t.Errorf("unexpected ref string %q", e.Ref().String())
	}
}
