package datastore

import "testing"

func TestPredicate_Matches(t *testing.T) {
	s := employeeSchema()
	e := NewEntity("employee", "John Smith", Fields{"title": "Mr", "oca": int64(0)})

	tests := []struct {
		name    string
		where   Predicate
		want    bool
		wantErr bool
	}{
		{name: "empty matches all", where: nil, want: true},
		{name: "key equality", where: Predicate{Where("name", OpEq, "John Smith")}, want: true},
		{name: "key inequality", where: Predicate{Where("name", OpNe, "John Smith")}, want: false},
		{name: "int less than", where: Predicate{Where("oca", OpLt, 1)}, want: true},
		{name: "int greater or equal", where: Predicate{Where("oca", OpGte, int64(1))}, want: false},
		{name: "conjunction", where: Predicate{Where("title", OpEq, "Mr"), Where("oca", OpEq, 0)}, want: true},
		{name: "string ordering", where: Predicate{Where("title", OpGt, "Ma")}, want: true},
		{name: "unknown column", where: Predicate{Where("salary", OpEq, 1)}, wantErr: true},
		{name: "bad operator", where: Predicate{Where("oca", Op("LIKE"), 1)}, wantErr: true},
		{name: "type mismatch", where: Predicate{Where("oca", OpEq, "zero")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.where.Matches(s, e)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Matches() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicate_NilValues(t *testing.T) {
	s := employeeSchema()
	e := NewEntity("employee", "Jane", Fields{"title": nil, "oca": int64(2)})

	ok, err := Predicate{Where("title", OpEq, nil)}.Matches(s, e)
	if err != nil || !ok {
		t.Errorf("expected nil title to equal nil, got %v (%v)", ok, err)
	}

	ok, err = Predicate{Where("title", OpLt, "Z")}.Matches(s, e)
	if err != nil || ok {
		t.Errorf("expected ordering against nil to be false, got %v (%v)", ok, err)
	}
}

func TestPredicate_String(t *testing.T) {
	if got := Predicate(nil).String(); got != "true" {
		t.Errorf("expected empty predicate to render true, got %q", got)
	}
	p := Predicate{Where("oca", OpEq, 1), Where("title", OpNe, "Mr")}
	if got := p.String(); got != "oca = 1 AND title <> Mr" {
		t.Errorf("unexpected rendering %q", got)
	}
}
