package scenarios

import "github.com/goliatone/go-entity-cache/datastore"

// EmployeeSchema is the cacheable type updated in bulk by the employee
// scenarios. Employees are identified by name.
func EmployeeSchema() datastore.Schema {
	return datastore.Schema{
		Name:      employeeType,
		KeyColumn: "name",
		Columns: []datastore.Column{
			{Name: "oca", Kind: datastore.KindInt},
			{Name: "title", Kind: datastore.KindString},
		},
		Cacheable: true,
	}
}

// TestEntitySchema is a cacheable type with generated keys.
func TestEntitySchema() datastore.Schema {
	return datastore.Schema{
		Name:         testEntityType,
		KeyColumn:    "id",
		Columns:      []datastore.Column{{Name: "name", Kind: datastore.KindString}},
		GeneratedKey: true,
		Cacheable:    true,
	}
}

// Schemas lists the types the scenarios need registered.
func Schemas() []datastore.Schema {
	return []datastore.Schema{EmployeeSchema(), TestEntitySchema()}
}
