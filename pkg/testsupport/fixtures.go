// Package testsupport holds fixture and golden file helpers shared by the
// tests of this module.
package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-entity-cache/datastore"
)

// EntityFixture is the JSON form of one entity.
type EntityFixture struct {
	Type   string           `json:"type"`
	Key    string           `json:"key"`
	Fields datastore.Fields `json:"fields"`
}

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// LoadEntities reads a JSON array of entities and normalizes each against
// its schema, so JSON numbers become the column's Go type.
func LoadEntities(t *testing.T, path string, schemas ...datastore.Schema) []datastore.Entity {
	t.Helper()

	byName := make(map[string]datastore.Schema, len(schemas))
	for _, s := range schemas {
		byName[s.Name] = s
	}

	var fixtures []EntityFixture
	LoadFixtureJSON(t, path, &fixtures)

	out := make([]datastore.Entity, 0, len(fixtures))
	for i, f := range fixtures {
		schema, ok := byName[f.Type]
		if !ok {
			t.Fatalf("fixture %s entry %d: unknown type %q", path, i, f.Type)
		}
		e, err := schema.Normalize(datastore.NewEntity(f.Type, f.Key, f.Fields))
		if err != nil {
			t.Fatalf("fixture %s entry %d: %v", path, i, err)
		}
		out = append(out, e)
	}
	return out
}

// Seed registers schemas on store and commits entities in one transaction,
// bypassing any cache.
func Seed(t *testing.T, ctx context.Context, store datastore.Datastore, schemas []datastore.Schema, entities ...datastore.Entity) {
	t.Helper()

	for _, s := range schemas {
		if err := store.Register(ctx, s); err != nil {
			t.Fatalf("failed to register %s: %v", s.Name, err)
		}
	}
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin seed transaction: %v", err)
	}
	for _, e := range entities {
		if _, err := tx.Insert(ctx, e); err != nil {
			_ = tx.Rollback(ctx)
			t.Fatalf("failed to seed %s: %v", e.Ref(), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("failed to commit seed transaction: %v", err)
	}
}

// WriteGolden writes test output to a golden file.
func WriteGolden(t *testing.T, path string, data []byte) {
	t.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write golden file to %s: %v", path, err)
	}
}

// CompareWithGolden compares actual data with expected data from a golden file.
// If the golden file doesn't exist, it creates one with the actual data.
func CompareWithGolden(t *testing.T, path string, actual []byte) {
	t.Helper()

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Logf("Golden file %s does not exist, creating it", path)
			WriteGolden(t, path, actual)
			return
		}
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if string(actual) != string(expected) {
		t.Errorf("output mismatch for %s:\nExpected:\n%s\nActual:\n%s", path, expected, actual)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath constructs a path to a golden file relative to the testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}
