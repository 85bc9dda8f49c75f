package entitycache

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-entity-cache/datastore"
)

// entry is the disassembled form of an entity held in storage. The key is
// part of the storage key and is not repeated here.
type entry struct {
	Fields map[string]any `msgpack:"f"`
}

func encodeEntry(e datastore.Entity) ([]byte, error) {
	return msgpack.Marshal(entry{Fields: e.Fields})
}

func decodeEntry(schema datastore.Schema, key string, b []byte) (datastore.Entity, error) {
	var ent entry
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(&ent); err != nil {
		return datastore.Entity{}, err
	}
	return schema.Normalize(datastore.Entity{Type: schema.Name, Key: key, Fields: ent.Fields})
}
