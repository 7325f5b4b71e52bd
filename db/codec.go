package db

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Records are CBOR with core deterministic encoding, so indexing the same
// history twice produces identical bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes a record
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a record, reporting failures as ErrCorrupt
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// GetRecord reads and decodes the record at key
func (d *DB) GetRecord(key []byte, v any) error {
	data, err := d.Get(key)
	if err != nil {
		return err
	}
	return Unmarshal(data, v)
}

// SetRecord encodes v and stages it at key
func (b *Batch) SetRecord(key []byte, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return b.Set(key, data)
}
