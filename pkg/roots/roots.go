// Package roots implements the named root registry: the {current,
// staging, desired} triple of optional object IDs kept per cave, plus
// the "HOARD" root holding the global desired view.
//
// Ported from original_source/lmdb_storage/roots.py's Root/Roots/RootData,
// translated from LMDB's implicit-transaction style to the explicit
// store.ReadTx/WriteTx passed in by callers.
package roots

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/madcowbg/hoard/pkg/hoarderr"
	"github.com/madcowbg/hoard/pkg/object"
	"github.com/madcowbg/hoard/pkg/store"
)

// Name identifies a root: a cave's UUID string, or the literal "HOARD"
// for the global desired view.
type Name string

// HoardRoot is the well-known root name for the global desired tree.
const HoardRoot Name = "HOARD"

// Data is the {current, staging, desired} triple stored under one Name.
// Any of the three may be absent (nil), meaning "no tree yet".
type Data struct {
	Current *object.ID
	Staging *object.ID
	Desired *object.ID
}

// All returns the non-nil IDs in the triple.
func (d Data) All() []object.ID {
	var out []object.ID
	for _, id := range []*object.ID{d.Current, d.Staging, d.Desired} {
		if id != nil {
			out = append(out, *id)
		}
	}
	return out
}

// Get reads the root data stored under name. A name never written
// before reads back as the zero Data (all three absent).
func Get(tx *store.ReadTx, name Name) (Data, error) {
	raw := tx.RootsBucket().Get([]byte(name))
	if raw == nil {
		return Data{}, nil
	}
	return decode(raw)
}

// AllNames lists every root name that has ever been written to.
func AllNames(tx *store.ReadTx) ([]Name, error) {
	var names []Name
	err := tx.RootsBucket().ForEach(func(k, _ []byte) error {
		names = append(names, Name(k))
		return nil
	})
	return names, err
}

// AllLive returns every object ID referenced by any root's current,
// staging, or desired slot, sorted by hex representation. Ported from
// roots.py's Roots.all_live; GC uses this as its live-root set.
func AllLive(tx *store.ReadTx) ([]object.ID, error) {
	names, err := AllNames(tx)
	if err != nil {
		return nil, err
	}

	var ids []object.ID
	for _, name := range names {
		data, err := Get(tx, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, data.All()...)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids, nil
}

// SetCurrent writes the current slot for name, validating that id (if
// non-nil) already resolves in the object store.
func SetCurrent(tx *store.WriteTx, name Name, id *object.ID) error {
	return update(tx, name, func(d *Data) { d.Current = id })
}

// SetStaging writes the staging slot for name.
func SetStaging(tx *store.WriteTx, name Name, id *object.ID) error {
	return update(tx, name, func(d *Data) { d.Staging = id })
}

// SetDesired writes the desired slot for name.
func SetDesired(tx *store.WriteTx, name Name, id *object.ID) error {
	return update(tx, name, func(d *Data) { d.Desired = id })
}

func update(tx *store.WriteTx, name Name, mutate func(*Data)) error {
	current, err := Get(&tx.ReadTx, name)
	if err != nil {
		return err
	}
	mutate(&current)

	for _, id := range current.All() {
		if !tx.Has(id) {
			return hoarderr.New(hoarderr.MissingObject, fmt.Sprintf("root %s references unknown object %s", name, id))
		}
	}

	raw, err := encode(current)
	if err != nil {
		return err
	}
	return tx.RootsBucket().Put([]byte(name), raw)
}

// encode/decode use a fixed 63-byte layout: three (1-byte present flag +
// 20-byte ID) slots, avoiding a msgpack dependency for a fixed-shape
// record this small.
func encode(d Data) ([]byte, error) {
	buf := make([]byte, 0, 63)
	for _, id := range []*object.ID{d.Current, d.Staging, d.Desired} {
		if id == nil {
			buf = append(buf, 0)
			buf = append(buf, make([]byte, 20)...)
		} else {
			buf = append(buf, 1)
			buf = append(buf, id[:]...)
		}
	}
	return buf, nil
}

func decode(raw []byte) (Data, error) {
	if len(raw) != 63 {
		return Data{}, hoarderr.New(hoarderr.CorruptObject, fmt.Sprintf("root record must be 63 bytes, got %d", len(raw)))
	}
	var d Data
	slots := []**object.ID{&d.Current, &d.Staging, &d.Desired}
	r := bytes.NewReader(raw)
	for _, slot := range slots {
		var present byte
		if err := binary.Read(r, binary.BigEndian, &present); err != nil {
			return Data{}, err
		}
		var idBytes [20]byte
		if _, err := r.Read(idBytes[:]); err != nil {
			return Data{}, err
		}
		if present == 1 {
			id, err := object.IDFromBytes(idBytes[:])
			if err != nil {
				return Data{}, err
			}
			*slot = &id
		}
	}
	return d, nil
}
