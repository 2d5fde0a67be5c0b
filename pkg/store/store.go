// Package store implements the transactional, content-addressed object
// store backing a hoard database: a BoltDB file holding an objects
// bucket, a roots bucket, and a deferred-ops bucket.
//
// Ported from original_source/lmdb_storage/object_store.py (there LMDB,
// here BoltDB, following pkg/storage/boltdb.go's bucket-per-concern
// layout and db.Update/db.View transaction idiom).
package store

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/madcowbg/hoard/pkg/hoarderr"
	"github.com/madcowbg/hoard/pkg/object"
)

var (
	bucketObjects     = []byte("objects")
	bucketRoots       = []byte("roots")
	bucketDeferredOps = []byte("deferred_ops")
)

// Store is a BoltDB-backed object store. All reads and writes go through
// ReadTxn/WriteTxn so callers never hold a *bolt.Tx directly.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the hoard database at path and ensures
// its three buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening hoard database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketObjects, bucketRoots, bucketDeferredOps} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("creating bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ReadTxn runs fn inside a read-only transaction.
func (s *Store) ReadTxn(fn func(*ReadTx) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&ReadTx{tx: tx})
	})
}

// WriteTxn runs fn inside a read-write transaction.
func (s *Store) WriteTxn(fn func(*WriteTx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&WriteTx{ReadTx: ReadTx{tx: tx}})
	})
}

// ReadTx exposes read-only object, root, and deferred-op accessors bound
// to a single BoltDB transaction.
type ReadTx struct {
	tx *bolt.Tx
}

// Get fetches and decodes the object with the given ID.
func (r *ReadTx) Get(id object.ID) (object.Object, error) {
	raw := r.tx.Bucket(bucketObjects).Get(id[:])
	if raw == nil {
		return nil, hoarderr.New(hoarderr.MissingObject, id.String())
	}
	return object.Decode(raw)
}

// Has reports whether id is present without decoding it.
func (r *ReadTx) Has(id object.ID) bool {
	return r.tx.Bucket(bucketObjects).Get(id[:]) != nil
}

// ForEachObject walks every stored object ID. fn receives a copy of the
// raw bytes safe to retain past the callback.
func (r *ReadTx) ForEachObject(fn func(id object.ID, raw []byte) error) error {
	return r.tx.Bucket(bucketObjects).ForEach(func(k, v []byte) error {
		id, err := object.IDFromBytes(k)
		if err != nil {
			return err
		}
		cp := make([]byte, len(v))
		copy(cp, v)
		return fn(id, cp)
	})
}

// WriteTx extends ReadTx with mutation methods. Its ID-keyed methods all
// operate within the single wrapping BoltDB transaction.
type WriteTx struct {
	ReadTx
}

// Put stores obj, keyed by its own ID, and returns that ID. Storing the
// same content twice is a no-op overwrite (same key, same bytes).
func (w *WriteTx) Put(obj object.Object) (object.ID, error) {
	id := obj.ID()
	if err := w.tx.Bucket(bucketObjects).Put(id[:], obj.Serialize()); err != nil {
		return id, fmt.Errorf("storing object %s: %w", id, err)
	}
	return id, nil
}

// PutRaw stores an already-serialized object under id directly, used by
// CopyObjectsFrom to avoid a decode/re-encode round trip.
func (w *WriteTx) PutRaw(id object.ID, raw []byte) error {
	return w.tx.Bucket(bucketObjects).Put(id[:], raw)
}

// Delete removes id unconditionally; callers are responsible for only
// deleting objects no live root retains (see GC).
func (w *WriteTx) Delete(id object.ID) error {
	return w.tx.Bucket(bucketObjects).Delete(id[:])
}

// rootsBucket and deferredOpsBucket let pkg/roots and pkg/deferred share
// this transaction's buckets without re-exporting *bolt.Tx.
func (r *ReadTx) rootsBucket() *bolt.Bucket       { return r.tx.Bucket(bucketRoots) }
func (r *ReadTx) deferredOpsBucket() *bolt.Bucket { return r.tx.Bucket(bucketDeferredOps) }

// RootsBucket exposes the roots bucket for pkg/roots.
func (r *ReadTx) RootsBucket() *bolt.Bucket { return r.rootsBucket() }

// DeferredOpsBucket exposes the deferred-ops bucket for pkg/deferred.
func (r *ReadTx) DeferredOpsBucket() *bolt.Bucket { return r.deferredOpsBucket() }
