// Package object implements the content-addressed object model: blobs
// (file metadata) and trees (directories), their canonical msgpack
// serialization, and SHA-1 ID derivation.
//
// Ported from original_source/lmdb_storage/{file_object,tree_object,
// object_serialization}.py. Canonical form is a two-element record
// [type-tag, payload]; the ID is the SHA-1 digest of those bytes. Two
// objects with identical structure always serialize to identical bytes
// and therefore share an ID.
package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/madcowbg/hoard/pkg/hoarderr"
)

// ID is a 20-byte SHA-1 digest that content-addresses a Blob or Tree.
type ID [20]byte

// ZeroID is the null object reference (absence of a root).
var ZeroID ID

func (id ID) IsZero() bool { return id == ZeroID }

func (id ID) String() string { return hex.EncodeToString(id[:]) }

func (id ID) Less(other ID) bool { return bytes.Compare(id[:], other[:]) < 0 }

// IDFromBytes validates and wraps a raw 20-byte digest.
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != len(id) {
		return id, hoarderr.New(hoarderr.CorruptObject, fmt.Sprintf("object id must be %d bytes, got %d", len(id), len(b)))
	}
	copy(id[:], b)
	return id, nil
}

// Kind distinguishes blobs from trees in the serialized type tag.
type Kind int8

const (
	KindTree Kind = 1
	KindBlob Kind = 2
)

// Blob describes a regular file by its scanner-computed fast-hash, size,
// and optional full MD5. Two blobs with identical (FastHash, Size, MD5)
// serialize identically and therefore share an ID.
type Blob struct {
	FastHash string
	Size     int64
	MD5      []byte // nil if not computed
}

// NewBlob constructs a Blob value. Its ID is derived lazily by ID().
func NewBlob(fastHash string, size int64, md5 []byte) Blob {
	return Blob{FastHash: fastHash, Size: size, MD5: md5}
}

func (b Blob) Kind() Kind { return KindBlob }

func (b Blob) ID() ID {
	raw, err := serializeBlob(b)
	if err != nil {
		panic(err) // encoding a well-formed Blob cannot fail
	}
	return sha1.Sum(raw)
}

func (b Blob) Serialize() []byte {
	raw, err := serializeBlob(b)
	if err != nil {
		panic(err)
	}
	return raw
}

func (b Blob) Equal(other Blob) bool {
	return b.Size == other.Size && b.FastHash == other.FastHash && bytes.Equal(b.MD5, other.MD5)
}

// Child is one entry in a Tree: a non-empty name (containing no "/") and
// the ID of the object it names.
type Child struct {
	Name string
	ID   ID
}

// Tree is an ordered mapping from child name to child Object ID, stored
// and serialized in ascending name order so its ID is invariant under
// insertion order.
type Tree struct {
	children []Child
}

// FromSortedChildren builds a Tree from children already in ascending
// name order. Panics if the precondition is violated (an internal
// invariant, not a user-facing error) or if a child name is empty or
// contains "/".
func FromSortedChildren(children []Child) Tree {
	for i, c := range children {
		if c.Name == "" || bytes.ContainsRune([]byte(c.Name), '/') {
			panic(fmt.Sprintf("tree child name %q is invalid", c.Name))
		}
		if i > 0 && children[i-1].Name >= c.Name {
			panic(fmt.Sprintf("tree children must be strictly ascending by name: %q >= %q", children[i-1].Name, c.Name))
		}
	}
	cp := make([]Child, len(children))
	copy(cp, children)
	return Tree{children: cp}
}

// FromUnsortedChildren sorts then builds a Tree — id(FromUnsortedChildren(xs))
// == id(FromSortedChildren(sort(xs))).
func FromUnsortedChildren(children []Child) Tree {
	cp := make([]Child, len(children))
	copy(cp, children)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Name < cp[j].Name })
	return FromSortedChildren(cp)
}

func (t Tree) Kind() Kind { return KindTree }

func (t Tree) Children() []Child {
	out := make([]Child, len(t.children))
	copy(out, t.children)
	return out
}

func (t Tree) Len() int { return len(t.children) }

// Get returns the child ID for name, if present.
func (t Tree) Get(name string) (ID, bool) {
	// children are few per directory in practice; linear scan keeps this
	// simple and avoids building a map for every decoded tree.
	for _, c := range t.children {
		if c.Name == name {
			return c.ID, true
		}
	}
	return ID{}, false
}

func (t Tree) ID() ID {
	raw, err := serializeTree(t)
	if err != nil {
		panic(err)
	}
	return sha1.Sum(raw)
}

func (t Tree) Serialize() []byte {
	raw, err := serializeTree(t)
	if err != nil {
		panic(err)
	}
	return raw
}

// Object is the common interface implemented by Blob and Tree.
type Object interface {
	Kind() Kind
	ID() ID
	Serialize() []byte
}

func serializeBlob(b Blob) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(2); err != nil {
		return nil, err
	}
	if err := enc.EncodeInt8(int8(KindBlob)); err != nil {
		return nil, err
	}
	if err := enc.EncodeArrayLen(3); err != nil {
		return nil, err
	}
	if err := enc.EncodeString(b.FastHash); err != nil {
		return nil, err
	}
	if err := enc.EncodeInt64(b.Size); err != nil {
		return nil, err
	}
	if b.MD5 == nil {
		if err := enc.EncodeNil(); err != nil {
			return nil, err
		}
	} else {
		if err := enc.EncodeBytes(b.MD5); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func serializeTree(t Tree) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(2); err != nil {
		return nil, err
	}
	if err := enc.EncodeInt8(int8(KindTree)); err != nil {
		return nil, err
	}
	if err := enc.EncodeArrayLen(len(t.children)); err != nil {
		return nil, err
	}
	for _, c := range t.children {
		if err := enc.EncodeArrayLen(2); err != nil {
			return nil, err
		}
		if err := enc.EncodeString(c.Name); err != nil {
			return nil, err
		}
		if err := enc.EncodeBytes(c.ID[:]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Decode reads a canonical serialization back into a Blob or Tree. The
// decoded value is returned as an Object; the caller type-switches on
// Kind(). The claimed object ID is not re-verified (callers
// are trusted).
func Decode(raw []byte) (Object, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, hoarderr.Wrap(hoarderr.CorruptObject, err, "decoding object envelope")
	}
	if n != 2 {
		return nil, hoarderr.New(hoarderr.CorruptObject, fmt.Sprintf("expected 2-element envelope, got %d", n))
	}
	tag, err := dec.DecodeInt8()
	if err != nil {
		return nil, hoarderr.Wrap(hoarderr.CorruptObject, err, "decoding type tag")
	}

	switch Kind(tag) {
	case KindBlob:
		m, err := dec.DecodeArrayLen()
		if err != nil || m != 3 {
			return nil, hoarderr.New(hoarderr.CorruptObject, "malformed blob payload")
		}
		fastHash, err := dec.DecodeString()
		if err != nil {
			return nil, hoarderr.Wrap(hoarderr.CorruptObject, err, "decoding fasthash")
		}
		size, err := dec.DecodeInt64()
		if err != nil {
			return nil, hoarderr.Wrap(hoarderr.CorruptObject, err, "decoding size")
		}
		md5, err := dec.DecodeBytes()
		if err != nil {
			return nil, hoarderr.Wrap(hoarderr.CorruptObject, err, "decoding md5")
		}
		return NewBlob(fastHash, size, md5), nil

	case KindTree:
		count, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, hoarderr.Wrap(hoarderr.CorruptObject, err, "decoding tree child count")
		}
		children := make([]Child, 0, count)
		for i := 0; i < count; i++ {
			pairLen, err := dec.DecodeArrayLen()
			if err != nil || pairLen != 2 {
				return nil, hoarderr.New(hoarderr.CorruptObject, "malformed tree child pair")
			}
			name, err := dec.DecodeString()
			if err != nil {
				return nil, hoarderr.Wrap(hoarderr.CorruptObject, err, "decoding child name")
			}
			idBytes, err := dec.DecodeBytes()
			if err != nil {
				return nil, hoarderr.Wrap(hoarderr.CorruptObject, err, "decoding child id")
			}
			id, err := IDFromBytes(idBytes)
			if err != nil {
				return nil, err
			}
			children = append(children, Child{Name: name, ID: id})
		}
		return FromSortedChildren(children), nil

	default:
		return nil, hoarderr.New(hoarderr.CorruptObject, fmt.Sprintf("unrecognized object type tag %d", tag))
	}
}
