// Package rlp models RLP items as a small tree of byte strings and lists and
// serializes them with the canonical encoder from go-ethereum.
package rlp

import (
	"errors"
	"fmt"
	"math/big"

	gethrlp "github.com/ethereum/go-ethereum/rlp"
)

var ErrTrailingBytes = errors.New("rlp: trailing bytes after top-level item")

// Item is either a byte string or a list of items
type Item struct {
	str    []byte
	list   []Item
	isList bool
}

// String wraps raw bytes as a byte-string item. Nil and empty both encode as 0x80.
func String(b []byte) Item {
	return Item{str: b}
}

// Uint encodes an unsigned integer as its shortest big-endian form; zero is the empty string.
// The sign of v is ignored, callers validate before building items.
func Uint(v *big.Int) Item {
	if v == nil {
		return Item{}
	}
	return Item{str: v.Bytes()}
}

// Uint64 is Uint for native integers
func Uint64(v uint64) Item {
	return Uint(new(big.Int).SetUint64(v))
}

// List groups items into a list item
func List(items ...Item) Item {
	return Item{list: items, isList: true}
}

func (i Item) IsList() bool { return i.isList }

// Bytes returns the payload of a string item (nil for lists)
func (i Item) Bytes() []byte { return i.str }

// Items returns the children of a list item (nil for strings)
func (i Item) Items() []Item { return i.list }

// Len returns the number of children for a list and the byte length for a string
func (i Item) Len() int {
	if i.isList {
		return len(i.list)
	}
	return len(i.str)
}

// Encode serializes an item tree
func Encode(item Item) ([]byte, error) {
	if !item.isList {
		return gethrlp.EncodeToBytes(item.str)
	}

	raws := make([]gethrlp.RawValue, 0, len(item.list))
	for idx, child := range item.list {
		enc, err := Encode(child)
		if err != nil {
			return nil, fmt.Errorf("rlp: encode list element %d: %w", idx, err)
		}
		raws = append(raws, enc)
	}
	return gethrlp.EncodeToBytes(raws)
}

// Decode parses exactly one canonical item from b
func Decode(b []byte) (Item, error) {
	item, rest, err := decodeOne(b)
	if err != nil {
		return Item{}, err
	}
	if len(rest) != 0 {
		return Item{}, ErrTrailingBytes
	}
	return item, nil
}

func decodeOne(b []byte) (Item, []byte, error) {
	kind, content, rest, err := gethrlp.Split(b)
	if err != nil {
		return Item{}, nil, err
	}

	switch kind {
	case gethrlp.Byte, gethrlp.String:
		return String(append([]byte{}, content...)), rest, nil
	default:
		children := make([]Item, 0)
		for len(content) > 0 {
			var child Item
			child, content, err = decodeOne(content)
			if err != nil {
				return Item{}, nil, err
			}
			children = append(children, child)
		}
		return List(children...), rest, nil
	}
}
