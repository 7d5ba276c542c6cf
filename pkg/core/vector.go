// Package core defines the data model shared by every index family: the
// external identifier space, raw vector values, and the result shapes
// returned by a k-NN or range search.
package core

import "fmt"

// ElementType names the primitive numeric element type a storage backend
// stores, per spec.md §3 ("Vector" entry).
type ElementType int

const (
	ElementFloat32 ElementType = iota
	ElementFloat16
	ElementInt8
	ElementUint8
)

func (t ElementType) String() string {
	switch t {
	case ElementFloat32:
		return "float32"
	case ElementFloat16:
		return "float16"
	case ElementInt8:
		return "int8"
	case ElementUint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// ExternalID is the 64-bit unsigned identifier a caller attaches to a
// vector. Globally unique within an index instance at all times
// (spec.md §3, "External identifier").
type ExternalID uint64

// InternalIndex names a slot in storage and an adjacency list in the
// graph. Stable between compactions (spec.md §3, "Internal index").
type InternalIndex uint32

// Vector is a fixed-dimension float32 value together with the external
// id a caller associated with it. Index instances are fixed-dimension
// and fixed-element-type; Vector is the float32 input/output shape used
// at the storage and engine boundary regardless of the backend's
// internal element type.
type Vector struct {
	ID        ExternalID
	Embedding []float32
}

// Dimension returns len(v.Embedding).
func (v Vector) Dimension() int { return len(v.Embedding) }

// Validate checks v against an expected dimension, the one check every
// insert path performs before touching storage (spec.md §7, "dimension
// mismatch" is InvalidArgument).
func (v Vector) Validate(expectedDim int) error {
	if len(v.Embedding) != expectedDim {
		return fmt.Errorf("dimension mismatch: got %d, want %d", len(v.Embedding), expectedDim)
	}
	return nil
}

// Neighbor is one result row from a k-NN or range search: an external id
// plus the distance the comparator assigned it (polarity depends on the
// index's configured metric; see pkg/distance).
type Neighbor struct {
	ID       ExternalID
	Distance float32
}

// Neighbors is a slice of Neighbor sortable by ascending distance, which
// is "closer first" under L2; under inner product, where larger values
// are closer (see pkg/distance), ascending order puts the farthest first.
type Neighbors []Neighbor

func (n Neighbors) Len() int           { return len(n) }
func (n Neighbors) Less(i, j int) bool { return n[i].Distance < n[j].Distance }
func (n Neighbors) Swap(i, j int)      { n[i], n[j] = n[j], n[i] }

// QueryBatch is a set of query vectors searched together, sharing a k or
// a radius and an optional id predicate (spec.md §6 "filtered search
// over... a user-supplied identifier predicate").
type QueryBatch struct {
	Vectors   [][]float32
	Predicate func(ExternalID) bool
}

// SearchResult holds the neighbors found for one query in a batch.
type SearchResult struct {
	Neighbors Neighbors
}
