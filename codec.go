package xsort

// Codec serializes and deserializes fixed-size elements to and from the
// byte layout used inside a block. The source assumes ValueType is a POD
// with no references to internal memory and a compile-time sizeof();
// Codec is the Go-native stand-in for that assumption, following the
// FromBytesGeneric/ToBytesGeneric split of lanrat-extsort/types.go but
// requiring a constant size so that B = BlockSize/Size() blocks hold
// exactly B elements (spec.md §3 "Block").
type Codec[E any] interface {
	// Size returns the fixed number of bytes each encoded element
	// occupies.
	Size() int
	// Encode writes the encoding of v into dst, which is guaranteed to
	// have length Size().
	Encode(v E, dst []byte)
	// Decode reads an element back out of src, which has length Size().
	Decode(src []byte) E
}

// elementsPerBlock computes B = BlockSize / sizeof(element), the
// compile-time parameter of spec.md §3 made a run-time computation of
// the block manager's BlockSize() and the codec's fixed element size.
func elementsPerBlock(blockSize, elementSize int) int {
	if elementSize <= 0 {
		return 0
	}
	return blockSize / elementSize
}
