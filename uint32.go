package xsort

import "encoding/binary"

// Uint32Comparator is the Comparator[uint32] used throughout spec.md §8's
// end-to-end scenarios: cmp = <, MIN = 0, MAX = 2^32-1.
type Uint32Comparator struct{}

func (Uint32Comparator) Less(a, b uint32) bool { return a < b }
func (Uint32Comparator) MinValue() uint32      { return 0 }
func (Uint32Comparator) MaxValue() uint32      { return ^uint32(0) }

// Uint32Codec is the fixed-4-byte Codec[uint32], following the
// ToBytesGeneric/FromBytesGeneric split of
// _examples/lanrat-extsort/types.go but with a compile-time-known size so
// B = BlockSize/Size() holds exactly.
type Uint32Codec struct{}

func (Uint32Codec) Size() int { return 4 }

func (Uint32Codec) Encode(v uint32, dst []byte) {
	binary.LittleEndian.PutUint32(dst, v)
}

func (Uint32Codec) Decode(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}
