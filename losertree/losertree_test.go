package losertree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanrat/xsort/losertree"
)

// sliceSeq adapts a plain slice to losertree.Sequence for tests.
type sliceSeq struct {
	data []int
	pos  int
}

func (s *sliceSeq) Empty() bool   { return s.pos >= len(s.data) }
func (s *sliceSeq) Current() int  { return s.data[s.pos] }
func (s *sliceSeq) Advance()      { s.pos++ }

func TestTreeMergesInOrder(t *testing.T) {
	seqs := []losertree.Sequence[int]{
		&sliceSeq{data: []int{1, 4, 7}},
		&sliceSeq{data: []int{2, 3, 9}},
		&sliceSeq{data: []int{5, 6, 8}},
	}
	tr := losertree.New(func(a, b int) bool { return a < b }, seqs)

	var got []int
	for !tr.Empty() {
		got = append(got, tr.Next())
	}
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestTreeHandlesEmptySequences(t *testing.T) {
	seqs := []losertree.Sequence[int]{
		&sliceSeq{data: nil},
		&sliceSeq{data: []int{1, 2}},
		&sliceSeq{data: nil},
	}
	tr := losertree.New(func(a, b int) bool { return a < b }, seqs)
	dst := tr.PopN(10, nil)
	require.Equal(t, []int{1, 2}, dst)
	require.True(t, tr.Empty())
}

func TestTreeAllEmpty(t *testing.T) {
	tr := losertree.New(func(a, b int) bool { return a < b }, nil)
	require.True(t, tr.Empty())
}
