package main

import (
	"fmt"
	"math/rand"

	"github.com/lanrat/xsort"
	"github.com/lanrat/xsort/block"
)

var count = int(1e5)

func main() {
	bm := block.NewMockManager(64*1024, 2)
	defer bm.Close()

	sorter, err := xsort.NewSorter[uint32](xsort.Uint32Comparator{}, xsort.Uint32Codec{}, bm, &xsort.Config{
		MemoryToUse: 1 << 20,
	}, nil, nil)
	if err != nil {
		panic(err)
	}

	for i := 0; i < count; i++ {
		if err := sorter.Push(rand.Uint32()); err != nil {
			panic(err)
		}
	}

	if err := sorter.Sort(); err != nil {
		panic(err)
	}

	for !sorter.Empty() {
		fmt.Println(sorter.Current())
		sorter.Advance()
	}
}
