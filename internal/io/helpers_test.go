package io_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/ecomlake/internal/dataframe"
)

type memoryCheckedFrame struct {
	df  *dataframe.DataFrame
	mem *memory.CheckedAllocator
}

func (f *memoryCheckedFrame) release(t *testing.T) {
	t.Helper()
	f.df.Release()
	f.mem.AssertSize(t, 0)
}
