package dataframe

import (
	"fmt"
	"strings"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/paveg/ecomlake/internal/errors"
)

// JoinType represents the type of join operation
type JoinType int

const (
	// InnerJoin keeps only rows whose key exists on both sides.
	InnerJoin JoinType = iota
	// LeftJoin keeps every left row, with nulls where the right side has no match.
	LeftJoin
)

func (jt JoinType) String() string {
	switch jt {
	case InnerJoin:
		return "inner"
	case LeftJoin:
		return "left"
	default:
		return fmt.Sprintf("JoinType(%d)", int(jt))
	}
}

// JoinOptions specifies join parameters
type JoinOptions struct {
	Type     JoinType
	LeftKey  string
	RightKey string
}

// rightSuffix disambiguates right-side columns whose names collide with the left.
const rightSuffix = "_right"

// Join performs a hash join on a single key column. Rows with a null key
// never match. When both keys share a name the key appears once, first, and
// the remaining left then right columns follow in their original order.
func (df *DataFrame) Join(right *DataFrame, options *JoinOptions) (*DataFrame, error) {
	if options == nil || options.LeftKey == "" || options.RightKey == "" {
		return nil, errors.NewInvalidInputError("Join", "join keys must be specified")
	}
	leftKey, ok := df.Column(options.LeftKey)
	if !ok {
		return nil, errors.NewColumnNotFoundError("Join", options.LeftKey)
	}
	rightKey, ok := right.Column(options.RightKey)
	if !ok {
		return nil, errors.NewColumnNotFoundError("Join", options.RightKey)
	}

	index, rows := buildKeyIndex(rightKey)

	var leftIdx, rightIdx []int
	for i := 0; i < leftKey.Len(); i++ {
		var matches []int
		if !leftKey.IsNull(i) {
			if slot, found := index.lookup(leftKey.GetAsString(i)); found {
				matches = rows[slot]
			}
		}
		switch {
		case len(matches) > 0:
			for _, j := range matches {
				leftIdx = append(leftIdx, i)
				rightIdx = append(rightIdx, j)
			}
		case options.Type == LeftJoin:
			leftIdx = append(leftIdx, i)
			rightIdx = append(rightIdx, -1)
		case options.Type != InnerJoin:
			return nil, errors.NewInvalidInputError("Join", "unsupported join type "+options.Type.String())
		}
	}

	return df.buildJoinResult(right, options, leftIdx, rightIdx)
}

func (df *DataFrame) buildJoinResult(right *DataFrame, options *JoinOptions, leftIdx, rightIdx []int) (*DataFrame, error) {
	sharedKey := options.LeftKey == options.RightKey

	leftCols := df.Columns()
	if sharedKey {
		leftCols = append([]string{options.LeftKey}, without(leftCols, options.LeftKey)...)
	}
	rightCols := right.Columns()
	if sharedKey {
		rightCols = without(rightCols, options.RightKey)
	}

	out := make([]ISeries, 0, len(leftCols)+len(rightCols))
	taken := make(map[string]bool, len(leftCols)+len(rightCols))
	for _, name := range leftCols {
		s, err := takeSeries(df.columns[name], leftIdx, df.mem)
		if err != nil {
			releaseAll(out)
			return nil, err
		}
		out = append(out, s)
		taken[name] = true
	}
	for _, name := range rightCols {
		s, err := takeSeries(right.columns[name], rightIdx, df.mem)
		if err != nil {
			releaseAll(out)
			return nil, err
		}
		if taken[name] {
			renamed, rerr := renameSeries(s, name+rightSuffix)
			s.Release()
			if rerr != nil {
				releaseAll(out)
				return nil, rerr
			}
			s = renamed
		}
		out = append(out, s)
		taken[s.Name()] = true
	}
	return NewWithAllocator(df.mem, out...), nil
}

func renameSeries(s ISeries, name string) (ISeries, error) {
	arr := s.Array()
	defer arr.Release()
	return FromArray(name, arr)
}

func without(names []string, drop string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}

// buildKeyIndex maps each distinct non-null key to the rows holding it.
func buildKeyIndex(key ISeries) (*keyIndex, [][]int) {
	index := newKeyIndex(key.Len())
	var rows [][]int
	for i := 0; i < key.Len(); i++ {
		if key.IsNull(i) {
			continue
		}
		slot, existed := index.insert(key.GetAsString(i))
		if !existed {
			rows = append(rows, nil)
		}
		rows[slot] = append(rows[slot], i)
	}
	return index, rows
}

// Constants for the key index.
const (
	keyIndexLoadFactor     = 0.75
	keyIndexGrowthFactor   = 2
	keyIndexCapacityFactor = 1.3
)

// keyIndex assigns dense slot numbers to string keys, bucketed by xxhash.
type keyIndex struct {
	buckets  [][]keyEntry
	capacity int
	size     int
}

type keyEntry struct {
	key  string
	slot int
}

func newKeyIndex(estimatedSize int) *keyIndex {
	capacity := nextPowerOfTwo(int(float64(estimatedSize) * keyIndexCapacityFactor))
	return &keyIndex{
		buckets:  make([][]keyEntry, capacity),
		capacity: capacity,
	}
}

func (ki *keyIndex) bucket(key string) int {
	//nolint:gosec // capacity is always a positive power of two
	return int(xxhash.Sum64String(key) & uint64(ki.capacity-1))
}

// lookup returns the slot for key.
func (ki *keyIndex) lookup(key string) (int, bool) {
	for _, entry := range ki.buckets[ki.bucket(key)] {
		if entry.key == key {
			return entry.slot, true
		}
	}
	return 0, false
}

// insert returns the slot for key, allocating the next slot when key is new.
func (ki *keyIndex) insert(key string) (int, bool) {
	b := ki.bucket(key)
	for _, entry := range ki.buckets[b] {
		if entry.key == key {
			return entry.slot, true
		}
	}
	slot := ki.size
	ki.buckets[b] = append(ki.buckets[b], keyEntry{key: key, slot: slot})
	ki.size++

	if float64(ki.size) > float64(ki.capacity)*keyIndexLoadFactor {
		ki.resize()
	}
	return slot, false
}

// resize grows the bucket array and rehashes all entries.
func (ki *keyIndex) resize() {
	old := ki.buckets
	ki.capacity *= keyIndexGrowthFactor
	ki.buckets = make([][]keyEntry, ki.capacity)
	for _, bucket := range old {
		for _, entry := range bucket {
			b := ki.bucket(entry.key)
			ki.buckets[b] = append(ki.buckets[b], entry)
		}
	}
}

// nextPowerOfTwo returns the next power of two >= n.
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	power := 1
	for power < n {
		power <<= 1
	}
	return power
}

// compositeKey renders the key columns of row i into a single grouping key.
// Nulls get a marker distinct from any rendered value.
func compositeKey(keys []ISeries, i int) string {
	var sb strings.Builder
	for k, col := range keys {
		if k > 0 {
			sb.WriteByte(0x1f)
		}
		if col.IsNull(i) {
			sb.WriteByte(0x00)
			continue
		}
		sb.WriteByte(0x01)
		sb.WriteString(col.GetAsString(i))
	}
	return sb.String()
}
