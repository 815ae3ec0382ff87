package fieldpath

import (
	"errors"
	"strconv"
	"strings"
)

// MaxDepth is the deepest nesting a field path can address.
const MaxDepth = 7

var (
	ErrPathDepth     = errors.New("fieldpath: push beyond maximum depth")
	ErrPathUnderflow = errors.New("fieldpath: pop beyond the root level")
	ErrNegativeIndex = errors.New("fieldpath: negative index can not be encoded")
)

// FieldPath addresses one property in a serializer tree. Path[0..Last] are
// the indices, outermost first. Levels beyond Last are always zero, which
// keeps FieldPath comparable and usable directly as a map key.
type FieldPath struct {
	Path [MaxDepth]int32
	Last int
}

// New returns the starting state of a field path stream: a single level
// holding -1, so that the first PlusOne addresses field 0.
func New() FieldPath {
	return FieldPath{Path: [MaxDepth]int32{-1}}
}

// Of builds a path from explicit indices. It panics if given no indices or
// more than MaxDepth of them.
func Of(indices ...int32) FieldPath {
	if len(indices) == 0 || len(indices) > MaxDepth {
		panic("fieldpath: Of needs between 1 and MaxDepth indices")
	}
	var fp FieldPath
	copy(fp.Path[:], indices)
	fp.Last = len(indices) - 1
	return fp
}

// Len returns the number of levels.
func (fp FieldPath) Len() int { return fp.Last + 1 }

// At returns the index at level i.
func (fp FieldPath) At(i int) int32 { return fp.Path[i] }

// Indices returns a copy of the levels in use.
func (fp FieldPath) Indices() []int32 {
	out := make([]int32, fp.Len())
	copy(out, fp.Path[:fp.Len()])
	return out
}

func (fp FieldPath) String() string {
	var sb strings.Builder
	for i := 0; i <= fp.Last; i++ {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(strconv.Itoa(int(fp.Path[i])))
	}
	return sb.String()
}

func (fp *FieldPath) push(v int32) error {
	if fp.Last+1 >= MaxDepth {
		return ErrPathDepth
	}
	fp.Last++
	fp.Path[fp.Last] = v
	return nil
}

// pop discards the n innermost levels, zeroing them.
func (fp *FieldPath) pop(n int) error {
	if n < 0 || n > fp.Last {
		return ErrPathUnderflow
	}
	for i := 0; i < n; i++ {
		fp.Path[fp.Last] = 0
		fp.Last--
	}
	return nil
}
