package fieldpath

import (
	"fmt"

	"github.com/dbalders/demoparser/bitstream"
)

// WriteOp appends the codeword of op.
func WriteOp(w *bitstream.Writer, op Op) {
	w.WriteCode(tree.Code(int(op)))
}

// Encode writes an operation stream that decodes to exactly paths, followed by
// the finish operation. It favours a small set of general operations over the
// shortest encoding, which is all synthetic streams need.
func Encode(w *bitstream.Writer, paths []FieldPath) error {
	cur := New()
	for _, next := range paths {
		for i := 0; i <= next.Last; i++ {
			if next.Path[i] < 0 {
				return fmt.Errorf("%w: %s", ErrNegativeIndex, next)
			}
		}
		switch {
		case next.Last == cur.Last:
			encodeSameDepth(w, cur, next)
		case next.Last > cur.Last:
			WriteOp(w, PushNAndNonTopological)
			writeNonTopo(w, cur, next, cur.Last, 1)
			w.WriteUBitVar(uint32(next.Last - cur.Last))
			for i := cur.Last + 1; i <= next.Last; i++ {
				w.WriteUBitVarFieldPath(uint32(next.Path[i]))
			}
		default:
			WriteOp(w, PopNAndNonTopographical)
			w.WriteUBitVarFieldPath(uint32(cur.Last - next.Last))
			writeNonTopo(w, cur, next, next.Last, 0)
		}
		cur = next
	}
	WriteOp(w, FieldPathEncodeFinish)
	return nil
}

func encodeSameDepth(w *bitstream.Writer, cur, next FieldPath) {
	if cur.Path == next.Path {
		WriteOp(w, NonTopoComplex)
		writeNonTopo(w, cur, next, cur.Last, 0)
		return
	}
	prefixSame := true
	for i := 0; i < cur.Last; i++ {
		prefixSame = prefixSame && cur.Path[i] == next.Path[i]
	}
	delta := next.Path[next.Last] - cur.Path[cur.Last]
	if !prefixSame || delta < 1 {
		WriteOp(w, NonTopoComplex)
		writeNonTopo(w, cur, next, cur.Last, 0)
		return
	}
	switch delta {
	case 1:
		WriteOp(w, PlusOne)
	case 2:
		WriteOp(w, PlusTwo)
	case 3:
		WriteOp(w, PlusThree)
	case 4:
		WriteOp(w, PlusFour)
	default:
		WriteOp(w, PlusN)
		w.WriteUBitVarFieldPath(uint32(delta - 5))
	}
}

// writeNonTopo writes the per level presence flag and signed delta for levels
// 0..last. bias is the amount the operation adds to every present delta.
func writeNonTopo(w *bitstream.Writer, cur, next FieldPath, last int, bias int32) {
	for i := 0; i <= last; i++ {
		d := next.Path[i] - cur.Path[i]
		w.WriteBoolean(d != 0)
		if d != 0 {
			w.WriteVarInt32(d - bias)
		}
	}
}
