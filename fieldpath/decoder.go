package fieldpath

import (
	"fmt"

	"github.com/dbalders/demoparser/bitstream"
)

// Decoder turns the huffman coded operation stream at the reader's cursor
// into field paths. It is single use: once the finish operation is read, or
// any error occurs, Next reports no more paths.
type Decoder struct {
	st   opState
	done bool
}

func NewDecoder(r *bitstream.Reader) *Decoder {
	return &Decoder{st: opState{fp: New(), r: r}}
}

// Next applies operations until one yields a path. ok is false when the
// finish operation has been read.
func (d *Decoder) Next() (fp FieldPath, ok bool, err error) {
	if d.done {
		return FieldPath{}, false, nil
	}
	r := d.st.r
	sym := r.ReadSymbol(tree)
	if err := r.Err(); err != nil {
		d.done = true
		return FieldPath{}, false, err
	}
	op := Op(sym)
	if op == FieldPathEncodeFinish {
		d.done = true
		return FieldPath{}, false, nil
	}
	if err := ops[op].apply(&d.st); err != nil {
		d.done = true
		return FieldPath{}, false, fmt.Errorf("%w: op %s at %s", err, op, d.st.fp)
	}
	if err := r.Err(); err != nil {
		d.done = true
		return FieldPath{}, false, err
	}
	return d.st.fp, true, nil
}

// ReadAll decodes every path up to the finish operation, appending to dst.
// All paths of one entity must be read before any of its values, because the
// values follow the complete operation stream.
func ReadAll(r *bitstream.Reader, dst []FieldPath) ([]FieldPath, error) {
	d := NewDecoder(r)
	for {
		fp, ok, err := d.Next()
		if err != nil {
			return dst, err
		}
		if !ok {
			return dst, nil
		}
		dst = append(dst, fp)
	}
}
