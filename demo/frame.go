package demo

import (
	"fmt"

	"github.com/golang/snappy"
	"google.golang.org/protobuf/encoding/protowire"
)

// frame is one outer record, payload decompressed.
type frame struct {
	cmd     Command
	tick    int32
	payload []byte
}

// readFrame reads the frame at the start of b and returns it with the
// number of bytes it occupies.
func readFrame(b []byte) (frame, int, error) {
	var f frame
	pos := 0
	next := func(what string) (uint64, error) {
		v, n := protowire.ConsumeVarint(b[pos:])
		if n < 0 {
			return 0, fmt.Errorf("%w: %s: %v", ErrTruncated, what, protowire.ParseError(n))
		}
		pos += n
		return v, nil
	}

	cmd, err := next("command")
	if err != nil {
		return f, 0, err
	}
	compressed := Command(cmd)&cmdCompressed != 0
	f.cmd = Command(cmd) &^ cmdCompressed

	tick, err := next("tick")
	if err != nil {
		return f, 0, err
	}
	// the tick is a 32 bit value; the header frames carry -1
	f.tick = int32(uint32(tick))

	size, err := next("size")
	if err != nil {
		return f, 0, err
	}
	if size > uint64(len(b)-pos) {
		return f, 0, fmt.Errorf("%w: %s payload of %d bytes, %d left", ErrTruncated, f.cmd, size, len(b)-pos)
	}
	f.payload = b[pos : pos+int(size)]
	pos += int(size)

	if compressed {
		p, err := snappy.Decode(nil, f.payload)
		if err != nil {
			return f, 0, fmt.Errorf("%w: %s: %v", ErrDecompress, f.cmd, err)
		}
		f.payload = p
	}
	return f, pos, nil
}
