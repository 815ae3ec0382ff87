package demo

import (
	"errors"
	"fmt"
)

var (
	ErrBadMagic   = errors.New("demo: not a source 2 demo")
	ErrTruncated  = errors.New("demo: frame extends past end of data")
	ErrDecompress = errors.New("demo: frame decompression failed")
	ErrNoSchema   = errors.New("demo: entities before send tables or class info")
)

// ParseError locates a decoding failure. MsgType is zero when the failure
// is in the outer frame itself.
type ParseError struct {
	Command Command
	MsgType MessageType
	Tick    int32
	// byte offset of the outer frame
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	where := e.Command.String()
	if e.MsgType != 0 {
		where += "/" + e.MsgType.String()
	}
	return fmt.Sprintf("demo: %s at tick %d, offset %d: %v", where, e.Tick, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
