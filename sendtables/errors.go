package sendtables

import (
	"errors"
	"fmt"
)

// ErrSchema is the root of every schema consistency failure. A schema error
// aborts decoding of the entity update that hit it.
var ErrSchema = errors.New("sendtables: schema error")

var (
	ErrUnknownClass       = fmt.Errorf("%w: unknown class", ErrSchema)
	ErrClassRedefined     = fmt.Errorf("%w: class registered twice", ErrSchema)
	ErrFieldIndex         = fmt.Errorf("%w: field index out of range", ErrSchema)
	ErrPathPastLeaf       = fmt.Errorf("%w: field path continues past a leaf field", ErrSchema)
	ErrMissingSerializer  = fmt.Errorf("%w: missing serializer", ErrSchema)
	ErrSerializerCycle    = fmt.Errorf("%w: serializer references form a cycle", ErrSchema)
	ErrFieldEncoding      = fmt.Errorf("%w: invalid field encoding", ErrSchema)
	ErrSymbolIndex        = fmt.Errorf("%w: symbol index out of range", ErrSchema)
	ErrSendTablesTooShort = fmt.Errorf("%w: send tables payload shorter than its length prefix", ErrSchema)
)
