package bitstream

import "math/bits"

// ClassIDBits returns the width of the class id field read from entity
// create records, given the server's advertised class count.
//
// The width is ceil(log2(maxClasses+1)), which for any non negative count is
// exactly the bit length of maxClasses.
func ClassIDBits(maxClasses uint32) uint {
	return uint(bits.Len32(maxClasses))
}
