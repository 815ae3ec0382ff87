package bitstream

import "errors"

var (
	ErrTruncated      = errors.New("bitstream: read past end of buffer")
	ErrBitCount       = errors.New("bitstream: bit count out of range")
	ErrVarintOverflow = errors.New("bitstream: varint overflows its declared width")
)

var (
	ErrHuffmanEmpty         = errors.New("bitstream: huffman symbol set is empty")
	ErrHuffmanCodeTooLong   = errors.New("bitstream: huffman codeword exceeds 32 bits")
	ErrHuffmanNotPrefixFree = errors.New("bitstream: huffman code is not prefix free")
)
