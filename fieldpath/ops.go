package fieldpath

import (
	"fmt"

	"github.com/dbalders/demoparser/bitstream"
)

// Op is a field path operation. The numeric value is the huffman symbol.
type Op int

const (
	PlusOne Op = iota
	PlusTwo
	PlusThree
	PlusFour
	PlusN
	PushOneLeftDeltaZeroRightZero
	PushOneLeftDeltaZeroRightNonZero
	PushOneLeftDeltaOneRightZero
	PushOneLeftDeltaOneRightNonZero
	PushOneLeftDeltaNRightZero
	PushOneLeftDeltaNRightNonZero
	PushOneLeftDeltaNRightNonZeroPack6Bits
	PushOneLeftDeltaNRightNonZeroPack8Bits
	PushTwoLeftDeltaZero
	PushTwoPack5LeftDeltaZero
	PushThreeLeftDeltaZero
	PushThreePack5LeftDeltaZero
	PushTwoLeftDeltaOne
	PushTwoPack5LeftDeltaOne
	PushThreeLeftDeltaOne
	PushThreePack5LeftDeltaOne
	PushTwoLeftDeltaN
	PushTwoPack5LeftDeltaN
	PushThreeLeftDeltaN
	PushThreePack5LeftDeltaN
	PushN
	PushNAndNonTopological
	PopOnePlusOne
	PopOnePlusN
	PopAllButOnePlusOne
	PopAllButOnePlusN
	PopAllButOnePlusNPack3Bits
	PopAllButOnePlusNPack6Bits
	PopNPlusOne
	PopNPlusN
	PopNAndNonTopographical
	NonTopoComplex
	NonTopoPenultimatePlusOne
	NonTopoComplexPack4Bits
	FieldPathEncodeFinish

	NumOps
)

// opState is the mutable state one operation acts on.
type opState struct {
	fp FieldPath
	r  *bitstream.Reader
}

func (s *opState) fpvar() int32 { return int32(s.r.ReadUBitVarFieldPath()) }

func (s *opState) add(v int32) { s.fp.Path[s.fp.Last] += v }

// pushN pushes n levels, each read by next.
func (s *opState) pushN(n int, next func() int32) error {
	for i := 0; i < n; i++ {
		if err := s.fp.push(next()); err != nil {
			return err
		}
	}
	return nil
}

// nonTopo conditionally adjusts every level by delta().
func (s *opState) nonTopo(delta func() int32) {
	for i := 0; i <= s.fp.Last; i++ {
		if s.r.ReadBoolean() {
			s.fp.Path[i] += delta()
		}
	}
}

type opDef struct {
	name   string
	weight int
	apply  func(s *opState) error
}

func (s *opState) bits(n uint) func() int32 {
	return func() int32 { return int32(s.r.ReadBits(n)) }
}

func plus(n int32) func(*opState) error {
	return func(s *opState) error { s.add(n); return nil }
}

// pushFixed builds the PushTwo/PushThree family: an adjustment of the current
// level followed by count pushes of fpvar or 5 bit operands.
func pushFixed(count int, delta func(*opState) int32, pack5 bool) func(*opState) error {
	return func(s *opState) error {
		s.add(delta(s))
		next := s.fpvar
		if pack5 {
			next = s.bits(5)
		}
		return s.pushN(count, next)
	}
}

func deltaZero(*opState) int32 { return 0 }
func deltaOne(*opState) int32  { return 1 }
func deltaN(s *opState) int32  { return int32(s.r.ReadUBitVar()) + 2 }

func signedDelta(s *opState) int32 { return s.r.ReadVarInt32() }

// ops is the protocol constant operation table. Order is symbol order and the
// weights build the shared huffman tree, so neither may change.
var ops = [NumOps]opDef{
	PlusOne:   {"PlusOne", 36271, plus(1)},
	PlusTwo:   {"PlusTwo", 10334, plus(2)},
	PlusThree: {"PlusThree", 1375, plus(3)},
	PlusFour:  {"PlusFour", 646, plus(4)},
	PlusN: {"PlusN", 4128, func(s *opState) error {
		s.add(s.fpvar() + 5)
		return nil
	}},
	PushOneLeftDeltaZeroRightZero: {"PushOneLeftDeltaZeroRightZero", 35, func(s *opState) error {
		return s.fp.push(0)
	}},
	PushOneLeftDeltaZeroRightNonZero: {"PushOneLeftDeltaZeroRightNonZero", 3, func(s *opState) error {
		return s.fp.push(s.fpvar())
	}},
	PushOneLeftDeltaOneRightZero: {"PushOneLeftDeltaOneRightZero", 521, func(s *opState) error {
		s.add(1)
		return s.fp.push(0)
	}},
	PushOneLeftDeltaOneRightNonZero: {"PushOneLeftDeltaOneRightNonZero", 2942, func(s *opState) error {
		s.add(1)
		return s.fp.push(s.fpvar())
	}},
	PushOneLeftDeltaNRightZero: {"PushOneLeftDeltaNRightZero", 560, func(s *opState) error {
		s.add(s.fpvar())
		return s.fp.push(0)
	}},
	PushOneLeftDeltaNRightNonZero: {"PushOneLeftDeltaNRightNonZero", 471, func(s *opState) error {
		s.add(s.fpvar() + 2)
		return s.fp.push(s.fpvar() + 1)
	}},
	PushOneLeftDeltaNRightNonZeroPack6Bits: {"PushOneLeftDeltaNRightNonZeroPack6Bits", 10530, func(s *opState) error {
		s.add(int32(s.r.ReadBits(3)) + 2)
		return s.fp.push(int32(s.r.ReadBits(3)) + 1)
	}},
	PushOneLeftDeltaNRightNonZeroPack8Bits: {"PushOneLeftDeltaNRightNonZeroPack8Bits", 251, func(s *opState) error {
		s.add(int32(s.r.ReadBits(4)) + 2)
		return s.fp.push(int32(s.r.ReadBits(4)) + 1)
	}},
	PushTwoLeftDeltaZero:        {"PushTwoLeftDeltaZero", 0, pushFixed(2, deltaZero, false)},
	PushTwoPack5LeftDeltaZero:   {"PushTwoPack5LeftDeltaZero", 0, pushFixed(2, deltaZero, true)},
	PushThreeLeftDeltaZero:      {"PushThreeLeftDeltaZero", 0, pushFixed(3, deltaZero, false)},
	PushThreePack5LeftDeltaZero: {"PushThreePack5LeftDeltaZero", 0, pushFixed(3, deltaZero, true)},
	PushTwoLeftDeltaOne:         {"PushTwoLeftDeltaOne", 0, pushFixed(2, deltaOne, false)},
	PushTwoPack5LeftDeltaOne:    {"PushTwoPack5LeftDeltaOne", 0, pushFixed(2, deltaOne, true)},
	PushThreeLeftDeltaOne:       {"PushThreeLeftDeltaOne", 0, pushFixed(3, deltaOne, false)},
	PushThreePack5LeftDeltaOne:  {"PushThreePack5LeftDeltaOne", 0, pushFixed(3, deltaOne, true)},
	PushTwoLeftDeltaN:           {"PushTwoLeftDeltaN", 0, pushFixed(2, deltaN, false)},
	PushTwoPack5LeftDeltaN:      {"PushTwoPack5LeftDeltaN", 0, pushFixed(2, deltaN, true)},
	PushThreeLeftDeltaN:         {"PushThreeLeftDeltaN", 0, pushFixed(3, deltaN, false)},
	PushThreePack5LeftDeltaN:    {"PushThreePack5LeftDeltaN", 0, pushFixed(3, deltaN, true)},
	PushN: {"PushN", 0, func(s *opState) error {
		n := int(s.r.ReadUBitVar())
		s.add(int32(s.r.ReadUBitVar()))
		return s.pushN(n, s.fpvar)
	}},
	PushNAndNonTopological: {"PushNAndNonTopological", 310, func(s *opState) error {
		s.nonTopo(func() int32 { return s.r.ReadVarInt32() + 1 })
		n := int(s.r.ReadUBitVar())
		return s.pushN(n, s.fpvar)
	}},
	PopOnePlusOne: {"PopOnePlusOne", 2, func(s *opState) error {
		if err := s.fp.pop(1); err != nil {
			return err
		}
		s.add(1)
		return nil
	}},
	PopOnePlusN: {"PopOnePlusN", 0, func(s *opState) error {
		if err := s.fp.pop(1); err != nil {
			return err
		}
		s.add(s.fpvar() + 1)
		return nil
	}},
	PopAllButOnePlusOne: {"PopAllButOnePlusOne", 1837, func(s *opState) error {
		s.fp.pop(s.fp.Last)
		s.add(1)
		return nil
	}},
	PopAllButOnePlusN: {"PopAllButOnePlusN", 149, func(s *opState) error {
		s.fp.pop(s.fp.Last)
		s.add(s.fpvar() + 1)
		return nil
	}},
	PopAllButOnePlusNPack3Bits: {"PopAllButOnePlusNPack3Bits", 300, func(s *opState) error {
		s.fp.pop(s.fp.Last)
		s.add(int32(s.r.ReadBits(3)) + 1)
		return nil
	}},
	PopAllButOnePlusNPack6Bits: {"PopAllButOnePlusNPack6Bits", 634, func(s *opState) error {
		s.fp.pop(s.fp.Last)
		s.add(int32(s.r.ReadBits(6)) + 1)
		return nil
	}},
	PopNPlusOne: {"PopNPlusOne", 0, func(s *opState) error {
		if err := s.fp.pop(int(s.fpvar())); err != nil {
			return err
		}
		s.add(1)
		return nil
	}},
	PopNPlusN: {"PopNPlusN", 0, func(s *opState) error {
		if err := s.fp.pop(int(s.fpvar())); err != nil {
			return err
		}
		s.add(s.r.ReadVarInt32())
		return nil
	}},
	PopNAndNonTopographical: {"PopNAndNonTopographical", 1, func(s *opState) error {
		if err := s.fp.pop(int(s.fpvar())); err != nil {
			return err
		}
		s.nonTopo(func() int32 { return signedDelta(s) })
		return nil
	}},
	NonTopoComplex: {"NonTopoComplex", 76, func(s *opState) error {
		s.nonTopo(func() int32 { return signedDelta(s) })
		return nil
	}},
	NonTopoPenultimatePlusOne: {"NonTopoPenultimatePlusOne", 271, func(s *opState) error {
		if s.fp.Last < 1 {
			return ErrPathUnderflow
		}
		s.fp.Path[s.fp.Last-1]++
		return nil
	}},
	NonTopoComplexPack4Bits: {"NonTopoComplexPack4Bits", 99, func(s *opState) error {
		s.nonTopo(func() int32 { return int32(s.r.ReadBits(4)) - 7 })
		return nil
	}},
	FieldPathEncodeFinish: {"FieldPathEncodeFinish", 25474, nil},
}

func (o Op) String() string {
	if o < 0 || o >= NumOps {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return ops[o].name
}

// Weights returns the per symbol weights of the operation table.
func Weights() []int {
	w := make([]int, NumOps)
	for i := range ops {
		w[i] = ops[i].weight
	}
	return w
}

var tree = mustBuildTree()

func mustBuildTree() *bitstream.HuffmanTree {
	t, err := bitstream.NewHuffmanTree(Weights())
	if err != nil {
		panic(fmt.Sprintf("fieldpath: operation table does not form a prefix code: %v", err))
	}
	return t
}

// Tree returns the huffman tree over the operation table. It is built once
// and is safe for concurrent use by any number of decoders.
func Tree() *bitstream.HuffmanTree { return tree }
