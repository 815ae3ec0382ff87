package sendtables

import (
	"fmt"
	"math"

	"github.com/dbalders/demoparser/bitstream"
)

// Quantized float encode flags.
const (
	QuantizeRoundDown      uint32 = 1 << 0
	QuantizeRoundUp        uint32 = 1 << 1
	QuantizeEncodeZero     uint32 = 1 << 2
	QuantizeEncodeIntegers uint32 = 1 << 3
)

// QuantizedFloat decodes a float packed as a bit count fraction of the range
// [Low, High], with optional exact encodings for Low, High and zero.
type QuantizedFloat struct {
	Low      float32
	High     float32
	BitCount uint
	Flags    uint32

	highLowMul float32
	decMul     float32
	offset     float32
}

// NewQuantizedFloat derives the decode parameters the encoder used. The
// adjustments mirror the encoder exactly; decoded values depend on all of
// them.
func NewQuantizedFloat(bitCount int32, flags int32, low, high float32) (*QuantizedFloat, error) {
	if bitCount <= 0 || bitCount >= 32 {
		return nil, fmt.Errorf("%w: quantized float with %d bits", ErrFieldEncoding, bitCount)
	}
	q := &QuantizedFloat{
		Low:      low,
		High:     high,
		BitCount: uint(bitCount),
		Flags:    uint32(flags),
	}
	if err := q.validateFlags(); err != nil {
		return nil, err
	}

	steps := uint32(1) << q.BitCount
	if q.Flags&QuantizeRoundDown != 0 {
		q.offset = (q.High - q.Low) / float32(steps)
		q.High -= q.offset
	} else if q.Flags&QuantizeRoundUp != 0 {
		q.offset = (q.High - q.Low) / float32(steps)
		q.Low += q.offset
	}

	if q.Flags&QuantizeEncodeIntegers != 0 {
		delta := q.High - q.Low
		if delta < 1 {
			delta = 1
		}
		rangeLog2 := uint(math.Ceil(math.Log2(float64(delta))))
		rng := uint32(1) << rangeLog2
		bc := q.BitCount
		for uint32(1)<<bc <= rng {
			bc++
		}
		if bc >= 32 {
			return nil, fmt.Errorf("%w: integer range %d needs %d bits", ErrFieldEncoding, rng, bc)
		}
		if bc > q.BitCount {
			q.BitCount = bc
			steps = uint32(1) << q.BitCount
		}
		q.offset = float32(rng) / float32(steps)
		q.High = q.Low + float32(rng) - q.offset
	}

	if err := q.assignMultipliers(steps); err != nil {
		return nil, err
	}

	// drop flags whose special case the plain encoding already hits exactly
	if q.Flags&QuantizeRoundDown != 0 && q.quantize(q.Low) == q.Low {
		q.Flags &^= QuantizeRoundDown
	}
	if q.Flags&QuantizeRoundUp != 0 && q.quantize(q.High) == q.High {
		q.Flags &^= QuantizeRoundUp
	}
	if q.Flags&QuantizeEncodeZero != 0 && q.quantize(0) == 0 {
		q.Flags &^= QuantizeEncodeZero
	}
	return q, nil
}

func (q *QuantizedFloat) validateFlags() error {
	if q.Flags == 0 {
		return nil
	}
	if (q.Low == 0 && q.Flags&QuantizeRoundDown != 0) || (q.High == 0 && q.Flags&QuantizeRoundUp != 0) {
		q.Flags &^= QuantizeEncodeZero
	}
	if q.Low == 0 && q.Flags&QuantizeEncodeZero != 0 {
		q.Flags |= QuantizeRoundDown
		q.Flags &^= QuantizeEncodeZero
	}
	if q.High == 0 && q.Flags&QuantizeEncodeZero != 0 {
		q.Flags |= QuantizeRoundUp
		q.Flags &^= QuantizeEncodeZero
	}
	if q.Low > 0 || q.High < 0 {
		q.Flags &^= QuantizeEncodeZero
	}
	if q.Flags&QuantizeEncodeIntegers != 0 {
		q.Flags &^= QuantizeRoundUp | QuantizeRoundDown | QuantizeEncodeZero
	}
	if q.Flags&(QuantizeRoundDown|QuantizeRoundUp) == QuantizeRoundDown|QuantizeRoundUp {
		return fmt.Errorf("%w: round down and round up are mutually exclusive", ErrFieldEncoding)
	}
	return nil
}

var multiplierBackoff = []float32{0.9999, 0.99, 0.9, 0.8, 0.7}

func (q *QuantizedFloat) assignMultipliers(steps uint32) error {
	rng := q.High - q.Low
	high := uint32(1)<<q.BitCount - 1

	var mul float32
	if math.Abs(float64(rng)) <= 0 {
		mul = float32(high)
	} else {
		mul = float32(high) / rng
	}
	if mul*rng > float32(high) || float64(mul*rng) > float64(high) {
		for _, m := range multiplierBackoff {
			mul = float32(high) / rng * m
			if mul*rng > float32(high) || float64(mul*rng) > float64(high) {
				continue
			}
			break
		}
	}
	if mul == 0 {
		return fmt.Errorf("%w: quantized float range [%v, %v] has no multiplier", ErrFieldEncoding, q.Low, q.High)
	}
	q.highLowMul = mul
	q.decMul = 1.0 / float32(steps-1)
	return nil
}

// quantize reproduces the encoder's rounding of v. Values outside the range
// clamp.
func (q *QuantizedFloat) quantize(v float32) float32 {
	if v < q.Low {
		return q.Low
	}
	if v > q.High {
		return q.High
	}
	i := uint32((v - q.Low) * q.highLowMul)
	return q.Low + (q.High-q.Low)*(float32(i)*q.decMul)
}

func (q *QuantizedFloat) Decode(r *bitstream.Reader) float32 {
	if q.Flags&QuantizeRoundDown != 0 && r.ReadBoolean() {
		return q.Low
	}
	if q.Flags&QuantizeRoundUp != 0 && r.ReadBoolean() {
		return q.High
	}
	if q.Flags&QuantizeEncodeZero != 0 && r.ReadBoolean() {
		return 0
	}
	return q.Low + (q.High-q.Low)*float32(r.ReadBits(q.BitCount))*q.decMul
}
