package cpu

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/papercatnku/DDTrainer/internal/quant"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// FakeQuantize simulates affine fixed-point rounding in float32:
//
//	q = clamp(round_half_even(x / scale) + zero_point, quant_min, quant_max)
//	y = (q - zero_point) * scale
//
// The result stays float32 but only takes values on the quantization grid.
func (cpu *CPUBackend) FakeQuantize(x *tensor.Tensor, q tensor.QParams) (*tensor.Tensor, error) {
	if !(q.Scale > 0) {
		return nil, fmt.Errorf("fake_quantize: scale must be positive, got %v", q.Scale)
	}
	if q.QuantMin >= q.QuantMax {
		return nil, fmt.Errorf("fake_quantize: empty range [%d, %d]", q.QuantMin, q.QuantMax)
	}
	if q.ZeroPoint < q.QuantMin || q.ZeroPoint > q.QuantMax {
		return nil, fmt.Errorf("fake_quantize: zero point %d outside [%d, %d]", q.ZeroPoint, q.QuantMin, q.QuantMax)
	}

	inv := 1 / q.Scale
	zp := float32(q.ZeroPoint)
	lo, hi := float32(q.QuantMin), float32(q.QuantMax)
	return unary(x, func(v float32) float32 {
		level := math32.Min(math32.Max(quant.RoundHalfEven(v*inv)+zp, lo), hi)
		return (level - zp) * q.Scale
	})
}
