package nn

import (
	"math"
	"math/rand"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// KaimingUniform initializes a convolution weight the way common training
// frameworks do by default (kaiming-uniform with a=sqrt(5)).
//
// Values are drawn from U(-bound, bound) with bound = 1/sqrt(fan_in), where
// fan_in = C_in/groups * K_h * K_w.
func KaimingUniform(fanIn int, shape tensor.Shape) *tensor.Tensor {
	return uniform(shape, 1/math.Sqrt(float64(fanIn)))
}

// Xavier (Glorot) initialization.
//
// Values are drawn from U(-sqrt(6/(fan_in+fan_out)), sqrt(6/(fan_in+fan_out))).
func Xavier(fanIn, fanOut int, shape tensor.Shape) *tensor.Tensor {
	return uniform(shape, math.Sqrt(6.0/float64(fanIn+fanOut)))
}

func uniform(shape tensor.Shape, bound float64) *tensor.Tensor {
	t := tensor.Zeros(shape)
	data := t.Data()
	for i := range data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = float32((rand.Float64()*2.0 - 1.0) * bound)
	}
	return t
}
