package cpu

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Cat concatenates tensors along the specified dimension.
//
// All tensors must have the same shape except along the concatenation dimension.
// Supports negative dim indexing (-1 = last dimension).
//
// Example:
//
//	a := tensor.Zeros(tensor.Shape{1, 16, 8, 8})
//	b := tensor.Zeros(tensor.Shape{1, 32, 8, 8})
//	c, err := backend.Cat([]*tensor.Tensor{a, b}, 1) // Shape: [1, 48, 8, 8]
func (cpu *CPUBackend) Cat(tensors []*tensor.Tensor, dim int) (*tensor.Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("cat: at least one tensor required")
	}

	shape := tensors[0].Shape()
	ndim := len(shape)
	if dim < 0 {
		dim += ndim
	}
	if dim < 0 || dim >= ndim {
		return nil, fmt.Errorf("cat: dimension %d out of range for %dD tensor", dim, ndim)
	}

	total := 0
	for i, t := range tensors {
		ts := t.Shape()
		if len(ts) != ndim {
			return nil, tensor.NewShapeError("cat",
				fmt.Sprintf("tensor %d has %d dimensions, expected %d", i, len(ts), ndim), shapesOf(tensors)...)
		}
		for d := 0; d < ndim; d++ {
			if d == dim {
				continue
			}
			if ts[d] != shape[d] {
				return nil, tensor.NewShapeError("cat",
					fmt.Sprintf("tensor %d dimension %d is %d, expected %d", i, d, ts[d], shape[d]), shapesOf(tensors)...)
			}
		}
		total += ts[dim]
	}

	outShape := shape.Clone()
	outShape[dim] = total
	out, err := tensor.New(outShape)
	if err != nil {
		return nil, fmt.Errorf("cat: %w", err)
	}

	// Every tensor is `outer` blocks of shape[dim]*inner contiguous values.
	outer := tensor.Shape(shape[:dim]).NumElements()
	inner := tensor.Shape(shape[dim+1:]).NumElements()
	od := out.Data()
	rowLen := total * inner

	offset := 0
	for _, t := range tensors {
		chunk := t.Shape()[dim] * inner
		td := t.Data()
		for o := 0; o < outer; o++ {
			copy(od[o*rowLen+offset:o*rowLen+offset+chunk], td[o*chunk:(o+1)*chunk])
		}
		offset += chunk
	}

	return out, nil
}

// StridedSlice2D returns x[..., rowOffset::step, colOffset::step]: every
// step-th row and column of the two trailing (spatial) axes, starting at the
// given offsets. Odd sizes give the offset-0 slice one more row or column.
func (cpu *CPUBackend) StridedSlice2D(x *tensor.Tensor, rowOffset, colOffset, step int) (*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("strided_slice2d: expected at least 2D input, got %dD", len(shape))
	}
	if step <= 0 || rowOffset < 0 || rowOffset >= step || colOffset < 0 || colOffset >= step {
		return nil, fmt.Errorf("strided_slice2d: invalid offsets (%d, %d) for step %d", rowOffset, colOffset, step)
	}

	H, W := shape[len(shape)-2], shape[len(shape)-1]
	HOut := (H - rowOffset + step - 1) / step
	WOut := (W - colOffset + step - 1) / step
	if HOut <= 0 || WOut <= 0 {
		return nil, tensor.NewShapeError("strided_slice2d",
			fmt.Sprintf("offset (%d, %d) selects nothing", rowOffset, colOffset), shape)
	}

	outShape := shape.Clone()
	outShape[len(shape)-2], outShape[len(shape)-1] = HOut, WOut
	out, err := tensor.New(outShape)
	if err != nil {
		return nil, fmt.Errorf("strided_slice2d: %w", err)
	}

	planes := tensor.Shape(shape[:len(shape)-2]).NumElements()
	xd, od := x.Data(), out.Data()
	for p := 0; p < planes; p++ {
		src := xd[p*H*W : (p+1)*H*W]
		dst := od[p*HOut*WOut : (p+1)*HOut*WOut]
		for oh := 0; oh < HOut; oh++ {
			row := src[(rowOffset+oh*step)*W:]
			for ow := 0; ow < WOut; ow++ {
				dst[oh*WOut+ow] = row[colOffset+ow*step]
			}
		}
	}

	return out, nil
}

func shapesOf(tensors []*tensor.Tensor) []tensor.Shape {
	shapes := make([]tensor.Shape, len(tensors))
	for i, t := range tensors {
		shapes[i] = t.Shape()
	}
	return shapes
}
