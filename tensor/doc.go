// Copyright 2025 The DDTrainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense float32 tensors and the backend contract
// used by DDTrainer's network blocks.
//
// # Overview
//
// Tensors are row-major float32 arrays. Image tensors follow the NCHW layout:
// axis 0 is the batch and axis 1 the channels.
//
// Every block in package nn computes through a Backend, the primitive op
// provider. Backend operations allocate their result and never mutate their
// operands; operand shape problems are reported as *ShapeError, which
// matches ErrShapeMismatch under errors.Is.
//
// # Basic Usage
//
//	import (
//	    "github.com/papercatnku/DDTrainer/backend/cpu"
//	    "github.com/papercatnku/DDTrainer/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Ones(tensor.Shape{1, 3, 4, 4})
//	    y, err := backend.ReLU(x)
//	    if err != nil {
//	        // handle error
//	    }
//	    _ = y
//	}
package tensor
