// Copyright 2025 The DDTrainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
//
// Convolutions use im2col followed by a gonum BLAS GEMM per (batch entry,
// group) pair; independent pairs and pooling planes run on a worker pool.
package cpu

import (
	internalcpu "github.com/papercatnku/DDTrainer/internal/backend/cpu"
	"github.com/papercatnku/DDTrainer/internal/parallel"
	"github.com/papercatnku/DDTrainer/tensor"
)

// Backend is the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// ParallelConfig controls kernel parallelism.
type ParallelConfig = parallel.Config

var (
	_ tensor.Backend        = (*Backend)(nil)
	_ tensor.InplaceBackend = (*Backend)(nil)
)

// New creates a CPU backend using all available cores.
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg ParallelConfig) *Backend {
	return internalcpu.NewWithConfig(cfg)
}

// DefaultParallelConfig returns one worker per CPU.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}

// Sequential returns a configuration that disables parallelism.
func Sequential() ParallelConfig {
	return parallel.Sequential()
}
