// Copyright 2025 The DDTrainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package serialization saves and loads weights as SafeTensors checkpoints.
//
// Example:
//
//	if err := serialization.SaveModule("csp.safetensors", csp, nil); err != nil {
//	    return err
//	}
package serialization

import (
	"github.com/papercatnku/DDTrainer/internal/serialization"
	"github.com/papercatnku/DDTrainer/nn"
	"github.com/papercatnku/DDTrainer/tensor"
)

// ReadOptions controls checkpoint loading.
type ReadOptions = serialization.ReadOptions

// ValidationError describes a rejected checkpoint.
type ValidationError = serialization.ValidationError

// Errors returned while reading checkpoints.
var (
	ErrChecksumMismatch  = serialization.ErrChecksumMismatch
	ErrOffsetOverlap     = serialization.ErrOffsetOverlap
	ErrOutOfBounds       = serialization.ErrOutOfBounds
	ErrInvalidTensorName = serialization.ErrInvalidTensorName
	ErrHeaderTooLarge    = serialization.ErrHeaderTooLarge
	ErrUnsupportedDType  = serialization.ErrUnsupportedDType
	ErrMalformedHeader   = serialization.ErrMalformedHeader
)

// SaveFile writes a state dict to path.
func SaveFile(path string, stateDict map[string]*tensor.Tensor, metadata map[string]string) error {
	return serialization.SaveFile(path, stateDict, metadata)
}

// LoadFile reads a state dict and its metadata from path.
func LoadFile(path string, opts ReadOptions) (map[string]*tensor.Tensor, map[string]string, error) {
	return serialization.LoadFile(path, opts)
}

// SaveModule writes the weights of m to path.
func SaveModule(path string, m nn.Module, metadata map[string]string) error {
	return serialization.SaveModule(path, m, metadata)
}

// LoadModule restores the weights of m from path.
func LoadModule(path string, m nn.Module) error {
	return serialization.LoadModule(path, m)
}
