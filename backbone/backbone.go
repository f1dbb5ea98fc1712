// Copyright 2025 The DDTrainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package backbone builds backbones from YAML descriptions.
//
// Example:
//
//	b, err := backbone.BuildFile("configs/cspdarknet_s.yaml", cpu.New())
//	if err != nil {
//	    return err
//	}
//	feats, err := b.ForwardFeatures(x)
package backbone

import (
	"github.com/papercatnku/DDTrainer/internal/backbone"
	"github.com/papercatnku/DDTrainer/tensor"
)

// Spec is a backbone description.
type Spec = backbone.Spec

// LayerSpec describes one layer.
type LayerSpec = backbone.LayerSpec

// Backbone is a chain of blocks built from a Spec.
type Backbone = backbone.Backbone

// Layer is one built layer.
type Layer = backbone.Layer

// ErrInvalidSpec is returned for malformed descriptions.
var ErrInvalidSpec = backbone.ErrInvalidSpec

// Parse decodes a YAML description.
func Parse(data []byte) (*Spec, error) { return backbone.Parse(data) }

// Load reads a YAML description file.
func Load(path string) (*Spec, error) { return backbone.Load(path) }

// Build instantiates spec on backend.
func Build(spec *Spec, backend tensor.Backend) (*Backbone, error) {
	return backbone.Build(spec, backend)
}

// BuildFile loads and builds a YAML description.
func BuildFile(path string, backend tensor.Backend) (*Backbone, error) {
	return backbone.BuildFile(path, backend)
}
