// Package nn implements the convolutional building blocks of YOLO-style
// backbones and necks.
//
// Every block is a Module: it owns its sub-modules and parameters, and runs
// all arithmetic through a tensor.Backend. Errors raised by the backend
// (shape mismatches in particular) are returned unmodified.
//
// Blocks that merge tensors (Bottleneck, SPP, SPPF, CSP, Focus) carry a
// Combiner chosen at construction, either plain float arithmetic or a
// fake-quantizing one for quantization-aware training.
package nn

import (
	"fmt"
	"strings"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Module is the interface implemented by every block.
type Module interface {
	// Forward computes the output of the module for input x.
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)

	// Parameters returns all trainable parameters of this module,
	// including those of nested modules.
	Parameters() []*Parameter

	// StateDict returns the module's tensors keyed by dotted path
	// (e.g. "conv1.bn.running_mean"). Tensors are shared, not copied.
	StateDict() map[string]*tensor.Tensor

	// LoadStateDict copies values from stateDict into the module's tensors.
	// Every key the module owns must be present with a matching shape.
	// Keys the module does not own are ignored.
	LoadStateDict(stateDict map[string]*tensor.Tensor) error
}

// child is a named sub-module.
type child struct {
	name   string
	module Module
}

func parametersOf(children ...child) []*Parameter {
	var params []*Parameter
	for _, c := range children {
		params = append(params, c.module.Parameters()...)
	}
	return params
}

func stateDictOf(children ...child) map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor)
	for _, c := range children {
		for k, v := range c.module.StateDict() {
			sd[c.name+"."+k] = v
		}
	}
	return sd
}

func loadStateDictOf(stateDict map[string]*tensor.Tensor, children ...child) error {
	for _, c := range children {
		if err := c.module.LoadStateDict(subDict(stateDict, c.name)); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// subDict returns the entries under prefix with the prefix stripped.
func subDict(stateDict map[string]*tensor.Tensor, prefix string) map[string]*tensor.Tensor {
	p := prefix + "."
	sub := make(map[string]*tensor.Tensor)
	for k, v := range stateDict {
		if rest, ok := strings.CutPrefix(k, p); ok {
			sub[rest] = v
		}
	}
	return sub
}

// loadParams copies the named entries of stateDict into params.
func loadParams(stateDict map[string]*tensor.Tensor, params ...*Parameter) error {
	for _, p := range params {
		src, ok := stateDict[p.Name()]
		if !ok {
			return fmt.Errorf("%w: %q", ErrMissingKey, p.Name())
		}
		if err := p.Load(src); err != nil {
			return err
		}
	}
	return nil
}

// stateless provides the Module bookkeeping for blocks without tensors.
type stateless struct{}

func (stateless) Parameters() []*Parameter { return nil }

func (stateless) StateDict() map[string]*tensor.Tensor { return map[string]*tensor.Tensor{} }

func (stateless) LoadStateDict(map[string]*tensor.Tensor) error { return nil }

var (
	_ Module = (*Conv2D)(nil)
	_ Module = (*BatchNorm2D)(nil)
	_ Module = (*Conv)(nil)
	_ Module = (*DWConv)(nil)
	_ Module = (*Bottleneck)(nil)
	_ Module = (*ResLayer)(nil)
	_ Module = (*SPP)(nil)
	_ Module = (*SPPF)(nil)
	_ Module = (*CSP)(nil)
	_ Module = (*Focus)(nil)
	_ Module = (*MaxPool2D)(nil)
	_ Module = (*UpSample)(nil)
	_ Module = (*Activate)(nil)
	_ Module = (*Sequential)(nil)

	_ Fuser     = (*Conv)(nil)
	_ Fuser     = (*CSP)(nil)
	_ Quantized = (*CSP)(nil)
	_ Quantized = (*Sequential)(nil)
)
