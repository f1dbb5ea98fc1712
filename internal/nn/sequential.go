package nn

import (
	"strconv"

	"github.com/papercatnku/DDTrainer/internal/quant"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Sequential chains modules: each module's output becomes the next one's input.
//
// An empty Sequential returns its input unchanged, which is how a CSP layer
// with zero bottlenecks behaves.
//
// Example:
//
//	neck := nn.NewSequential(stem, csp, sppf)
//	y, err := neck.Forward(x)
type Sequential struct {
	modules []Module
}

// NewSequential creates a Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Forward applies all modules in order and stops at the first error.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	for _, m := range s.modules {
		var err error
		if out, err = m.Forward(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Add appends a module to the sequence.
func (s *Sequential) Add(m Module) {
	s.modules = append(s.modules, m)
}

// Len returns the number of modules in the sequence.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential) Module(index int) Module {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// children names modules by their index ("0", "1", ...).
func (s *Sequential) children() []child {
	ch := make([]child, len(s.modules))
	for i, m := range s.modules {
		ch[i] = child{name: strconv.Itoa(i), module: m}
	}
	return ch
}

// Parameters returns all trainable parameters from all modules.
func (s *Sequential) Parameters() []*Parameter { return parametersOf(s.children()...) }

// StateDict prefixes each module's entries with its index (e.g. "0.conv.weight").
func (s *Sequential) StateDict() map[string]*tensor.Tensor { return stateDictOf(s.children()...) }

// LoadStateDict loads index-prefixed entries into each module.
func (s *Sequential) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadStateDictOf(stateDict, s.children()...)
}

// Fuse folds normalization in every module that supports it.
func (s *Sequential) Fuse() error { return fuseChildren(s.children()...) }

// FakeQuants returns the observers of all modules.
func (s *Sequential) FakeQuants() []*quant.FakeQuant { return fakeQuantsOf(s.children()...) }
