package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Parameter is a named tensor owned by a module.
//
// Running statistics of BatchNorm2D are Parameters as well, so that they
// travel with StateDict, but they are not reported by Module.Parameters.
type Parameter struct {
	name   string         // e.g. "weight", "running_var"
	tensor *tensor.Tensor // parameter values
}

// NewParameter wraps t under the given name.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// NumElements returns the number of scalars held by the parameter.
func (p *Parameter) NumElements() int {
	return p.tensor.NumElements()
}

// Load copies src into the parameter. Shapes must match.
func (p *Parameter) Load(src *tensor.Tensor) error {
	if src == nil {
		return fmt.Errorf("%w: %q is nil", ErrMissingKey, p.name)
	}
	if !src.Shape().Equal(p.tensor.Shape()) {
		return tensor.NewShapeError("load "+p.name, "shape mismatch", p.tensor.Shape(), src.Shape())
	}
	copy(p.tensor.Data(), src.Data())
	return nil
}

// CountParameters returns the total number of scalars across params.
func CountParameters(params []*Parameter) int {
	total := 0
	for _, p := range params {
		total += p.NumElements()
	}
	return total
}
