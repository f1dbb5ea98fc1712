package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Activation identifies an element-wise nonlinearity.
//
// The zero value is SiLU, the default of every YOLO block.
type Activation int

// Supported activations.
const (
	SiLU      Activation = iota // x * sigmoid(x)
	ReLU                        // max(0, x)
	LeakyReLU                   // slope 0.1 on the negative side
	ReLU6                       // min(max(0, x), 6)
	Identity                    // no activation
)

// LeakySlope is the negative-side slope used by LeakyReLU.
const LeakySlope float32 = 0.1

var activationNames = map[string]Activation{
	"silu":     SiLU,
	"relu":     ReLU,
	"lrelu":    LeakyReLU,
	"relu6":    ReLU6,
	"identity": Identity,
}

// ParseActivation resolves an activation name.
//
// Accepted names are "silu", "relu", "lrelu", "relu6" and "identity".
// Any other name yields ErrUnsupportedActivation.
func ParseActivation(name string) (Activation, error) {
	if a, ok := activationNames[name]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedActivation, name)
}

// String returns the name accepted by ParseActivation.
func (a Activation) String() string {
	for name, v := range activationNames {
		if v == a {
			return name
		}
	}
	return fmt.Sprintf("Activation(%d)", int(a))
}

// ActivationFunc applies an activation to a tensor.
type ActivationFunc func(x *tensor.Tensor) (*tensor.Tensor, error)

// Func binds the activation to a backend.
//
// With inplace set and a backend implementing tensor.InplaceBackend, ReLU,
// ReLU6 and LeakyReLU overwrite their input and return it. SiLU is always
// computed out of place as x * sigmoid(x).
func (a Activation) Func(backend tensor.Backend, inplace bool) (ActivationFunc, error) {
	ib, canInplace := backend.(tensor.InplaceBackend)
	canInplace = canInplace && inplace

	switch a {
	case SiLU:
		return func(x *tensor.Tensor) (*tensor.Tensor, error) {
			s, err := backend.Sigmoid(x)
			if err != nil {
				return nil, err
			}
			return backend.Mul(x, s)
		}, nil
	case ReLU:
		if canInplace {
			return inplaceFunc(ib.ReLUInplace), nil
		}
		return backend.ReLU, nil
	case ReLU6:
		if canInplace {
			return inplaceFunc(ib.ReLU6Inplace), nil
		}
		return backend.ReLU6, nil
	case LeakyReLU:
		if canInplace {
			return inplaceFunc(func(x *tensor.Tensor) error {
				return ib.LeakyReLUInplace(x, LeakySlope)
			}), nil
		}
		return func(x *tensor.Tensor) (*tensor.Tensor, error) {
			return backend.LeakyReLU(x, LeakySlope)
		}, nil
	case Identity:
		return func(x *tensor.Tensor) (*tensor.Tensor, error) {
			return x, nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedActivation, a)
	}
}

func inplaceFunc(f func(*tensor.Tensor) error) ActivationFunc {
	return func(x *tensor.Tensor) (*tensor.Tensor, error) {
		if err := f(x); err != nil {
			return nil, err
		}
		return x, nil
	}
}

// Activate is a parameterless module applying an activation.
type Activate struct {
	stateless
	kind Activation
	fn   ActivationFunc
}

// NewActivate creates an activation module. The module never modifies its input.
func NewActivate(kind Activation, backend tensor.Backend) (*Activate, error) {
	fn, err := kind.Func(backend, false)
	if err != nil {
		return nil, err
	}
	return &Activate{kind: kind, fn: fn}, nil
}

// Kind returns the activation applied by the module.
func (a *Activate) Kind() Activation {
	return a.kind
}

// Forward applies the activation.
func (a *Activate) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return a.fn(x)
}
