package tensor

// ConvParams configures a 2D convolution.
type ConvParams struct {
	Stride   int // Stride along both spatial axes
	Padding  int // Zero padding on every spatial border
	Groups   int // Number of channel groups (1 = dense, C_in = depthwise)
	Dilation int // Kernel dilation (1 = none)
}

// NormParams carries the per-channel statistics of a batch normalization.
// All tensors have shape [channels].
type NormParams struct {
	Weight      *Tensor // gamma
	Bias        *Tensor // beta
	RunningMean *Tensor
	RunningVar  *Tensor
	Eps         float32
}

// InterpolateMode selects the resampling kernel of Backend.Interpolate.
type InterpolateMode int

// Supported interpolation modes.
const (
	Nearest InterpolateMode = iota
	Bilinear
)

// String returns the mode name.
func (m InterpolateMode) String() string {
	switch m {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	default:
		return "unknown"
	}
}

// QParams are the affine quantization parameters used to simulate
// fixed-point rounding: q = clamp(round(x/Scale) + ZeroPoint, QuantMin, QuantMax).
type QParams struct {
	Scale     float32
	ZeroPoint int
	QuantMin  int
	QuantMax  int
}

// Backend is the primitive op provider every module computes through.
//
// Backends own the numeric kernels; modules only compose them. Every
// operation returns a freshly allocated tensor and never mutates its
// operands. Operand shape problems are reported as *ShapeError.
//
// Implementations:
//   - backend/cpu: Pure Go, gonum BLAS for convolutions
type Backend interface {
	// Convolution and normalization.
	Conv2D(x, weight, bias *Tensor, p ConvParams) (*Tensor, error) // weight [C_out, C_in/groups, K_h, K_w], bias [C_out] or nil.
	BatchNorm2D(x *Tensor, p NormParams) (*Tensor, error)          // Inference-style normalization with running statistics.

	// Pooling and resampling.
	MaxPool2D(x *Tensor, kernelSize, stride, padding int) (*Tensor, error) // Padding acts as -inf.
	Interpolate(x *Tensor, scale int, mode InterpolateMode) (*Tensor, error)

	// Element-wise activations.
	Sigmoid(x *Tensor) (*Tensor, error)
	ReLU(x *Tensor) (*Tensor, error)
	ReLU6(x *Tensor) (*Tensor, error)
	LeakyReLU(x *Tensor, slope float32) (*Tensor, error)

	// Element-wise binary operations (operands must have equal shapes).
	Add(a, b *Tensor) (*Tensor, error)
	Mul(a, b *Tensor) (*Tensor, error)

	// Manipulation.
	Cat(tensors []*Tensor, dim int) (*Tensor, error)                           // Concatenate along dim.
	StridedSlice2D(x *Tensor, rowOffset, colOffset, step int) (*Tensor, error) // x[..., rowOffset::step, colOffset::step].

	// Quantization simulation.
	FakeQuantize(x *Tensor, q QParams) (*Tensor, error) // Quantize then dequantize.

	// Metadata.
	Name() string
}

// InplaceBackend is implemented by backends that can apply activations
// in place, overwriting their operand.
type InplaceBackend interface {
	ReLUInplace(x *Tensor) error
	ReLU6Inplace(x *Tensor) error
	LeakyReLUInplace(x *Tensor, slope float32) error
}
