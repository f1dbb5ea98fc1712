package nn

import (
	"github.com/papercatnku/DDTrainer/internal/quant"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// channelDim is the NCHW channel axis along which blocks concatenate.
const channelDim = 1

// Combiner merges tensors inside composite blocks.
//
// The float implementation is exactly Backend.Add and Backend.Cat. The QAT
// implementation applies the same operations and then fake-quantizes the
// result, so that the merge point carries its own quantization parameters.
type Combiner interface {
	Add(a, b *tensor.Tensor) (*tensor.Tensor, error)
	Cat(ts []*tensor.Tensor, dim int) (*tensor.Tensor, error)
}

// NewCombiner selects the float or QAT combiner. The QAT combiner uses
// quant.DefaultConfig.
func NewCombiner(backend tensor.Backend, qat bool) (Combiner, error) {
	if !qat {
		return floatCombiner{backend: backend}, nil
	}
	return NewQATCombiner(backend, quant.DefaultConfig())
}

type floatCombiner struct {
	backend tensor.Backend
}

func (c floatCombiner) Add(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return c.backend.Add(a, b)
}

func (c floatCombiner) Cat(ts []*tensor.Tensor, dim int) (*tensor.Tensor, error) {
	return c.backend.Cat(ts, dim)
}

// QATCombiner is a Combiner whose outputs pass through a fake-quant observer.
type QATCombiner struct {
	backend tensor.Backend
	fq      *quant.FakeQuant
}

// NewQATCombiner creates a QAT combiner with its own observer.
func NewQATCombiner(backend tensor.Backend, cfg quant.Config) (*QATCombiner, error) {
	fq, err := quant.New(backend, cfg)
	if err != nil {
		return nil, err
	}
	return &QATCombiner{backend: backend, fq: fq}, nil
}

// Add returns fakequant(a + b).
func (c *QATCombiner) Add(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := c.backend.Add(a, b)
	if err != nil {
		return nil, err
	}
	return c.fq.Forward(y)
}

// Cat returns fakequant(cat(ts, dim)).
func (c *QATCombiner) Cat(ts []*tensor.Tensor, dim int) (*tensor.Tensor, error) {
	y, err := c.backend.Cat(ts, dim)
	if err != nil {
		return nil, err
	}
	return c.fq.Forward(y)
}

// FakeQuant returns the combiner's observer.
func (c *QATCombiner) FakeQuant() *quant.FakeQuant {
	return c.fq
}

// combinerFakeQuants returns the observer of c, if it has one.
func combinerFakeQuants(c Combiner) []*quant.FakeQuant {
	if q, ok := c.(*QATCombiner); ok {
		return []*quant.FakeQuant{q.fq}
	}
	return nil
}

// Fuser is implemented by modules that can fold normalization into their
// convolutions.
type Fuser interface {
	Fuse() error
}

// Quantized is implemented by modules that own fake-quant observers, directly
// or through sub-modules.
type Quantized interface {
	FakeQuants() []*quant.FakeQuant
}

// Fuse folds normalization in m if m supports it.
func Fuse(m Module) error {
	if f, ok := m.(Fuser); ok {
		return f.Fuse()
	}
	return nil
}

// FakeQuants returns every fake-quant observer reachable from m.
func FakeQuants(m Module) []*quant.FakeQuant {
	if q, ok := m.(Quantized); ok {
		return q.FakeQuants()
	}
	return nil
}

// EnableFakeQuant switches fake quantization on or off for every observer in m.
// With it off, QAT combiners behave exactly like float ones.
func EnableFakeQuant(m Module, enabled bool) {
	for _, fq := range FakeQuants(m) {
		fq.EnableFakeQuant(enabled)
	}
}

// EnableObserver freezes or resumes range tracking for every observer in m.
func EnableObserver(m Module, enabled bool) {
	for _, fq := range FakeQuants(m) {
		fq.EnableObserver(enabled)
	}
}

func fuseChildren(children ...child) error {
	for _, c := range children {
		if err := Fuse(c.module); err != nil {
			return err
		}
	}
	return nil
}

func fakeQuantsOf(children ...child) []*quant.FakeQuant {
	var fqs []*quant.FakeQuant
	for _, c := range children {
		fqs = append(fqs, FakeQuants(c.module)...)
	}
	return fqs
}
