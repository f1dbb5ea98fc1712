package nn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papercatnku/DDTrainer/internal/backend/cpu"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// recordingBackend forwards to a real backend and logs the merge and
// pooling primitives it sees.
type recordingBackend struct {
	tensor.Backend

	calls []string
	adds  [][2]*tensor.Tensor
	cats  [][]*tensor.Tensor
	pools []poolCall
}

type poolCall struct {
	in, out    *tensor.Tensor
	kernelSize int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{Backend: cpu.New()}
}

func (r *recordingBackend) Add(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	r.calls = append(r.calls, "add")
	r.adds = append(r.adds, [2]*tensor.Tensor{a, b})
	return r.Backend.Add(a, b)
}

func (r *recordingBackend) Cat(ts []*tensor.Tensor, dim int) (*tensor.Tensor, error) {
	r.calls = append(r.calls, "cat")
	r.cats = append(r.cats, ts)
	return r.Backend.Cat(ts, dim)
}

func (r *recordingBackend) MaxPool2D(x *tensor.Tensor, kernelSize, stride, padding int) (*tensor.Tensor, error) {
	r.calls = append(r.calls, "maxpool")
	out, err := r.Backend.MaxPool2D(x, kernelSize, stride, padding)
	r.pools = append(r.pools, poolCall{in: x, out: out, kernelSize: kernelSize})
	return out, err
}

func (r *recordingBackend) FakeQuantize(x *tensor.Tensor, q tensor.QParams) (*tensor.Tensor, error) {
	r.calls = append(r.calls, "fakequantize")
	return r.Backend.FakeQuantize(x, q)
}

func (r *recordingBackend) count(op string) int {
	n := 0
	for _, c := range r.calls {
		if c == op {
			n++
		}
	}
	return n
}

// failingBackend returns err from the named primitive.
type failingBackend struct {
	tensor.Backend
	op  string
	err error
}

func (f *failingBackend) Add(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if f.op == "add" {
		return nil, f.err
	}
	return f.Backend.Add(a, b)
}

func (f *failingBackend) Cat(ts []*tensor.Tensor, dim int) (*tensor.Tensor, error) {
	if f.op == "cat" {
		return nil, f.err
	}
	return f.Backend.Cat(ts, dim)
}

func (f *failingBackend) Conv2D(x, w, b *tensor.Tensor, p tensor.ConvParams) (*tensor.Tensor, error) {
	if f.op == "conv2d" {
		return nil, f.err
	}
	return f.Backend.Conv2D(x, w, b, p)
}

func randn(shape ...int) *tensor.Tensor {
	return tensor.Randn(tensor.Shape(shape), rand.New(rand.NewSource(42))) //nolint:gosec // test data
}

func zeroParameters(m Module) {
	for _, p := range m.Parameters() {
		clear(p.Tensor().Data())
	}
}

// randomizeNorm gives every BatchNorm in sd non-trivial statistics.
func randomizeNorm(sd map[string]*tensor.Tensor, seed int64) {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // test data
	for _, t := range sd {
		data := t.Data()
		for i := range data {
			data[i] = 0.5 + rng.Float32()
		}
	}
}

func assertAllClose(t *testing.T, expected, actual *tensor.Tensor, delta float64) {
	t.Helper()
	require.Equal(t, expected.Shape(), actual.Shape())
	e, a := expected.Data(), actual.Data()
	for i := range e {
		if !assert.InDelta(t, e[i], a[i], delta, "index %d", i) {
			return
		}
	}
}

func TestParameter(t *testing.T) {
	w := tensor.Zeros(tensor.Shape{2, 3})
	p := NewParameter("weight", w)

	assert.Equal(t, "weight", p.Name())
	assert.Same(t, w, p.Tensor())
	assert.Equal(t, 6, p.NumElements())

	src, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	require.NoError(t, p.Load(src))
	assert.Equal(t, src.Data(), w.Data())

	err = p.Load(tensor.Zeros(tensor.Shape{3, 2}))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	assert.ErrorIs(t, p.Load(nil), ErrMissingKey)
}

func TestKaimingUniform_Bound(t *testing.T) {
	w := KaimingUniform(16, tensor.Shape{8, 4, 2, 2})
	for _, v := range w.Data() {
		assert.LessOrEqual(t, v, float32(0.25))
		assert.GreaterOrEqual(t, v, float32(-0.25))
	}
}

func TestCountParameters(t *testing.T) {
	conv, err := NewConv(ConvConfig{InChannels: 4, OutChannels: 8, KernelSize: 3, Stride: 1}, cpu.New())
	require.NoError(t, err)
	// 8*4*3*3 weights + 8 gamma + 8 beta.
	assert.Equal(t, 288+16, CountParameters(conv.Parameters()))
}
