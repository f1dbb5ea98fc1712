package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papercatnku/DDTrainer/internal/backend/cpu"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

func TestBottleneck_ShortcutAddsInput(t *testing.T) {
	backend := newRecordingBackend()
	b, err := NewBottleneck(DefaultBottleneckConfig(8, 8), backend)
	require.NoError(t, err)
	require.True(t, b.UsesShortcut())

	x := randn(2, 8, 6, 6)
	y, err := b.Forward(x)
	require.NoError(t, err)

	require.Equal(t, 1, backend.count("add"))
	assert.Same(t, x, backend.adds[0][1])

	mid, err := b.conv1.Forward(x)
	require.NoError(t, err)
	branch, err := b.conv2.Forward(mid)
	require.NoError(t, err)

	for i, v := range y.Data() {
		assert.Equal(t, branch.Data()[i]+x.Data()[i], v, "index %d", i)
	}
}

func TestBottleneck_NoShortcut(t *testing.T) {
	tests := []struct {
		name string
		cfg  BottleneckConfig
	}{
		{"channel change", DefaultBottleneckConfig(8, 16)},
		{"disabled", BottleneckConfig{InChannels: 8, OutChannels: 8, Expansion: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newRecordingBackend()
			b, err := NewBottleneck(tt.cfg, backend)
			require.NoError(t, err)
			assert.False(t, b.UsesShortcut())

			y, err := b.Forward(randn(1, 8, 4, 4))
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{1, tt.cfg.OutChannels, 4, 4}, y.Shape())
			assert.Zero(t, backend.count("add"))
		})
	}
}

func TestBottleneck_ZeroWeightsIsIdentity(t *testing.T) {
	b, err := NewBottleneck(DefaultBottleneckConfig(64, 64), cpu.New())
	require.NoError(t, err)
	zeroParameters(b)

	x := randn(1, 64, 8, 8)
	y, err := b.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, x.Data(), y.Data())
	assert.Equal(t, x.Shape(), y.Shape())
}

func TestBottleneck_Depthwise(t *testing.T) {
	b, err := NewBottleneck(BottleneckConfig{
		InChannels: 16, OutChannels: 16, Shortcut: true, Expansion: 0.5, Depthwise: true,
	}, cpu.New())
	require.NoError(t, err)

	dw, ok := b.conv2.(*DWConv)
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{8, 1, 3, 3}, dw.Depthwise().Conv2D().Weight().Tensor().Shape())
	assert.Contains(t, b.StateDict(), "conv2.dconv.conv.weight")

	y, err := b.Forward(randn(1, 16, 5, 5))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 16, 5, 5}, y.Shape())
}

func TestBottleneck_QATShortcut(t *testing.T) {
	backend := newRecordingBackend()
	cfg := DefaultBottleneckConfig(4, 4)
	cfg.QAT = true
	b, err := NewBottleneck(cfg, backend)
	require.NoError(t, err)
	require.Len(t, b.FakeQuants(), 1)

	_, err = b.Forward(randn(1, 4, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "fakequantize"}, backend.calls)

	_, _, observed := b.FakeQuants()[0].Range()
	assert.True(t, observed)
}

func TestBottleneck_QATDisabledMatchesFloat(t *testing.T) {
	backend := cpu.New()
	floatB, err := NewBottleneck(DefaultBottleneckConfig(4, 4), backend)
	require.NoError(t, err)

	cfg := DefaultBottleneckConfig(4, 4)
	cfg.QAT = true
	qatB, err := NewBottleneck(cfg, backend)
	require.NoError(t, err)
	require.NoError(t, qatB.LoadStateDict(floatB.StateDict()))
	EnableFakeQuant(qatB, false)

	x := randn(1, 4, 6, 6)
	want, err := floatB.Forward(x)
	require.NoError(t, err)
	got, err := qatB.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Data())
}

func TestBottleneck_InvalidConfig(t *testing.T) {
	_, err := NewBottleneck(BottleneckConfig{InChannels: 4, OutChannels: 1, Expansion: 0.5}, cpu.New())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := DefaultBottleneckConfig(4, 4)
	cfg.Act = Activation(-1)
	_, err = NewBottleneck(cfg, cpu.New())
	assert.ErrorIs(t, err, ErrUnsupportedActivation)
}

func TestBottleneck_ShortcutShapeErrorPropagates(t *testing.T) {
	injected := tensor.NewShapeError("add", "injected")
	backend := &failingBackend{Backend: cpu.New(), op: "add", err: injected}
	b, err := NewBottleneck(DefaultBottleneckConfig(4, 4), backend)
	require.NoError(t, err)

	_, err = b.Forward(randn(1, 4, 4, 4))
	assert.Same(t, injected, err)
}

func TestResLayer(t *testing.T) {
	backend := newRecordingBackend()
	r, err := NewResLayer(8, backend)
	require.NoError(t, err)
	assert.Equal(t, LeakyReLU, r.layer1.Activation())
	assert.Equal(t, 4, r.layer1.OutChannels())

	x := randn(1, 8, 5, 5)
	y, err := r.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), y.Shape())

	require.Equal(t, 1, backend.count("add"))
	assert.Same(t, x, backend.adds[0][0])
	assert.Zero(t, backend.count("fakequantize"))

	zeroParameters(r)
	y, err = r.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, x.Data(), y.Data())

	_, err = NewResLayer(1, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDWConv(t *testing.T) {
	backend := cpu.New()

	d, err := NewDWConv(DWConvConfig{InChannels: 6, OutChannels: 10, KernelSize: 3, Stride: 2}, backend)
	require.NoError(t, err)
	assert.Equal(t, 6, d.Depthwise().Conv2D().Config().Groups)
	assert.Equal(t, 1, d.Pointwise().Conv2D().Config().Groups)

	y, err := d.Forward(randn(1, 6, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 10, 4, 4}, y.Shape())

	grouped, err := NewDWConv(DWConvConfig{InChannels: 6, OutChannels: 4, KernelSize: 3, Stride: 1, Groups: 3}, backend)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{6, 2, 3, 3}, grouped.Depthwise().Conv2D().Weight().Tensor().Shape())
}

func TestDWConv_InvalidGrouping(t *testing.T) {
	_, err := NewDWConv(DWConvConfig{InChannels: 6, OutChannels: 4, KernelSize: 3, Stride: 1, Groups: 4}, cpu.New())
	assert.ErrorIs(t, err, ErrInvalidGrouping)

	_, err = NewDWConv(DWConvConfig{InChannels: 0, OutChannels: 4, KernelSize: 3, Stride: 1}, cpu.New())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDWConv_Fuse(t *testing.T) {
	d, err := NewDWConv(DWConvConfig{InChannels: 4, OutChannels: 4, KernelSize: 3, Stride: 1}, cpu.New())
	require.NoError(t, err)
	randomizeNorm(d.Depthwise().BatchNorm().StateDict(), 1)
	randomizeNorm(d.Pointwise().BatchNorm().StateDict(), 2)

	x := randn(1, 4, 5, 5)
	want, err := d.Forward(x)
	require.NoError(t, err)
	require.NoError(t, Fuse(d))
	got, err := d.ForwardFused(x)
	require.NoError(t, err)
	assertAllClose(t, want, got, 1e-4)
}
