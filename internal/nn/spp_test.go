package nn

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papercatnku/DDTrainer/internal/backend/cpu"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

func TestSPP_ConcatWidth(t *testing.T) {
	kernelSets := [][]int{{5}, {5, 9}, {5, 9, 13}, {3, 5, 7, 9}}
	for _, kernels := range kernelSets {
		t.Run(fmt.Sprint(kernels), func(t *testing.T) {
			backend := newRecordingBackend()
			s, err := NewSPP(SPPConfig{InChannels: 16, OutChannels: 12, KernelSizes: kernels}, backend)
			require.NoError(t, err)
			assert.Equal(t, 8*(len(kernels)+1), s.ConcatChannels())

			x := randn(1, 16, 10, 10)
			y, err := s.Forward(x)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{1, 12, 10, 10}, y.Shape())

			require.Len(t, backend.cats, 1)
			require.Len(t, backend.cats[0], len(kernels)+1)
			require.Len(t, backend.pools, len(kernels))

			// Pools run in parallel on the conv1 output.
			branch := backend.cats[0][0]
			for i, p := range backend.pools {
				assert.Same(t, branch, p.in)
				assert.Equal(t, kernels[i], p.kernelSize)
				assert.Same(t, p.out, backend.cats[0][i+1])
			}
		})
	}
}

func TestSPPF_ConcatWidth(t *testing.T) {
	for _, kernels := range [][3]int{{5, 5, 5}, {3, 3, 3}, {3, 5, 7}} {
		t.Run(fmt.Sprint(kernels), func(t *testing.T) {
			backend := newRecordingBackend()
			s, err := NewSPPF(SPPFConfig{InChannels: 16, OutChannels: 12, KernelSizes: kernels}, backend)
			require.NoError(t, err)
			assert.Equal(t, 8*4, s.ConcatChannels())

			y, err := s.Forward(randn(2, 16, 9, 9))
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{2, 12, 9, 9}, y.Shape())

			require.Len(t, backend.cats, 1)
			require.Len(t, backend.cats[0], 4)
			require.Len(t, backend.pools, 3)

			// Pools are chained.
			assert.Same(t, backend.cats[0][0], backend.pools[0].in)
			assert.Same(t, backend.pools[0].out, backend.pools[1].in)
			assert.Same(t, backend.pools[1].out, backend.pools[2].in)
			for i, p := range backend.pools {
				assert.Equal(t, kernels[i], p.kernelSize)
				assert.Same(t, p.out, backend.cats[0][i+1])
			}
		})
	}
}

func TestSPPF_MatchesSPP(t *testing.T) {
	// Chained 5x5 pools cover the same windows as parallel 5, 9 and 13 pools.
	backend := cpu.New()
	sppf, err := NewSPPF(DefaultSPPFConfig(8, 8), backend)
	require.NoError(t, err)
	spp, err := NewSPP(DefaultSPPConfig(8, 8), backend)
	require.NoError(t, err)
	require.NoError(t, spp.LoadStateDict(sppf.StateDict()))

	x := randn(1, 8, 16, 16)
	want, err := spp.Forward(x)
	require.NoError(t, err)
	got, err := sppf.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Data())
}

func TestSPP_InvalidConfig(t *testing.T) {
	backend := cpu.New()
	tests := []struct {
		name string
		cfg  SPPConfig
	}{
		{"no kernels", SPPConfig{InChannels: 8, OutChannels: 8}},
		{"even kernel", SPPConfig{InChannels: 8, OutChannels: 8, KernelSizes: []int{5, 8}}},
		{"negative kernel", SPPConfig{InChannels: 8, OutChannels: 8, KernelSizes: []int{-3}}},
		{"one channel", SPPConfig{InChannels: 1, OutChannels: 8, KernelSizes: []int{5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSPP(tt.cfg, backend)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := NewSPPF(SPPFConfig{InChannels: 8, OutChannels: 8, KernelSizes: [3]int{5, 0, 5}}, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSPP_QAT(t *testing.T) {
	backend := newRecordingBackend()
	cfg := DefaultSPPConfig(8, 8)
	cfg.QAT = true
	s, err := NewSPP(cfg, backend)
	require.NoError(t, err)
	require.Len(t, s.FakeQuants(), 1)

	_, err = s.Forward(randn(1, 8, 6, 6))
	require.NoError(t, err)
	assert.Equal(t, []string{"maxpool", "maxpool", "maxpool", "cat", "fakequantize"}, backend.calls)
}

func TestSPPF_FloatHasNoObservers(t *testing.T) {
	s, err := NewSPPF(DefaultSPPFConfig(8, 8), cpu.New())
	require.NoError(t, err)
	assert.Empty(t, s.FakeQuants())
	assert.Empty(t, FakeQuants(s))
}

func TestSPPF_Fuse(t *testing.T) {
	s, err := NewSPPF(DefaultSPPFConfig(8, 6), cpu.New())
	require.NoError(t, err)
	randomizeNorm(s.conv1.BatchNorm().StateDict(), 4)
	randomizeNorm(s.conv2.BatchNorm().StateDict(), 5)

	x := randn(1, 8, 7, 7)
	want, err := s.Forward(x)
	require.NoError(t, err)
	require.NoError(t, s.Fuse())
	got, err := s.Forward(x)
	require.NoError(t, err)
	assertAllClose(t, want, got, 1e-4)
}
