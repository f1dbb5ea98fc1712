package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papercatnku/DDTrainer/tensor"
)

func TestRun_Version(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, run([]string{"version"}, &buf))
	assert.Contains(t, buf.String(), version)
}

func TestRun_UnknownCommand(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, run([]string{"train"}, &buf))
	assert.Contains(t, buf.String(), "Commands:")
}

func TestRun_Inspect(t *testing.T) {
	var buf bytes.Buffer
	cfg := filepath.Join("..", "..", "configs", "darknet_tiny_qat.yaml")
	require.NoError(t, run([]string{"inspect", "-config", cfg, "-input", "1,3,32,32", "-workers", "2"}, &buf))

	out := buf.String()
	assert.Contains(t, out, "stem")
	assert.Contains(t, out, "[1 64 4 4]")
	assert.Contains(t, out, "total parameters:")
	assert.Contains(t, out, "fake-quant observers: 1")
}

func TestRun_InspectErrors(t *testing.T) {
	cfg := filepath.Join("..", "..", "configs", "darknet_tiny_qat.yaml")
	tests := []struct {
		name string
		args []string
	}{
		{"missing config", []string{"inspect"}},
		{"bad shape", []string{"inspect", "-config", cfg, "-input", "1,3,32"}},
		{"channel mismatch", []string{"inspect", "-config", cfg, "-input", "1,4,32,32"}},
		{"missing file", []string{"inspect", "-config", "nope.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Error(t, run(tt.args, &buf))
		})
	}
}

func TestRun_ExportThenInspect(t *testing.T) {
	cfg := filepath.Join("..", "..", "configs", "darknet_tiny_qat.yaml")
	ckpt := filepath.Join(t.TempDir(), "tiny.safetensors")

	var buf bytes.Buffer
	require.NoError(t, run([]string{"export", "-config", cfg, "-out", ckpt}, &buf))
	assert.Contains(t, buf.String(), "wrote")

	buf.Reset()
	require.NoError(t, run([]string{"inspect", "-config", cfg, "-input", "1,3,32,32", "-weights", ckpt}, &buf))
	assert.Contains(t, buf.String(), "total parameters:")

	buf.Reset()
	assert.Error(t, run([]string{"export", "-config", cfg}, &buf))
	assert.Error(t, run([]string{"inspect", "-config", cfg, "-weights", filepath.Join(t.TempDir(), "none")}, &buf))
}

func TestParseShape(t *testing.T) {
	shape, err := parseShape("2, 3, 64, 48")
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 64, 48}, shape)

	_, err = parseShape("2,0,4,4")
	assert.Error(t, err)
	_, err = parseShape("a,b,c,d")
	assert.Error(t, err)
}
