// Package backbone builds nn.Sequential backbones from declarative YAML
// descriptions.
//
// A description lists layers in order. Each layer's input channel count is
// the previous layer's output count, starting from input_channels:
//
//	input_channels: 3
//	act: silu
//	qat: false
//	outputs: [2, 4]
//	layers:
//	  - {type: focus, out: 32, ksize: 3}
//	  - {type: conv, out: 64, ksize: 3, stride: 2}
//	  - {type: csp, n: 1}
//	  - {type: conv, out: 128, ksize: 3, stride: 2}
//	  - {type: sppf}
package backbone

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Layer types.
const (
	TypeConv       = "conv"
	TypeDWConv     = "dwconv"
	TypeFocus      = "focus"
	TypeBottleneck = "bottleneck"
	TypeResLayer   = "reslayer"
	TypeSPP        = "spp"
	TypeSPPF       = "sppf"
	TypeCSP        = "csp"
	TypeUpSample   = "upsample"
	TypeMaxPool    = "maxpool"
)

// ErrInvalidSpec is returned for malformed backbone descriptions.
var ErrInvalidSpec = errors.New("invalid backbone spec")

// Spec is a backbone description.
type Spec struct {
	InputChannels int         `yaml:"input_channels"`
	Act           string      `yaml:"act,omitempty"`     // default activation, "silu" when empty
	QAT           bool        `yaml:"qat,omitempty"`     // default QAT switch for blocks that support it
	Outputs       []int       `yaml:"outputs,omitempty"` // layer indices returned by ForwardFeatures
	Layers        []LayerSpec `yaml:"layers"`
}

// LayerSpec describes one layer. Zero fields take the per-type defaults
// documented on Build; pointer fields distinguish "unset" from false or 0.
type LayerSpec struct {
	Name      string  `yaml:"name,omitempty"`
	Type      string  `yaml:"type"`
	Out       int     `yaml:"out,omitempty"`
	KSize     int     `yaml:"ksize,omitempty"`
	Stride    int     `yaml:"stride,omitempty"`
	Pad       *int    `yaml:"pad,omitempty"`
	N         *int    `yaml:"n,omitempty"`
	Shortcut  *bool   `yaml:"shortcut,omitempty"`
	Expansion float64 `yaml:"expansion,omitempty"`
	Depthwise bool    `yaml:"depthwise,omitempty"`
	Kernels   []int   `yaml:"kernels,omitempty"`
	Scale     int     `yaml:"scale,omitempty"`
	Mode      string  `yaml:"mode,omitempty"`
	Act       string  `yaml:"act,omitempty"`
	QAT       *bool   `yaml:"qat,omitempty"`
}

// Parse decodes a YAML description. Unknown keys are rejected.
func Parse(data []byte) (*Spec, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a YAML description from r.
func Decode(r io.Reader) (*Spec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidSpec)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Load reads and parses a YAML description file.
func Load(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open backbone spec: %w", err)
	}
	defer f.Close()

	spec, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Validate checks the structure of the description. Channel arithmetic and
// per-block constraints are checked by Build.
func (s *Spec) Validate() error {
	if s.InputChannels <= 0 {
		return fmt.Errorf("%w: input_channels must be positive, got %d", ErrInvalidSpec, s.InputChannels)
	}
	if len(s.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalidSpec)
	}
	for i, l := range s.Layers {
		if !knownType(l.Type) {
			return fmt.Errorf("%w: layer %d: unknown type %q", ErrInvalidSpec, i, l.Type)
		}
	}
	for _, idx := range s.Outputs {
		if idx < 0 || idx >= len(s.Layers) {
			return fmt.Errorf("%w: output index %d out of range [0, %d)", ErrInvalidSpec, idx, len(s.Layers))
		}
	}
	return nil
}

func knownType(t string) bool {
	switch t {
	case TypeConv, TypeDWConv, TypeFocus, TypeBottleneck, TypeResLayer,
		TypeSPP, TypeSPPF, TypeCSP, TypeUpSample, TypeMaxPool:
		return true
	}
	return false
}

// Marshal encodes the description as YAML.
func (s *Spec) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
