package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// UpSampleConfig describes an integer-factor spatial upsampling.
type UpSampleConfig struct {
	Scale int
	Mode  tensor.InterpolateMode
}

// DefaultUpSampleConfig returns 2x bilinear upsampling.
func DefaultUpSampleConfig() UpSampleConfig {
	return UpSampleConfig{Scale: 2, Mode: tensor.Bilinear}
}

// ParseInterpolateMode resolves "nearest" or "bilinear".
func ParseInterpolateMode(name string) (tensor.InterpolateMode, error) {
	switch name {
	case "nearest":
		return tensor.Nearest, nil
	case "bilinear":
		return tensor.Bilinear, nil
	default:
		return 0, fmt.Errorf("%w: interpolation mode %q", ErrInvalidConfig, name)
	}
}

// UpSample scales the spatial dimensions of [N, C, H, W] by an integer
// factor. Bilinear sampling uses half-pixel centers (align_corners=false).
type UpSample struct {
	stateless
	cfg     UpSampleConfig
	backend tensor.Backend
}

// NewUpSample creates an upsampling layer.
func NewUpSample(cfg UpSampleConfig, backend tensor.Backend) (*UpSample, error) {
	if cfg.Scale <= 0 {
		return nil, fmt.Errorf("%w: upsample scale %d", ErrInvalidConfig, cfg.Scale)
	}
	if cfg.Mode != tensor.Nearest && cfg.Mode != tensor.Bilinear {
		return nil, fmt.Errorf("%w: upsample mode %s", ErrInvalidConfig, cfg.Mode)
	}
	return &UpSample{cfg: cfg, backend: backend}, nil
}

// Forward upsamples x.
func (u *UpSample) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return u.backend.Interpolate(x, u.cfg.Scale, u.cfg.Mode)
}

// String returns a human-readable description.
func (u *UpSample) String() string {
	return fmt.Sprintf("UpSample(scale=%d, mode=%s)", u.cfg.Scale, u.cfg.Mode)
}
