package quant

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Config configures a FakeQuant.
type Config struct {
	QuantMin          int     // Lowest quantized level (0 for quint8).
	QuantMax          int     // Highest quantized level (255 for quint8).
	AveragingConstant float32 // Weight of a new batch in the moving min/max.
	Eps               float32 // Lower bound on the scale.
}

// DefaultConfig returns the activation settings: quint8 levels, affine,
// moving average with constant 0.01.
func DefaultConfig() Config {
	return Config{
		QuantMin:          0,
		QuantMax:          255,
		AveragingConstant: 0.01,
		Eps:               1.1920929e-07, // float32 machine epsilon
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.QuantMin >= c.QuantMax {
		return fmt.Errorf("quant: empty level range [%d, %d]", c.QuantMin, c.QuantMax)
	}
	if c.AveragingConstant <= 0 || c.AveragingConstant > 1 {
		return fmt.Errorf("quant: averaging constant %v outside (0, 1]", c.AveragingConstant)
	}
	if c.Eps <= 0 {
		return fmt.Errorf("quant: eps must be positive, got %v", c.Eps)
	}
	return nil
}

// FakeQuant observes activation ranges and simulates their quantization.
//
// A FakeQuant carries state updated on every Forward call, so one instance
// must not be shared between goroutines.
type FakeQuant struct {
	cfg     Config
	backend tensor.Backend

	minVal, maxVal float32
	initialized    bool

	observerEnabled  bool
	fakeQuantEnabled bool
}

// New creates a FakeQuant with observation and fake-quantization enabled.
func New(backend tensor.Backend, cfg Config) (*FakeQuant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FakeQuant{
		cfg:              cfg,
		backend:          backend,
		observerEnabled:  true,
		fakeQuantEnabled: true,
	}, nil
}

// Forward records the range of x (if observing) and returns x snapped to
// the quantization grid (if fake-quantizing). With fake-quantization off
// it returns x itself.
func (f *FakeQuant) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if f.observerEnabled {
		f.observe(x)
	}
	if !f.fakeQuantEnabled {
		return x, nil
	}
	return f.backend.FakeQuantize(x, f.QParams())
}

func (f *FakeQuant) observe(x *tensor.Tensor) {
	data := x.Data()
	if len(data) == 0 {
		return
	}

	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		lo = math32.Min(lo, v)
		hi = math32.Max(hi, v)
	}

	if !f.initialized {
		f.minVal, f.maxVal = lo, hi
		f.initialized = true
		return
	}
	c := f.cfg.AveragingConstant
	f.minVal += c * (lo - f.minVal)
	f.maxVal += c * (hi - f.maxVal)
}

// QParams returns the affine parameters implied by the observed range.
// The range is widened to include zero so that zero is exactly
// representable. Before any observation it returns scale 1, zero point 0.
func (f *FakeQuant) QParams() tensor.QParams {
	q := tensor.QParams{Scale: 1, ZeroPoint: 0, QuantMin: f.cfg.QuantMin, QuantMax: f.cfg.QuantMax}
	if !f.initialized {
		return q
	}

	lo := math32.Min(f.minVal, 0)
	hi := math32.Max(f.maxVal, 0)
	q.Scale = math32.Max((hi-lo)/float32(f.cfg.QuantMax-f.cfg.QuantMin), f.cfg.Eps)

	zp := f.cfg.QuantMin - int(RoundHalfEven(lo/q.Scale))
	q.ZeroPoint = min(max(zp, f.cfg.QuantMin), f.cfg.QuantMax)
	return q
}

// Range returns the observed min/max and whether anything was observed yet.
func (f *FakeQuant) Range() (lo, hi float32, ok bool) {
	return f.minVal, f.maxVal, f.initialized
}

// EnableObserver turns range tracking on or off (off freezes the QParams).
func (f *FakeQuant) EnableObserver(enabled bool) {
	f.observerEnabled = enabled
}

// EnableFakeQuant turns grid snapping on or off.
func (f *FakeQuant) EnableFakeQuant(enabled bool) {
	f.fakeQuantEnabled = enabled
}

// ObserverEnabled reports whether range tracking is on.
func (f *FakeQuant) ObserverEnabled() bool {
	return f.observerEnabled
}

// FakeQuantEnabled reports whether grid snapping is on.
func (f *FakeQuant) FakeQuantEnabled() bool {
	return f.fakeQuantEnabled
}

// Reset forgets the observed range.
func (f *FakeQuant) Reset() {
	f.minVal, f.maxVal, f.initialized = 0, 0, false
}

// RoundHalfEven rounds to the nearest integer, ties to even, matching the
// rounding of integer inference kernels.
func RoundHalfEven(v float32) float32 {
	r := math32.Floor(v + 0.5)
	if r-v == 0.5 && int64(r)%2 != 0 {
		r--
	}
	return r
}
