// Package quant simulates 8-bit affine quantization during float training.
//
// A FakeQuant sits after an operation whose output will be quantized on
// the deployment target. While observing, it tracks a moving-average
// min/max of the values passing through; while fake-quantizing, it snaps
// them to the grid implied by those statistics using the backend's
// FakeQuantize primitive. Both switches are on by default; turning
// fake-quantization off makes a FakeQuant an exact pass-through.
package quant
