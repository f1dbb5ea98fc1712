package backbone

import (
	"strconv"

	"github.com/papercatnku/DDTrainer/internal/serialization"
)

// SaveWeights writes the backbone state dict to a SafeTensors file.
func (b *Backbone) SaveWeights(path string) error {
	return serialization.SaveModule(path, b, map[string]string{
		"format": "pt",
		"layers": strconv.Itoa(len(b.layers)),
	})
}

// LoadWeights restores the backbone from a SafeTensors file written by
// SaveWeights or exported from PyTorch with matching keys.
func (b *Backbone) LoadWeights(path string) error {
	return serialization.LoadModule(path, b)
}
