package serialization

import (
	"bufio"
	"fmt"
	"os"

	"github.com/papercatnku/DDTrainer/internal/nn"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// SaveFile writes stateDict to path.
func SaveFile(path string, stateDict map[string]*tensor.Tensor, metadata map[string]string) (err error) {
	f, err := os.Create(path) //nolint:gosec // caller-provided path
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if err := WriteSafeTensors(w, stateDict, metadata); err != nil {
		return err
	}
	return w.Flush()
}

// LoadFile reads a checkpoint from path.
func LoadFile(path string, opts ReadOptions) (map[string]*tensor.Tensor, map[string]string, error) {
	f, err := os.Open(path) //nolint:gosec // caller-provided path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return ReadSafeTensors(bufio.NewReader(f), opts)
}

// SaveModule writes the state dict of m to path.
func SaveModule(path string, m nn.Module, metadata map[string]string) error {
	return SaveFile(path, m.StateDict(), metadata)
}

// LoadModule restores the weights of m from path. Keys the module does not
// own are ignored; a missing key fails with nn.ErrMissingKey.
func LoadModule(path string, m nn.Module) error {
	sd, _, err := LoadFile(path, ReadOptions{})
	if err != nil {
		return err
	}
	if err := m.LoadStateDict(sd); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
