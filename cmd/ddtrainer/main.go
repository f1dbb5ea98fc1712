// Package main provides the DDTrainer CLI.
package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/papercatnku/DDTrainer/backbone"
	"github.com/papercatnku/DDTrainer/backend/cpu"
	"github.com/papercatnku/DDTrainer/nn"
	"github.com/papercatnku/DDTrainer/tensor"
)

const version = "v0.1.0-dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ddtrainer: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return nil
	}
	switch args[0] {
	case "version":
		fmt.Fprintf(out, "DDTrainer %s\n", version)
		return nil
	case "inspect":
		return inspect(args[1:], out)
	case "export":
		return export(args[1:], out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "DDTrainer - YOLO building blocks with quantization-aware training")
	fmt.Fprintf(out, "Version: %s\n\n", version)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  version    Show version")
	fmt.Fprintln(out, "  inspect    Build a backbone from YAML and trace a forward pass")
	fmt.Fprintln(out, "  export     Write backbone weights to a SafeTensors file")
}

func inspect(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "backbone YAML description (required)")
	input := fs.String("input", "1,3,224,224", "input shape N,C,H,W")
	seed := fs.Int64("seed", 0, "random seed for the input tensor")
	fuse := fs.Bool("fuse", false, "fold BatchNorm into convolutions before the forward pass")
	workers := fs.Int("workers", 0, "CPU worker count (0 = one per core)")
	weights := fs.String("weights", "", "SafeTensors checkpoint to load before the forward pass")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("inspect: -config is required")
	}

	shape, err := parseShape(*input)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	cfg := cpu.DefaultParallelConfig()
	if *workers > 0 {
		cfg.NumWorkers = *workers
	}
	b, err := backbone.BuildFile(*configPath, cpu.NewWithConfig(cfg))
	if err != nil {
		return err
	}
	if shape[1] != b.InChannels() {
		return fmt.Errorf("inspect: input has %d channels, backbone expects %d", shape[1], b.InChannels())
	}
	if *weights != "" {
		if err := b.LoadWeights(*weights); err != nil {
			return fmt.Errorf("inspect: %w", err)
		}
	}
	if *fuse {
		if err := b.Fuse(); err != nil {
			return fmt.Errorf("inspect: fuse: %w", err)
		}
	}

	x := tensor.Randn(shape, rand.New(rand.NewSource(*seed))) //nolint:gosec // synthetic input

	fmt.Fprintf(out, "%-4s %-16s %-11s %-20s %12s\n", "#", "name", "type", "output", "params")
	_, err = b.Walk(x, func(i int, l backbone.Layer, y *tensor.Tensor) {
		fmt.Fprintf(out, "%-4d %-16s %-11s %-20s %12d\n",
			i, l.Name, l.Type, fmt.Sprint(y.Shape()), nn.CountParameters(l.Module.Parameters()))
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\ntotal parameters: %d\n", nn.CountParameters(b.Parameters()))
	if fqs := b.FakeQuants(); len(fqs) > 0 {
		fmt.Fprintf(out, "fake-quant observers: %d\n", len(fqs))
		for i, fq := range fqs {
			q := fq.QParams()
			fmt.Fprintf(out, "  [%d] scale=%.6g zero_point=%d\n", i, q.Scale, q.ZeroPoint)
		}
	}
	return nil
}

func export(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(out)
	configPath := fs.String("config", "", "backbone YAML description (required)")
	output := fs.String("out", "", "destination .safetensors file (required)")
	weights := fs.String("weights", "", "checkpoint to start from instead of random init")
	fuse := fs.Bool("fuse", false, "fold BatchNorm into convolutions before writing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" || *output == "" {
		return fmt.Errorf("export: -config and -out are required")
	}

	b, err := backbone.BuildFile(*configPath, cpu.New())
	if err != nil {
		return err
	}
	if *weights != "" {
		if err := b.LoadWeights(*weights); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	if *fuse {
		if err := b.Fuse(); err != nil {
			return fmt.Errorf("export: fuse: %w", err)
		}
	}
	if err := b.SaveWeights(*output); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprintf(out, "wrote %d tensors (%d parameters) to %s\n",
		len(b.StateDict()), nn.CountParameters(b.Parameters()), *output)
	return nil
}

// parseShape parses "N,C,H,W".
func parseShape(s string) (tensor.Shape, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("input shape %q: want N,C,H,W", s)
	}
	shape := make(tensor.Shape, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("input shape %q: dimension %d must be a positive integer", s, i)
		}
		shape[i] = v
	}
	return shape, nil
}
