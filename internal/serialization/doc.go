// Package serialization saves and loads module weights in the SafeTensors
// format so checkpoints can be exchanged with PyTorch.
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON, {"name": {"dtype", "shape", "data_offsets"}, "__metadata__": {...}}]
//	  [Tensor data: raw little-endian bytes, tensors in name order]
//
// The writer emits F32 only. The reader also accepts F64, F16 and BF16
// tensors and converts them to float32. A SHA-256 of the data section is
// stored in the metadata under "sha256" and verified on load when present.
//
// Example usage:
//
//	if err := serialization.SaveModule("yolox_s.safetensors", model, nil); err != nil {
//	    return err
//	}
//	if err := serialization.LoadModule("yolox_s.safetensors", model); err != nil {
//	    return err
//	}
package serialization
