package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Limits applied while reading untrusted files.
const (
	MaxHeaderSize    = 100 * 1024 * 1024
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 1024
)

// tensorEntry is one parsed header record.
type tensorEntry struct {
	Name  string
	DType string
	Shape []int
	Begin int64
	End   int64
}

// ValidateTensorName rejects names that could escape a directory or hide
// behind a null byte when a checkpoint is unpacked to disk.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Type: "invalid_name", Details: "empty name", Err: ErrInvalidTensorName}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
			Err:     ErrTensorNameTooLong,
		}
	case strings.Contains(name, ".."):
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains '..'", Err: ErrInvalidTensorName}
	case strings.ContainsAny(name, "/\\"):
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains path separator", Err: ErrInvalidTensorName}
	case strings.Contains(name, "\x00"):
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: "contains null byte", Err: ErrInvalidTensorName}
	}
	return nil
}

// validateTensorOffsets checks that every tensor lies inside the data
// section, matches its shape and does not overlap another tensor.
func validateTensorOffsets(entries []tensorEntry, dataSize int64) error {
	if len(entries) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(entries), MaxTensorCount),
			Err:     ErrTooManyTensors,
		}
	}

	sorted := make([]tensorEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })

	for i, e := range sorted {
		if e.Begin < 0 || e.End < e.Begin {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  e.Name,
				Details: fmt.Sprintf("offsets [%d, %d]", e.Begin, e.End),
				Err:     ErrNegativeOffset,
			}
		}
		if e.End > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  e.Name,
				Details: fmt.Sprintf("end %d > data size %d", e.End, dataSize),
				Err:     ErrOutOfBounds,
			}
		}
		size, err := dtypeSize(e.DType)
		if err != nil {
			return &ValidationError{Type: "dtype", Tensor: e.Name, Details: e.DType, Err: err}
		}
		n := int64(1)
		for _, d := range e.Shape {
			if d < 0 {
				return &ValidationError{
					Type:    "shape",
					Tensor:  e.Name,
					Details: fmt.Sprintf("negative dimension in %v", e.Shape),
					Err:     ErrMalformedHeader,
				}
			}
			n *= int64(d)
		}
		if want := n * int64(size); e.End-e.Begin != want {
			return &ValidationError{
				Type:    "size_mismatch",
				Tensor:  e.Name,
				Details: fmt.Sprintf("shape %v needs %d bytes, offsets span %d", e.Shape, want, e.End-e.Begin),
				Err:     ErrMalformedHeader,
			}
		}
		if i > 0 && e.Begin < sorted[i-1].End {
			return &ValidationError{
				Type:    "offset_overlap",
				Tensor:  sorted[i-1].Name,
				Tensor2: e.Name,
				Details: fmt.Sprintf("[%d, %d] and [%d, %d]", sorted[i-1].Begin, sorted[i-1].End, e.Begin, e.End),
				Err:     ErrOffsetOverlap,
			}
		}
	}
	return nil
}
