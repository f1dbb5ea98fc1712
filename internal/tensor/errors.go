package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when operands of an operation have
// incompatible shapes. Use errors.As with *ShapeError for the details.
var ErrShapeMismatch = errors.New("shape mismatch")

// ShapeError describes which operation rejected which operand shapes.
type ShapeError struct {
	Op     string  // Operation name (e.g., "add", "cat")
	Shapes []Shape // Offending operand shapes
	Detail string  // Additional details
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %v: %s", e.Op, ErrShapeMismatch, e.Shapes, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrShapeMismatch, e.Shapes)
}

// Unwrap makes errors.Is(err, ErrShapeMismatch) hold for every ShapeError.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

// NewShapeError builds a ShapeError for op over the given shapes.
func NewShapeError(op, detail string, shapes ...Shape) *ShapeError {
	cloned := make([]Shape, len(shapes))
	for i, s := range shapes {
		cloned[i] = s.Clone()
	}
	return &ShapeError{Op: op, Shapes: cloned, Detail: detail}
}
