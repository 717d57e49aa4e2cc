package batch

import (
	"errors"
	"fmt"
)

// Part size limits.
const (
	// DefaultPartSize is the number of measurements per part.
	DefaultPartSize = 400

	// MinPartSize is the minimum allowed part size.
	MinPartSize = 1

	// MaxPartSize is the maximum allowed part size.
	MaxPartSize = 1000
)

// ErrInvalidPartSize is returned for part sizes outside [MinPartSize, MaxPartSize].
var ErrInvalidPartSize = errors.New("part size must be between 1 and 1000")

// Part is one window of the backlog.
type Part struct {
	// Index is 1-based.
	Index int
	// Offset is the number of records before this part.
	Offset int
	// Limit is the number of records in this part.
	Limit int
}

// ValidatePartSize checks size against the allowed range.
func ValidatePartSize(size int) error {
	if size < MinPartSize || size > MaxPartSize {
		return fmt.Errorf("%w: got %d", ErrInvalidPartSize, size)
	}
	return nil
}

// PartsCount returns ceil(total / size). A non-positive total yields zero
// parts; a non-positive size is treated as DefaultPartSize.
func PartsCount(total, size int) int {
	if total <= 0 {
		return 0
	}
	if size <= 0 {
		size = DefaultPartSize
	}
	parts := total / size
	if total%size > 0 {
		parts++
	}
	return parts
}

// Parts returns the windows covering total records in parts of size.
func Parts(total, size int) []Part {
	if size <= 0 {
		size = DefaultPartSize
	}
	count := PartsCount(total, size)
	parts := make([]Part, count)
	for i := range count {
		offset := i * size
		limit := min(size, total-offset)
		parts[i] = Part{Index: i + 1, Offset: offset, Limit: limit}
	}
	return parts
}
