package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxTensorNameLen = 4096
)

// tensorSpan is one tensor's byte range inside the data section.
type tensorSpan struct {
	name       string
	start, end int64
}

// validateSpans checks for negative, overlapping, and out-of-bounds tensor
// byte ranges.
func validateSpans(spans []tensorSpan, dataSize int64) error {
	sorted := make([]tensorSpan, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].start < sorted[j].start
	})

	for i, s := range sorted {
		if s.start < 0 || s.end < s.start {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  s.name,
				Details: fmt.Sprintf("invalid range [%d, %d)", s.start, s.end),
			}
		}
		if s.end > dataSize {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  s.name,
				Details: fmt.Sprintf("end %d > data size %d", s.end, dataSize),
			}
		}
		if i < len(sorted)-1 && s.end > sorted[i+1].start {
			next := sorted[i+1]
			return &ValidationError{
				Err:     ErrOffsetOverlap,
				Tensor:  s.name,
				Tensor2: next.name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", s.start, s.end, next.start, next.end),
			}
		}
	}
	return nil
}

// ValidateTensorName rejects empty, overlong, and path-like tensor names.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Err: ErrInvalidTensorName, Details: "empty name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{
			Err:     ErrInvalidTensorName,
			Tensor:  name[:32] + "...",
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	case name == metadataKey:
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "reserved name"}
	case strings.Contains(name, ".."), strings.ContainsAny(name, "/\\\x00"):
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains a path element"}
	}
	return nil
}
