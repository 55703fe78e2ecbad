package serializer

import (
	"errors"
	"fmt"
	"io"
)

// Allocation limits to prevent DoS attacks via malicious length prefixes.
const (
	// DefaultMaxAllocation is the default maximum allocation size (1MB).
	// Reassembled messages are bounded well below this by the chunk limits.
	DefaultMaxAllocation = 1 << 20

	// MaxCollectionCount is the maximum number of items in a slice or map.
	// This prevents OOM from huge counts with small per-item overhead.
	MaxCollectionCount = 65_536

	// MaxVarintLen is the maximum number of bytes a varint can occupy.
	MaxVarintLen = 10
)

// Common decoding errors.
var (
	ErrOutOfRange         = fmt.Errorf("serializer: read out of range: %w", io.ErrUnexpectedEOF)
	ErrVarintOverflow     = errors.New("serializer: varint overflow")
	ErrAllocationTooLarge = errors.New("serializer: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("serializer: collection count exceeds limit")
	ErrInvalidString      = errors.New("serializer: string is not valid UTF-8")
	ErrInvalidIdentifier  = errors.New("serializer: identifier must be printable ASCII")
	ErrDuplicateKey       = errors.New("serializer: duplicate map key")
)

// ValidateIdentifier reports whether s is a non-empty printable ASCII string.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c > 0x7e {
			return fmt.Errorf("%w: byte 0x%02x at offset %d", ErrInvalidIdentifier, c, i)
		}
	}
	return nil
}
