package certificate

import (
	"strconv"
	"strings"
	"time"
)

// DefaultIDPrefix is used when no certificate prefix is configured.
const DefaultIDPrefix = "CERT-"

// GenerateID returns prefix followed by sequence in upper-case base36.
// IDs are only as unique as the sequences passed in.
func GenerateID(prefix string, sequence int64) string {
	return prefix + strings.ToUpper(strconv.FormatInt(sequence, 36))
}

// NewID generates an ID from the current wall clock in milliseconds.
// Callers generating several IDs in the same millisecond should use
// GenerateID with distinct sequences instead.
func NewID(prefix string) string {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return GenerateID(prefix, time.Now().UnixMilli())
}
