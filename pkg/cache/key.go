package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/partmatch-client/pkg/partmatch"
)

// referencePrefix namespaces record references sent with each query.
const referencePrefix = "pm"

// RecordKey uniquely identifies a lookup record: one page of one key.
type RecordKey struct {
	// Key is the normalized lookup string.
	Key string

	// Offset is the page cursor (a multiple of the page limit).
	Offset int
}

// NormalizeKey converts caller input to the form records are keyed by:
// whitespace removed, lower case.
func NormalizeKey(s string) string {
	return partmatch.Normalize(s)
}

// String generates a deterministic reference for the record.
// Format: pm:offset:key
//
// Example:
//
//	pm:20:lm317t
//
// The offset comes first so that keys containing ':' still parse.
func (k RecordKey) String() string {
	return referencePrefix + ":" + strconv.Itoa(k.Offset) + ":" + k.Key
}

// ParseReference is the inverse of RecordKey.String.
func ParseReference(ref string) (RecordKey, error) {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) != 3 || parts[0] != referencePrefix {
		return RecordKey{}, fmt.Errorf("malformed reference %q", ref)
	}
	offset, err := strconv.Atoi(parts[1])
	if err != nil || offset < 0 {
		return RecordKey{}, fmt.Errorf("malformed reference offset %q", ref)
	}
	return RecordKey{Key: parts[2], Offset: offset}, nil
}
