package facestore

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// UserID is the caller-supplied primary key of an enrolled identity.
// Integer IDs from the HTTP form or a source database are kept in their
// decimal string form.
type UserID string

// ParseUserID trims and validates a raw user ID.
func ParseUserID(raw string) (UserID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%w: empty user_id", ErrInvalidRecord)
	}
	return UserID(id), nil
}

// numeric reports the integer value of the ID when it is a base-10 integer.
func (u UserID) numeric() (int64, bool) {
	n, err := strconv.ParseInt(string(u), 10, 64)
	return n, err == nil
}

// Compare orders user IDs: integer IDs first in numeric order, then all
// other IDs in byte order. Equal numeric values ("7" and "07") fall back
// to byte order so the ordering stays total.
func (u UserID) Compare(other UserID) int {
	a, aNum := u.numeric()
	b, bNum := other.numeric()
	switch {
	case aNum && bNum:
		if c := cmp.Compare(a, b); c != 0 {
			return c
		}
		return strings.Compare(string(u), string(other))
	case aNum:
		return -1
	case bNum:
		return 1
	default:
		return strings.Compare(string(u), string(other))
	}
}

// Metadata is a schema-less bag of scalar values attached to a record.
// It never takes part in matching.
type Metadata map[string]any

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Validate checks that every value is a scalar (string, bool, number or nil).
// Integers must fit in int64, the type they are read back as.
func (m Metadata) Validate() error {
	for k, v := range m {
		if k == "" {
			return fmt.Errorf("%w: empty metadata key", ErrInvalidRecord)
		}
		switch val := v.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint8, uint16, uint32:
		case uint:
			if uint64(val) > math.MaxInt64 {
				return fmt.Errorf("%w: metadata %q exceeds the int64 range", ErrInvalidRecord, k)
			}
		case uint64:
			if val > math.MaxInt64 {
				return fmt.Errorf("%w: metadata %q exceeds the int64 range", ErrInvalidRecord, k)
			}
		case float32:
			if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
				return fmt.Errorf("%w: metadata %q is not finite", ErrInvalidRecord, k)
			}
		case float64:
			if math.IsNaN(val) || math.IsInf(val, 0) {
				return fmt.Errorf("%w: metadata %q is not finite", ErrInvalidRecord, k)
			}
		default:
			return fmt.Errorf("%w: metadata %q has non-scalar type %T", ErrInvalidRecord, k, v)
		}
	}
	return nil
}

// Record is one enrolled identity.
type Record struct {
	UserID    UserID
	Embedding []float32
	Metadata  Metadata
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record{
		UserID:    r.UserID,
		Embedding: slices.Clone(r.Embedding),
		Metadata:  r.Metadata.Clone(),
	}
}

// ValidateEmbedding checks length against dim (when dim > 0) and rejects
// non-finite components.
func ValidateEmbedding(embedding []float32, dim int) error {
	if len(embedding) == 0 {
		return &DimensionMismatchError{Expected: dim, Actual: 0}
	}
	if dim > 0 && len(embedding) != dim {
		return &DimensionMismatchError{Expected: dim, Actual: len(embedding)}
	}
	for i, v := range embedding {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: embedding component %d is not finite", ErrInvalidRecord, i)
		}
	}
	return nil
}

// sortRecords orders records by UserID.Compare.
func sortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		return a.UserID.Compare(b.UserID)
	})
}
