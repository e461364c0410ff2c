package facestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	formatName    = "face-id-store"
	formatVersion = 1
)

// zstdMagic is the frame header of a zstd stream.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// storeFile is the persisted layout. Dimension and count come before the
// records so a reader can validate every record against them.
type storeFile struct {
	Format    string       `json:"format"`
	Version   int          `json:"version"`
	Dimension int          `json:"dimension"`
	Count     int          `json:"count"`
	Records   []fileRecord `json:"records"`
}

type fileRecord struct {
	UserID    UserID    `json:"user_id"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// encodeStore writes records (already in UserID order) to w.
func encodeStore(w io.Writer, dim int, records []Record, compress bool) error {
	doc := storeFile{
		Format:    formatName,
		Version:   formatVersion,
		Dimension: dim,
		Count:     len(records),
		Records:   make([]fileRecord, len(records)),
	}
	for i, r := range records {
		doc.Records[i] = fileRecord{UserID: r.UserID, Embedding: r.Embedding, Metadata: r.Metadata}
	}

	if !compress {
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("encoding store: %w", err)
		}
		return nil
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encoding store: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing zstd stream: %w", err)
	}
	return nil
}

// decodeStore parses and validates a persisted store. expectedDim of 0
// accepts whatever dimension the file declares.
func decodeStore(data []byte, expectedDim int) (int, []Record, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return 0, nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer zr.Close()
		data, err = zr.DecodeAll(data, nil)
		if err != nil {
			return 0, nil, fmt.Errorf("decompressing store: %w", err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc storeFile
	if err := dec.Decode(&doc); err != nil {
		return 0, nil, fmt.Errorf("parsing store: %w", err)
	}

	if doc.Format != formatName {
		return 0, nil, fmt.Errorf("unexpected format marker %q", doc.Format)
	}
	if doc.Version != formatVersion {
		return 0, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}
	if doc.Count != len(doc.Records) {
		return 0, nil, fmt.Errorf("header declares %d records, found %d", doc.Count, len(doc.Records))
	}
	if doc.Dimension < 0 || (doc.Dimension == 0 && len(doc.Records) > 0) {
		return 0, nil, fmt.Errorf("invalid dimension %d", doc.Dimension)
	}
	if expectedDim > 0 && doc.Dimension > 0 && doc.Dimension != expectedDim {
		return 0, nil, &DimensionMismatchError{Expected: expectedDim, Actual: doc.Dimension}
	}

	dim := doc.Dimension
	if dim == 0 {
		dim = expectedDim
	}

	seen := make(map[UserID]struct{}, len(doc.Records))
	records := make([]Record, 0, len(doc.Records))
	for i, fr := range doc.Records {
		if fr.UserID == "" {
			return 0, nil, fmt.Errorf("record %d: empty user_id", i)
		}
		if _, dup := seen[fr.UserID]; dup {
			return 0, nil, fmt.Errorf("record %d: duplicate user_id %q", i, fr.UserID)
		}
		seen[fr.UserID] = struct{}{}

		if err := ValidateEmbedding(fr.Embedding, dim); err != nil {
			return 0, nil, fmt.Errorf("record %q: %w", fr.UserID, err)
		}
		meta, err := normalizeNumbers(fr.Metadata)
		if err != nil {
			return 0, nil, fmt.Errorf("record %q: %w", fr.UserID, err)
		}
		records = append(records, Record{UserID: fr.UserID, Embedding: fr.Embedding, Metadata: meta})
	}
	sortRecords(records)
	return dim, records, nil
}

// normalizeNumbers turns json.Number values back into int64 or float64.
func normalizeNumbers(m Metadata) (Metadata, error) {
	out := make(Metadata, len(m))
	for k, v := range m {
		num, ok := v.(json.Number)
		if !ok {
			out[k] = v
			continue
		}
		if n, err := num.Int64(); err == nil {
			out[k] = n
			continue
		}
		if isInteger(num.String()) {
			return nil, fmt.Errorf("%w: metadata %q exceeds the int64 range", ErrInvalidRecord, k)
		}
		f, err := num.Float64()
		if err != nil {
			return nil, errors.Join(ErrInvalidRecord, fmt.Errorf("metadata %q: %w", k, err))
		}
		out[k] = f
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// isInteger reports whether a JSON number literal has no fraction or
// exponent.
func isInteger(lit string) bool {
	return !strings.ContainsAny(lit, ".eE")
}

// DecodeMetadata parses a JSON object into Metadata. Integral numbers
// become int64, other numbers float64. Empty input and null yield an
// empty Metadata.
func DecodeMetadata(data []byte) (Metadata, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Metadata{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m Metadata
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Join(ErrInvalidRecord, fmt.Errorf("metadata: %w", err))
	}
	return normalizeNumbers(m)
}
