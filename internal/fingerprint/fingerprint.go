package fingerprint

import (
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"github.com/fenixflow/ff-storage-sub000/ir"
)

// SchemaFingerprint represents a fingerprint of a database schema state
type SchemaFingerprint struct {
	Hash string `json:"hash"` // xxh3-128 of the normalized tables
}

// ComputeFingerprint hashes the normalized form of tables. Tables, and the
// indexes within each table, are hashed in name order; columns keep their
// ordinal order. Two introspections of an unchanged schema hash equal.
func ComputeFingerprint(tables map[string]*ir.TableDefinition, n *ir.Normalizer) (*SchemaFingerprint, error) {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	normalized := make([]*ir.TableDefinition, 0, len(names))
	for _, name := range names {
		t, err := n.NormalizeTable(tables[name])
		if err != nil {
			return nil, fmt.Errorf("failed to compute schema hash: %w", err)
		}
		sort.Slice(t.Indexes, func(i, j int) bool {
			return t.Indexes[i].Name < t.Indexes[j].Name
		})
		normalized = append(normalized, t)
	}

	hash, err := hashObject(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to compute schema hash: %w", err)
	}
	return &SchemaFingerprint{Hash: hash}, nil
}

// hashObject computes an xxh3-128 hash of the JSON encoding of obj
func hashObject(obj any) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	sum := xxh3.Hash128(data).Bytes()
	return fmt.Sprintf("%x", sum[:]), nil
}

// String returns a human-readable representation of the fingerprint
func (f *SchemaFingerprint) String() string {
	if len(f.Hash) >= 8 {
		return fmt.Sprintf("Schema fingerprint: %s", f.Hash[:8])
	}
	return fmt.Sprintf("Schema fingerprint: %s", f.Hash)
}
