package fingerprint

import (
	"testing"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/ir"
)

func usersTable(nativeID string) *ir.TableDefinition {
	return &ir.TableDefinition{
		Name:   "users",
		Schema: "public",
		Columns: []*ir.ColumnDefinition{
			{Name: "id", NativeType: nativeID, IsPrimaryKey: true},
			{Name: "email", NativeType: "character varying(255)"},
		},
		Indexes: []*ir.IndexDefinition{
			{Name: "idx_users_email", TableName: "users", Columns: []string{"email"}, Unique: true},
			{Name: "idx_users_created", TableName: "users", Columns: []string{"id"}},
		},
	}
}

func TestComputeFingerprint(t *testing.T) {
	n := ir.NewNormalizer(db.Postgres)

	empty, err := ComputeFingerprint(nil, n)
	if err != nil {
		t.Fatalf("ComputeFingerprint failed: %v", err)
	}
	if len(empty.Hash) != 32 {
		t.Errorf("hash %q should be 32 hex characters", empty.Hash)
	}

	a, err := ComputeFingerprint(map[string]*ir.TableDefinition{"users": usersTable("uuid")}, n)
	if err != nil {
		t.Fatalf("ComputeFingerprint failed: %v", err)
	}
	if a.Hash == empty.Hash {
		t.Error("a table should change the hash")
	}

	// spelling differences normalize away, index order does not matter
	reordered := usersTable("UUID")
	reordered.Indexes[0], reordered.Indexes[1] = reordered.Indexes[1], reordered.Indexes[0]
	b, err := ComputeFingerprint(map[string]*ir.TableDefinition{"users": reordered}, n)
	if err != nil {
		t.Fatalf("ComputeFingerprint failed: %v", err)
	}
	if err := Compare(a, b); err != nil {
		t.Errorf("equivalent schemas: %v", err)
	}
	if reordered.Indexes[0].Name != "idx_users_created" {
		t.Error("ComputeFingerprint mutated its input")
	}

	changed := usersTable("uuid")
	changed.Columns[1].Nullable = true
	c, err := ComputeFingerprint(map[string]*ir.TableDefinition{"users": changed}, n)
	if err != nil {
		t.Fatalf("ComputeFingerprint failed: %v", err)
	}
	if Compare(a, c) == nil {
		t.Error("a nullability change should change the fingerprint")
	}
}

func TestFingerprintString(t *testing.T) {
	f := &SchemaFingerprint{Hash: "0123456789abcdef"}
	if got := f.String(); got != "Schema fingerprint: 01234567" {
		t.Errorf("String() = %q", got)
	}
}
