package ffstorage

import (
	"context"
	"database/sql"

	"github.com/fenixflow/ff-storage-sub000/model"
)

// SyncSchema is a convenience function to sync models against an existing
// pool in one call.
func SyncSchema(ctx context.Context, conn *sql.DB, dialect Dialect, models []*Descriptor, allowDestructive, dryRun bool) (int, error) {
	client, err := NewClient(conn, dialect)
	if err != nil {
		return 0, err
	}
	return client.SyncSchema(ctx, models, SyncOptions{AllowDestructive: allowDestructive, DryRun: dryRun})
}

// SyncSchemaFile is like SyncSchema with the models read from a YAML file.
func SyncSchemaFile(ctx context.Context, conn *sql.DB, dialect Dialect, path string, allowDestructive, dryRun bool) (int, error) {
	models, err := model.LoadFile(path)
	if err != nil {
		return 0, err
	}
	return SyncSchema(ctx, conn, dialect, models, allowDestructive, dryRun)
}

// LoadModels reads model descriptors from a YAML file.
func LoadModels(path string) ([]*Descriptor, error) {
	return model.LoadFile(path)
}
