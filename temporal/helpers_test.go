package temporal

import (
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fenixflow/ff-storage-sub000/db"
	"github.com/fenixflow/ff-storage-sub000/model"
)

var (
	tenantA = uuid.MustParse("0b7d1c54-3c1e-4a53-9a57-2f1a4f0c0a01")
	tenantB = uuid.MustParse("5f3e9a2c-7d41-4b8e-8c2f-6a9d3e1b0b02")
	userID  = uuid.MustParse("9c2b7e15-1f6a-4d3c-b8e2-4a7f0d5c1c03")
	recID   = uuid.MustParse("d4a1f3b2-6e5c-4f7a-9b8d-1c2e3f4a5d04")

	t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func (b *base) setClock(now time.Time) {
	b.now = func() time.Time { return now }
}

func productModel(kind model.StrategyKind) *model.Descriptor {
	draft := "'draft'"
	return &model.Descriptor{
		Name:  "Product",
		Table: "products",
		Fields: []model.Field{
			{Name: "name", Type: model.TypeString, MaxLength: 255},
			{Name: "price", Type: model.TypeDecimal, Precision: 10, Scale: 2},
			{Name: "status", Type: model.TypeString, MaxLength: 20, Default: &draft},
		},
		Temporal: model.Temporal{Strategy: kind},
	}
}

func newPool(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return conn, mock
}

// productRow is a stored product of tenantA as the driver returns it.
func productRow(price string) Record {
	return Record{
		model.FieldID:        recID.String(),
		"tenant_id":          tenantA.String(),
		"name":               "Widget",
		"price":              price,
		"status":             "draft",
		model.FieldCreatedAt: t0,
		model.FieldUpdatedAt: t0,
		model.FieldCreatedBy: userID.String(),
		model.FieldUpdatedBy: userID.String(),
		model.FieldDeletedAt: nil,
		model.FieldDeletedBy: nil,
	}
}

// versionRow is productRow with SCD2 columns.
func versionRow(price string, version int64, from time.Time, to any) Record {
	r := productRow(price)
	r[model.FieldVersion] = version
	r[model.FieldValidFrom] = from
	r[model.FieldValidTo] = to
	return r
}

func rowsOf(recs ...Record) *sqlmock.Rows {
	if len(recs) == 0 {
		return sqlmock.NewRows([]string{model.FieldID})
	}
	cols := sortedFields(recs[0])
	rows := sqlmock.NewRows(cols)
	for _, r := range recs {
		values := make([]driver.Value, len(cols))
		for i, c := range cols {
			values[i] = r[c]
		}
		rows.AddRow(values...)
	}
	return rows
}

func newTestStrategy(t *testing.T, desc *model.Descriptor, now time.Time) Strategy {
	t.Helper()
	s, err := NewStrategy(desc, db.Postgres)
	require.NoError(t, err)
	s.(interface{ setClock(time.Time) }).setClock(now)
	return s
}

var scopeA = Scope{Tenants: []uuid.UUID{tenantA}, UserID: userID}
