package temporal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

func TestCheckTransition(t *testing.T) {
	active := Record{model.FieldID: recID.String()}
	deleted := Record{model.FieldID: recID.String(), model.FieldDeletedAt: t0}
	superseded := Record{model.FieldID: recID.String(), model.FieldValidTo: t1}

	tests := []struct {
		name    string
		rec     Record
		event   string
		wantErr bool
	}{
		{"update active", active, EventUpdate, false},
		{"delete active", active, EventDelete, false},
		{"restore active", active, EventRestore, true},
		{"update deleted", deleted, EventUpdate, true},
		{"delete deleted", deleted, EventDelete, true},
		{"restore deleted", deleted, EventRestore, false},
		{"supersede deleted", deleted, EventSupersede, false},
		{"update superseded", superseded, EventUpdate, true},
		{"supersede superseded", superseded, EventSupersede, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTransition(context.Background(), tt.rec, tt.event)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, storeerr.ErrTemporalStrategy)
			require.Contains(t, err.Error(), recID.String())
		})
	}
}

func TestStateOf(t *testing.T) {
	require.Equal(t, StateActive, StateOf(Record{}))
	require.Equal(t, StateDeleted, StateOf(Record{model.FieldDeletedAt: t0}))
	require.Equal(t, StateSuperseded, StateOf(Record{model.FieldDeletedAt: t0, model.FieldValidTo: t1}))
}
