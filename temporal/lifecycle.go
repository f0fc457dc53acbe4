package temporal

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	"github.com/fenixflow/ff-storage-sub000/model"
	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

// Lifecycle states of a stored row.
const (
	StateActive     = "active"
	StateDeleted    = "deleted"
	StateSuperseded = "superseded"
)

// Lifecycle events.
const (
	EventUpdate    = "update"
	EventDelete    = "delete"
	EventRestore   = "restore"
	EventSupersede = "supersede"
)

var lifecycleEvents = fsm.Events{
	{Name: EventUpdate, Src: []string{StateActive}, Dst: StateActive},
	{Name: EventDelete, Src: []string{StateActive}, Dst: StateDeleted},
	{Name: EventRestore, Src: []string{StateDeleted}, Dst: StateActive},
	// only the current SCD2 row is ever closed
	{Name: EventSupersede, Src: []string{StateActive, StateDeleted}, Dst: StateSuperseded},
}

// StateOf returns the lifecycle state of a row.
func StateOf(r Record) string {
	switch {
	case r[model.FieldValidTo] != nil:
		return StateSuperseded
	case r.Deleted():
		return StateDeleted
	}
	return StateActive
}

// checkTransition fails with TemporalStrategyError when event is not
// allowed from r's state.
func checkTransition(ctx context.Context, r Record, event string) error {
	state := StateOf(r)
	machine := fsm.NewFSM(state, lifecycleEvents, fsm.Callbacks{})

	err := machine.Event(ctx, event)
	var unchanged fsm.NoTransitionError
	if err == nil || errors.As(err, &unchanged) {
		return nil
	}
	return &storeerr.Error{
		Kind:     storeerr.KindTemporalStrategy,
		Op:       event,
		RecordID: r.ID().String(),
		Message:  "cannot " + event + " a " + state + " record",
		Err:      err,
	}
}
