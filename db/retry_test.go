package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fenixflow/ff-storage-sub000/storeerr"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	connErr := storeerr.Wrap(storeerr.KindConnection, "query", errors.New("connection refused"))
	conflict := storeerr.New(storeerr.KindTemporalVersionConflict, "update", "version race")
	permanent := storeerr.New(storeerr.KindQuery, "query", "syntax error")

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantKind  storeerr.Kind
		wantNil   bool
	}{
		{name: "success first try", errs: []error{nil}, wantCalls: 1, wantNil: true},
		{name: "transient then success", errs: []error{connErr, nil}, wantCalls: 2, wantNil: true},
		{name: "permanent error stops", errs: []error{permanent}, wantCalls: 1, wantKind: storeerr.KindQuery},
		{name: "connection exhaustion", errs: []error{connErr, connErr, connErr}, wantCalls: 3, wantKind: storeerr.KindConnectionPoolExhausted},
		{name: "conflict exhaustion keeps kind", errs: []error{conflict, conflict, conflict}, wantCalls: 3, wantKind: storeerr.KindTemporalVersionConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastPolicy(3), "test", func(context.Context) error {
				e := tt.errs[calls]
				calls++
				return e
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantNil {
				if err != nil {
					t.Fatalf("Retry() error = %v", err)
				}
				return
			}
			if kind := storeerr.KindOf(err); kind != tt.wantKind {
				t.Errorf("kind = %v, want %v (err %v)", kind, tt.wantKind, err)
			}
		})
	}
}

func TestRetryExhaustionWrapsLastError(t *testing.T) {
	last := storeerr.Wrap(storeerr.KindConnection, "query", errors.New("too many clients"))
	err := Retry(context.Background(), fastPolicy(2), "test", func(context.Context) error { return last })
	if !errors.Is(err, storeerr.ErrConnectionPoolExhausted) {
		t.Fatalf("expected ConnectionPoolExhausted, got %v", err)
	}
	if !errors.Is(err, storeerr.ErrConnection) {
		t.Error("ConnectionPoolExhausted should be in the connection family")
	}
	var se *storeerr.Error
	if !errors.As(err, &se) || se.Err != last {
		t.Error("exhaustion error should wrap the last error")
	}
}

func TestNoRetry(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), NoRetry(), "test", func(context.Context) error {
		calls++
		return storeerr.Wrap(storeerr.KindConnection, "query", errors.New("down"))
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
