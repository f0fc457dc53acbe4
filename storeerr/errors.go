// Package storeerr defines the typed errors returned by the storage layer.
//
// Every error is an *Error carrying a Kind. Kinds form a small hierarchy
// (for example TenantIsolation is a Tenant error), and errors.Is matches a
// wrapped *Error against the exported sentinels by family:
//
//	if errors.Is(err, storeerr.ErrTenant) { ... }
package storeerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the category of a storage error.
type Kind int

const (
	KindUnknown Kind = iota

	KindConnection
	KindConnectionPoolExhausted
	KindCircuitBreakerOpen

	KindQuery
	KindQueryTimeout
	KindSQLInjectionAttempt

	KindTemporal
	KindTemporalStrategy
	KindTemporalVersionConflict

	KindTenant
	KindTenantIsolation
	KindTenantNotConfigured

	KindConfiguration
)

var kindNames = map[Kind]string{
	KindUnknown:                 "StorageError",
	KindConnection:              "ConnectionError",
	KindConnectionPoolExhausted: "ConnectionPoolExhausted",
	KindCircuitBreakerOpen:      "CircuitBreakerOpen",
	KindQuery:                   "QueryError",
	KindQueryTimeout:            "QueryTimeout",
	KindSQLInjectionAttempt:     "SQLInjectionAttempt",
	KindTemporal:                "TemporalError",
	KindTemporalStrategy:        "TemporalStrategyError",
	KindTemporalVersionConflict: "TemporalVersionConflict",
	KindTenant:                  "TenantError",
	KindTenantIsolation:         "TenantIsolationError",
	KindTenantNotConfigured:     "TenantNotConfigured",
	KindConfiguration:           "ConfigurationError",
}

// parents maps each kind to its family root.
var parents = map[Kind]Kind{
	KindConnectionPoolExhausted: KindConnection,
	KindCircuitBreakerOpen:      KindConnection,
	KindQueryTimeout:            KindQuery,
	KindSQLInjectionAttempt:     KindQuery,
	KindTemporalStrategy:        KindTemporal,
	KindTemporalVersionConflict: KindTemporal,
	KindTenantIsolation:         KindTenant,
	KindTenantNotConfigured:     KindTenant,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Parent returns the family root of k, or k itself for roots.
func (k Kind) Parent() Kind {
	if p, ok := parents[k]; ok {
		return p
	}
	return k
}

// Error is the concrete error type of the storage layer.
type Error struct {
	Kind Kind

	// Op is the operation that failed ("create", "update", "sync" ...).
	Op string
	// Model, RecordID and TenantID carry repository context when known.
	Model    string
	RecordID string
	TenantID string

	Message string
	// Resolutions lists actionable options for ConfigurationError.
	Resolutions []string
	// Retryable marks transient failures that may succeed on retry.
	Retryable bool

	Err error
}

// Sentinels for errors.Is matching. They carry only a Kind.
var (
	ErrConnection              = &Error{Kind: KindConnection}
	ErrConnectionPoolExhausted = &Error{Kind: KindConnectionPoolExhausted}
	ErrCircuitBreakerOpen      = &Error{Kind: KindCircuitBreakerOpen}
	ErrQuery                   = &Error{Kind: KindQuery}
	ErrQueryTimeout            = &Error{Kind: KindQueryTimeout}
	ErrSQLInjectionAttempt     = &Error{Kind: KindSQLInjectionAttempt}
	ErrTemporal                = &Error{Kind: KindTemporal}
	ErrTemporalStrategy        = &Error{Kind: KindTemporalStrategy}
	ErrTemporalVersionConflict = &Error{Kind: KindTemporalVersionConflict}
	ErrTenant                  = &Error{Kind: KindTenant}
	ErrTenantIsolation         = &Error{Kind: KindTenantIsolation}
	ErrTenantNotConfigured     = &Error{Kind: KindTenantNotConfigured}
	ErrConfiguration           = &Error{Kind: KindConfiguration}
)

// Plain causes wrapped by typed errors.
var (
	ErrNotFound             = errors.New("record not found")
	ErrReturningUnsupported = errors.New("returning the affected row is not supported for this statement without a key")
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}

	var ctx []string
	if e.Model != "" {
		ctx = append(ctx, "model="+e.Model)
	}
	if e.RecordID != "" {
		ctx = append(ctx, "id="+e.RecordID)
	}
	if e.TenantID != "" {
		ctx = append(ctx, "tenant="+e.TenantID)
	}
	if len(ctx) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString("]")
	}

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	for i, r := range e.Resolutions {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, r)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind or of e's family.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil || t.Message != "" {
		return false
	}
	return e.Kind == t.Kind || e.Kind.Parent() == t.Kind
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with the given kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithContext re-raises err with repository context attached. The kind and
// retryability of the innermost typed error are preserved; untyped errors
// become QueryError.
func WithContext(err error, op, model, recordID, tenantID string) error {
	if err == nil {
		return nil
	}
	kind := KindQuery
	retryable := false
	var se *Error
	if errors.As(err, &se) {
		kind = se.Kind
		retryable = se.Retryable
	}
	return &Error{
		Kind:      kind,
		Op:        op,
		Model:     model,
		RecordID:  recordID,
		TenantID:  tenantID,
		Retryable: retryable,
		Err:       err,
	}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Retryable {
		return true
	}
	switch se.Kind {
	case KindConnection, KindQueryTimeout, KindTemporalVersionConflict:
		return true
	}
	return false
}

// NewConfigurationError builds a ConfigurationError with resolution options.
func NewConfigurationError(op, message string, resolutions ...string) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: message, Resolutions: resolutions}
}

// NewTenantIsolationError reports a row that belongs to another tenant.
func NewTenantIsolationError(op, recordID, expected, actual string) *Error {
	return &Error{
		Kind:     KindTenantIsolation,
		Op:       op,
		RecordID: recordID,
		TenantID: expected,
		Message:  fmt.Sprintf("record belongs to tenant %s, repository is scoped to tenant %s", actual, expected),
	}
}

// NewSQLInjectionAttempt reports an unsafe identifier or fragment.
func NewSQLInjectionAttempt(op, input, reason string) *Error {
	return &Error{
		Kind:    KindSQLInjectionAttempt,
		Op:      op,
		Message: fmt.Sprintf("rejected %q: %s", input, reason),
	}
}
