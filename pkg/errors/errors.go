// Package errors provides structured error types used across the pipeline.
// We prefer these over raw fmt.Errorf strings to enable reliable checks with
// errors.Is / errors.As and to carry minimal context about the failure.
//
// The kinds mirror how the orchestrator treats a failure: transient errors are
// retried within a step, permanent and provider-limit errors are recorded and
// the run continues, schema errors get one repair attempt, integrity and
// config errors abort the run.
package errors

import (
	"errors"
	"fmt"
)

// TransientError indicates a failure that is expected to succeed on retry:
// network timeouts, DNS hiccups, connection resets, 5xx, 429.
type TransientError struct {
	Op  string // where it happened (package.Function)
	Msg string // human friendly message (no PII)
	Err error  // underlying cause (optional)
}

func (e *TransientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("transient: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("transient: %s: %s", e.Op, e.Msg)
}

func (e *TransientError) Unwrap() error           { return e.Err }
func (e *TransientError) Operation() string       { return e.Op }
func (e *TransientError) Message() string         { return e.Msg }
func (e *TransientError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewTransient(op, msg string, err error) error {
	return &TransientError{Op: op, Msg: msg, Err: err}
}

// PermanentError indicates a per-item failure that retrying will not fix:
// 4xx other than 429, SSL mismatch against a dead host, unreadable files.
// The item is recorded and the step moves on.
type PermanentError struct {
	Op  string
	Msg string
	Err error
}

func (e *PermanentError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("permanent: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("permanent: %s: %s", e.Op, e.Msg)
}

func (e *PermanentError) Unwrap() error           { return e.Err }
func (e *PermanentError) Operation() string       { return e.Op }
func (e *PermanentError) Message() string         { return e.Msg }
func (e *PermanentError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewPermanent(op, msg string, err error) error {
	return &PermanentError{Op: op, Msg: msg, Err: err}
}

// ProviderLimitError indicates an external provider refused further work for
// the rest of the run (LLM quota, rate limit past Retry-After). The owning
// step is skipped with a reason; state already written stays untouched.
type ProviderLimitError struct {
	Op     string
	Msg    string
	Err    error
	System string // provider name e.g. "openai" / "googlemaps"
}

func (e *ProviderLimitError) Error() string {
	if e == nil {
		return "<nil>"
	}
	sys := e.System
	if sys == "" {
		sys = "provider"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s limit: %s: %s: %v", sys, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s limit: %s: %s", sys, e.Op, e.Msg)
}

func (e *ProviderLimitError) Unwrap() error     { return e.Err }
func (e *ProviderLimitError) Operation() string { return e.Op }
func (e *ProviderLimitError) Message() string   { return e.Msg }
func (e *ProviderLimitError) Context() map[string]any {
	return map[string]any{"op": e.Op, "msg": e.Msg, "system": e.System}
}

func NewProviderLimit(op, system, msg string, err error) error {
	return &ProviderLimitError{Op: op, System: system, Msg: msg, Err: err}
}

// SchemaError indicates an external response that does not parse into the
// expected shape (non-JSON LLM output, missing required fields). Callers get
// exactly one repair attempt before recording the item as needing another pass.
type SchemaError struct {
	Op  string
	Msg string
	Err error
}

func (e *SchemaError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("schema: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("schema: %s: %s", e.Op, e.Msg)
}

func (e *SchemaError) Unwrap() error           { return e.Err }
func (e *SchemaError) Operation() string       { return e.Op }
func (e *SchemaError) Message() string         { return e.Msg }
func (e *SchemaError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewSchema(op, msg string, err error) error { return &SchemaError{Op: op, Msg: msg, Err: err} }

// IntegrityError indicates corrupted or impossible state (invalid area bounds,
// negative hash length). Fatal to the pipeline run.
type IntegrityError struct {
	Op  string
	Msg string
	Err error
}

func (e *IntegrityError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("integrity: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("integrity: %s: %s", e.Op, e.Msg)
}

func (e *IntegrityError) Unwrap() error           { return e.Err }
func (e *IntegrityError) Operation() string       { return e.Op }
func (e *IntegrityError) Message() string         { return e.Msg }
func (e *IntegrityError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewIntegrity(op, msg string, err error) error {
	return &IntegrityError{Op: op, Msg: msg, Err: err}
}

// ConfigError indicates missing or invalid configuration for a stage that was
// actually invoked. Fatal at startup, before any work.
type ConfigError struct {
	Op  string
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Op, e.Msg)
}

func (e *ConfigError) Unwrap() error           { return e.Err }
func (e *ConfigError) Operation() string       { return e.Op }
func (e *ConfigError) Message() string         { return e.Msg }
func (e *ConfigError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewConfig(op, msg string, err error) error { return &ConfigError{Op: op, Msg: msg, Err: err} }

// DBError indicates a relational store failure. The store has its own
// timeout discipline, so DB errors are not retried by the generic policy;
// they surface as step failures.
type DBError struct {
	Op  string
	Msg string
	Err error
}

func (e *DBError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("db: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("db: %s: %s", e.Op, e.Msg)
}

func (e *DBError) Unwrap() error           { return e.Err }
func (e *DBError) Operation() string       { return e.Op }
func (e *DBError) Message() string         { return e.Msg }
func (e *DBError) Context() map[string]any { return map[string]any{"op": e.Op, "msg": e.Msg} }

func NewDB(op, msg string, err error) error { return &DBError{Op: op, Msg: msg, Err: err} }

// IsKind helpers: allow callers to check error kind without type assertions.
// Example: if errors.Is(err, errors.ErrTransient) { ... }
var (
	ErrTransient     = &TransientError{}
	ErrPermanent     = &PermanentError{}
	ErrProviderLimit = &ProviderLimitError{}
	ErrSchema        = &SchemaError{}
	ErrIntegrity     = &IntegrityError{}
	ErrConfig        = &ConfigError{}
	ErrDB            = &DBError{}
)

// Is enables errors.Is(err, ErrTransient) via errors.As semantics.
// We delegate to errors.As with the zero-value pointer of each type.
func Is(err, target error) bool {
	if err == nil || target == nil {
		return errors.Is(err, target)
	}
	switch target.(type) {
	case *TransientError:
		var t *TransientError
		return errors.As(err, &t)
	case *PermanentError:
		var p *PermanentError
		return errors.As(err, &p)
	case *ProviderLimitError:
		var pl *ProviderLimitError
		return errors.As(err, &pl)
	case *SchemaError:
		var s *SchemaError
		return errors.As(err, &s)
	case *IntegrityError:
		var i *IntegrityError
		return errors.As(err, &i)
	case *ConfigError:
		var c *ConfigError
		return errors.As(err, &c)
	case *DBError:
		var d *DBError
		return errors.As(err, &d)
	default:
		return errors.Is(err, target)
	}
}

// Retryable reports whether the error is worth another attempt inside a step.
// Only transient failures qualify; everything else either moves on or aborts.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var t *TransientError
	return errors.As(err, &t)
}

// Fatal reports whether the error must abort the pipeline run.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	var i *IntegrityError
	var c *ConfigError
	return errors.As(err, &i) || errors.As(err, &c)
}
