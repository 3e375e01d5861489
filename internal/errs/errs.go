// Package errs defines the stable error taxonomy shared across the
// orchestration core. Every kind maps to a numeric code for the (out of
// scope) transport layer; messages carry offending ids but never internal
// paths.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable error category. See design doc Section 7.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidScript
	KindInvalidOverride
	KindInvalidConfig
	KindNotFound
	KindConflictingBinding
	KindQuotaExceeded
	KindNotAtDayBoundary
	KindSimulationLocked
	KindMissingAgentScripts
	KindScriptFailure
	KindCacheError
	KindDurableStoreError
	KindPersistenceError
	KindInvariantViolation
)

// Code returns the stable numeric code for the transport layer.
func (k Kind) Code() int {
	return int(k)
}

func (k Kind) String() string {
	switch k {
	case KindInvalidScript:
		return "InvalidScript"
	case KindInvalidOverride:
		return "InvalidOverride"
	case KindInvalidConfig:
		return "InvalidConfig"
	case KindNotFound:
		return "NotFound"
	case KindConflictingBinding:
		return "ConflictingBinding"
	case KindQuotaExceeded:
		return "QuotaExceeded"
	case KindNotAtDayBoundary:
		return "NotAtDayBoundary"
	case KindSimulationLocked:
		return "SimulationLocked"
	case KindMissingAgentScripts:
		return "MissingAgentScripts"
	case KindScriptFailure:
		return "ScriptFailure"
	case KindCacheError:
		return "CacheError"
	case KindDurableStoreError:
		return "DurableStoreError"
	case KindPersistenceError:
		return "PersistenceError"
	case KindInvariantViolation:
		return "InvariantViolation"
	default:
		return "Unknown"
	}
}

// ScriptFailureKind distinguishes why a sandboxed invocation failed.
type ScriptFailureKind int

const (
	ScriptFailureUnknown ScriptFailureKind = iota
	ScriptFailureTimeout
	ScriptFailureMemory
	ScriptFailureRuntime
	ScriptFailureInvalidReturn
	ScriptFailureImportDenied
)

func (k ScriptFailureKind) String() string {
	switch k {
	case ScriptFailureTimeout:
		return "Timeout"
	case ScriptFailureMemory:
		return "MemoryLimit"
	case ScriptFailureRuntime:
		return "RuntimeException"
	case ScriptFailureInvalidReturn:
		return "InvalidReturn"
	case ScriptFailureImportDenied:
		return "ImportDenied"
	default:
		return "Unknown"
	}
}

// Error is a kinded, wrapped error. Offending ids are carried in Subject.
type Error struct {
	Kind    Kind
	Subject string // offending id(s), never internal paths or secrets
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Subject)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a kinded error.
func New(kind Kind, subject, message string) *Error {
	return &Error{Kind: kind, Subject: subject, Message: message}
}

// Wrap builds a kinded error wrapping a lower-level cause.
func Wrap(kind Kind, subject, message string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Message: message, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or KindUnknown if err isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
