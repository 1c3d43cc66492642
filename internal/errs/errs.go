// Package errs defines the error kinds surfaced to MCP callers.
//
// Every error that crosses the tool boundary carries a stable Kind so that
// callers can tell bad input apart from a broken or read-only deployment.
package errs

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Kind is the stable, machine-readable tag of an error.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindConfiguration       Kind = "configuration_error"
	KindUnknownProviderKind Kind = "unknown_provider_kind"
	KindEmbedding           Kind = "embedding_error"
	KindSchemaConflict      Kind = "schema_conflict"
	KindReadOnlyViolation   Kind = "read_only_violation"
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindTimeout             Kind = "timeout"
	KindInternal            Kind = "internal_error"
)

// New creates a tagged error. Fields are key/value pairs attached as context.
func New(kind Kind, msg string, fields ...any) error {
	return oops.Code(kind).With(fields...).New(msg)
}

// Errorf creates a tagged error with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return oops.Code(kind).Errorf(format, args...)
}

// Wrap tags err with kind. Errors that already carry a kind keep it.
func Wrap(err error, kind Kind, msg string, fields ...any) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return oops.Code(kind).With(fields...).Wrapf(err, "%s", msg)
}

// WrapContext is Wrap, except that an untagged error caused by deadline
// expiry is tagged KindTimeout.
func WrapContext(ctx context.Context, err error, kind Kind, msg string, fields ...any) error {
	if err == nil {
		return nil
	}
	if KindOf(err) == "" && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		kind = KindTimeout
	}
	return Wrap(err, kind, msg, fields...)
}

// KindOf returns the kind attached to err, or "" when err is untagged.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code().(type) {
	case Kind:
		return code
	case string:
		return Kind(code)
	case nil:
		return ""
	default:
		return Kind(fmt.Sprintf("%v", code))
	}
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsFatal reports whether err must stop the process before it starts serving.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindUnknownProviderKind, KindSchemaConflict:
		return true
	}
	return false
}

// Fields returns the structured context attached to err.
func Fields(err error) map[string]any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()
}
