// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a field path, the offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseProtocol, errors.KindFieldMissing).
//		Path("base64_content").
//		Detail("missing field `%s`", "base64_content").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AllocationFailed(errors.PhaseAlloc, 128, 8)
//	err := errors.OutOfBounds(errors.PhaseMemory, ptr, n, size)
//
// All errors implement the standard error interface and support errors.Is/As.
// errors.Is matches any *Error with the same Phase and Kind, so sentinel values
// such as transcoder.ErrInvalidCharacter can be compared directly.
package errors
