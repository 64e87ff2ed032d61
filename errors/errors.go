package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode    Phase = "encode"    // bytes to text
	PhaseDecode    Phase = "decode"    // text to bytes
	PhaseAlloc     Phase = "alloc"     // buffer allocation
	PhaseMemory    Phase = "memory"    // linear memory access
	PhaseProtocol  Phase = "protocol"  // envelope handling
	PhaseToolchain Phase = "toolchain" // assembler/disassembler
	PhaseRuntime   Phase = "runtime"   // wazero runtime operations
	PhaseLoad      Phase = "load"      // module loading
	PhaseHost      Phase = "host"      // host module registration
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidCharacter Kind = "invalid_character"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindInvalidData      Kind = "invalid_data"
	KindAllocation       Kind = "allocation"
	KindInvalidFree      Kind = "invalid_free"
	KindFieldMissing     Kind = "field_missing"
	KindInvalidUTF8      Kind = "invalid_utf8"
	KindTooLarge         Kind = "too_large"
	KindNotFound         Kind = "not_found"
	KindNotInitialized   Kind = "not_initialized"
	KindInvalidInput     Kind = "invalid_input"
	KindRegistration     Kind = "registration"
	KindInstantiation    Kind = "instantiation"
	KindStatus           Kind = "status"
	KindToolchain        Kind = "toolchain"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidCharacter creates an error for a symbol outside a text alphabet
func InvalidCharacter(phase Phase, c byte, offset int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidCharacter,
		Detail: fmt.Sprintf("invalid base64 character %q at offset %d", c, offset),
		Value:  c,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte, index int) *Error {
	preview := data[index:]
	if len(preview) > 16 {
		preview = preview[:16]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence at index %d: %x", index, preview),
		Value:  index,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// TooLarge creates an error for a size at or above a ceiling
func TooLarge(phase Phase, what string, size, ceiling uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTooLarge,
		Detail: fmt.Sprintf("%s of %d bytes meets or exceeds ceiling %d", what, size, ceiling),
		Value:  size,
	}
}

// InvalidFree creates an error for releasing a buffer that is not live
func InvalidFree(ptr, size uint32, detail string) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindInvalidFree,
		Detail: fmt.Sprintf("free(%#x, %d): %s", ptr, size, detail),
		Value:  ptr,
	}
}

// FieldMissing creates a missing field error
func FieldMissing(phase Phase, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldMissing,
		Path:   []string{fieldName},
		Detail: fmt.Sprintf("missing field `%s`", fieldName),
	}
}

// OutOfBounds creates an out of bounds memory access error
func OutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%#x, +%d) outside memory of %d bytes", offset, length, size),
		Value:  offset,
	}
}

// Status creates an error for a negative entry-point status code
func Status(op string, status int32) *Error {
	return &Error{
		Phase:  PhaseProtocol,
		Kind:   KindStatus,
		Detail: fmt.Sprintf("%s returned status %d", op, status),
		Value:  status,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Runtime package convenience constructors

// NotInitialized creates a not-initialized error for missing module/instance
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Toolchain wraps a failure reported by the assembler or disassembler
func Toolchain(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseToolchain,
		Kind:   KindToolchain,
		Detail: op,
		Cause:  cause,
	}
}
