package errors

import "fmt"

type ErrorCode int

const (
	InternalError ErrorCode = iota
	InvalidConfiguration
	InvalidStatement

	UnknownTable
	UnknownColumn
	TypeMismatch
	UnsupportedQuery

	CorruptSegment
	SegmentNotFound

	OutOfMemory
	PersistenceUnavailable
	QueryCancelled

	ValueOutOfRange
)

func NewInternalError(msg string) LocustError {
	return NewLocustErrorf(InternalError, "Internal error: %s please consult server logs for details", msg)
}

func NewInvalidConfigurationError(msg string) LocustError {
	return NewLocustErrorf(InvalidConfiguration, "Invalid configuration: %s", msg)
}

func NewInvalidStatementError(msg string) LocustError {
	return NewLocustErrorf(InvalidStatement, msg)
}

func NewUnknownTableError(tableName string) LocustError {
	return NewLocustErrorf(UnknownTable, "Unknown table: %s", tableName)
}

func NewUnknownColumnError(tableName string, columnName string) LocustError {
	return NewLocustErrorf(UnknownColumn, "Table %s does not have a column %s", tableName, columnName)
}

func NewTypeMismatchError(expected string, actual string) LocustError {
	return NewLocustErrorf(TypeMismatch, "Type mismatch: expected %s but found %s", expected, actual)
}

func NewUnsupportedQueryError(msg string) LocustError {
	return NewLocustErrorf(UnsupportedQuery, "Unsupported query: %s", msg)
}

func NewCorruptSegmentError(segmentID string, msg string) LocustError {
	return NewLocustErrorf(CorruptSegment, "Corrupt segment %s: %s", segmentID, msg)
}

func NewSegmentNotFoundError(segmentID string) LocustError {
	return NewLocustErrorf(SegmentNotFound, "Segment not found: %s", segmentID)
}

func NewOutOfMemoryError(msg string) LocustError {
	return NewLocustErrorf(OutOfMemory, "Out of memory: %s", msg)
}

func NewPersistenceUnavailableError(msg string) LocustError {
	return NewLocustErrorf(PersistenceUnavailable, "Persistence unavailable: %s", msg)
}

func NewQueryCancelledError() LocustError {
	return NewLocustErrorf(QueryCancelled, "Query cancelled")
}

func NewValueOutOfRangeError(msg string) LocustError {
	return NewLocustErrorf(ValueOutOfRange, "Value out of range. %s", msg)
}

func NewLocustErrorf(errorCode ErrorCode, msgFormat string, args ...interface{}) LocustError {
	msg := fmt.Sprintf(fmt.Sprintf("LDB%04d - %s", errorCode, msgFormat), args...)
	return LocustError{Code: errorCode, Msg: msg}
}

func NewLocustError(errorCode ErrorCode, msg string) LocustError {
	return LocustError{Code: errorCode, Msg: msg}
}

// LocustError is any kind of error that is exposed to the user via external
// interfaces like the CLI
type LocustError struct {
	Code ErrorCode
	Msg  string
}

func (u LocustError) Error() string {
	return u.Msg
}

// CodeOf extracts the ErrorCode from anywhere in an error chain, so the
// scheduler can classify failures into batch-local-recoverable vs fatal.
// Errors without a LocustError in the chain classify as InternalError.
func CodeOf(err error) ErrorCode {
	var le LocustError
	if As(err, &le) {
		return le.Code
	}
	return InternalError
}

// IsFatalToQuery reports whether a task failure must abort the whole query
// rather than be recovered by excluding the failing batch.
func IsFatalToQuery(code ErrorCode) bool {
	switch code {
	case OutOfMemory, PersistenceUnavailable, TypeMismatch, InternalError:
		return true
	}
	return false
}
