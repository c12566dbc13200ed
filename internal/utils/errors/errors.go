package errors

import (
	"errors"
	"fmt"
)

var (
	// General Errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("unsupported feature")
	ErrNotInitialized  = errors.New("component not initialized")

	// I/O Errors
	ErrIO = errors.New("I/O error")

	// Container Errors
	ErrFormat       = errors.New("invalid backup file format")
	ErrMissingBlock = errors.New("required metadata block missing")
	ErrDecode       = errors.New("metadata decode failed")

	// Restore Errors
	ErrIndexOutOfRange = errors.New("block index out of range")
	ErrChainResolution = errors.New("backup chain resolution failed")

	// Provisioning Errors
	ErrProvisionFailed = errors.New("target medium provisioning failed")
)

// ImageError carries the file, offset and operation that produced an error
type ImageError struct {
	Err       error  // The underlying error
	Operation string // The operation that caused the error
	Object    string // The file or device the operation was performed on
	Offset    int64  // Byte offset, -1 when not applicable
	Detail    string // Additional details about the error
}

// Error implements the error interface
func (e *ImageError) Error() string {
	where := e.Object
	if e.Offset >= 0 {
		if where != "" {
			where = fmt.Sprintf("%s@%d", where, e.Offset)
		} else {
			where = fmt.Sprintf("offset %d", e.Offset)
		}
	}

	if where != "" && e.Detail != "" {
		return fmt.Sprintf("%s: %s [%s]: %v", e.Operation, where, e.Detail, e.Err)
	} else if where != "" {
		return fmt.Sprintf("%s: %s: %v", e.Operation, where, e.Err)
	} else if e.Detail != "" {
		return fmt.Sprintf("%s: %v [%s]", e.Operation, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *ImageError) Unwrap() error {
	return e.Err
}

// NewImageError creates a new ImageError with the given details
func NewImageError(err error, operation string, object string, offset int64, detail string) error {
	return &ImageError{
		Err:       err,
		Operation: operation,
		Object:    object,
		Offset:    offset,
		Detail:    detail,
	}
}

// Wrap attaches the sentinel kind to a lower level cause, keeping both matchable with errors.Is
func Wrap(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

// IsIOError returns true if the error is related to I/O operations
func IsIOError(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsFormatError returns true if the error indicates a malformed backup file
func IsFormatError(err error) bool {
	return errors.Is(err, ErrFormat) || errors.Is(err, ErrMissingBlock)
}

// IsDecodeError returns true if the JSON metadata could not be decoded
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}

// IsChainError returns true if the error is related to chain resolution or merging
func IsChainError(err error) bool {
	return errors.Is(err, ErrChainResolution) || errors.Is(err, ErrIndexOutOfRange)
}
