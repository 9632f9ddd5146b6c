package fault

import (
	"errors"
	"fmt"
)

type faultCode string

const (
	UnknownCode         faultCode = "unknown"
	BindFailedCode      faultCode = "bind_failed"
	TLSInitCode         faultCode = "tls_init_failed"
	MalformedPrefixCode faultCode = "malformed-length-prefix"
	BufferOverflowCode  faultCode = "buffer-overflow"
)

type fault struct {
	code     faultCode
	message  string
	metadata any
	original error
}

func New(code faultCode, message string) fault {
	return fault{
		code:    code,
		message: message,
	}
}

func (f fault) WithMetadata(metadata any) fault {
	e := f
	e.metadata = metadata
	return e
}

func (f fault) WithOriginal(original error) fault {
	e := f
	e.original = original
	return e
}

func (f fault) Code() faultCode {
	return f.code
}

func (f fault) Message() string {
	return f.message
}

func (f fault) Metadata() any {
	return f.metadata
}

func (f fault) Original() error {
	return f.original
}

func (f fault) Unwrap() error {
	return f.original
}

func (f fault) Error() string {
	if f.original != nil {
		return fmt.Sprintf("%s: %v", f.message, f.original)
	}
	return f.message
}

// CodeOf extracts the fault code from an error chain.
// Returns UnknownCode for errors that carry no fault.
func CodeOf(err error) faultCode {
	var f fault
	if errors.As(err, &f) {
		return f.code
	}
	return UnknownCode
}
