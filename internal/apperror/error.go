package apperror

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// AppError is an error carrying a classification code. The code drives
// retry and logging decisions at the strategy loop; the cause chain
// stays intact for errors.Is and errors.As.
type AppError struct {
	Code      Code      `json:"code"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	cause error
	stack []uintptr
}

func (e *AppError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (context: %s)", e.Code, e.Message, e.Context)
}

// Unwrap exposes the wrapped cause to the errors package.
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches any AppError with the same code, so callers can compare
// against a bare New(CodeX).
func (e *AppError) Is(target error) bool {
	other, ok := target.(*AppError)
	return ok && e.Code == other.Code
}

// origin names the call site that built the error, in the form
// "driver.go:117 app.(*Driver).cycle". Empty when no frame outside
// this package was captured.
func (e *AppError) origin() string {
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		fn := frame.Function
		if fn != "" && !strings.HasPrefix(fn, "runtime.") && !strings.Contains(fn, "internal/apperror.") {
			return fmt.Sprintf("%s:%d %s", filepath.Base(frame.File), frame.Line, path.Base(fn))
		}
		if !more {
			return ""
		}
	}
}

func captureStack() []uintptr {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	return pcs[:n]
}

// New builds an AppError for code. The default message comes from the
// code's catalog entry; options override it.
func New(code Code, opts ...Option) *AppError {
	e := &AppError{
		Code:      code,
		Message:   messages[code],
		Timestamp: time.Now(),
		stack:     captureStack(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.Message == "" {
		e.Message = string(code)
	}
	return e
}

// Option configures a new AppError.
type Option func(*AppError)

// WithMessage replaces the catalog message.
func WithMessage(message string) Option {
	return func(e *AppError) {
		e.Message = message
	}
}

// WithContext attaches free-form detail, e.g. the URL or pair involved.
func WithContext(context string) Option {
	return func(e *AppError) {
		e.Context = context
	}
}

// WithCause records the underlying error.
func WithCause(cause error) Option {
	return func(e *AppError) {
		e.cause = cause
	}
}

// Wrap classifies err under code. An error that already carries a code
// keeps it; missing context is backfilled onto a copy, never onto the
// shared original.
func Wrap(err error, code Code, context string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if context == "" || appErr.Context != "" {
			return appErr
		}
		clone := *appErr
		clone.Context = context
		return &clone
	}

	return New(code, WithContext(context), WithCause(err))
}

// IsAppError reports whether err carries a code anywhere in its chain.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetCode returns the code carried by err, or CodeUnknownError for
// plain errors.
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

// LogAttrs flattens err into logger key-value pairs. Plain errors get
// the code and the error itself; an AppError adds its context and the
// site that built it.
func LogAttrs(err error) []any {
	attrs := []any{"code", GetCode(err), "error", err}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return attrs
	}
	if appErr.Context != "" {
		attrs = append(attrs, "error_context", appErr.Context)
	}
	if site := appErr.origin(); site != "" {
		attrs = append(attrs, "origin", site)
	}
	return attrs
}
