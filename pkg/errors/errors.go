package errors

import (
	stderrors "errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// New returns an error with the supplied message and the current stack.
func New(msg string) error {
	return pkgerrors.New(msg)
}

// Errorf formats according to a format specifier and records the current stack.
func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

// Wrap annotates err with msg. It returns nil if err is nil.
func Wrap(err error, msg string) error {
	return pkgerrors.Wrap(err, msg)
}

// Wrapf annotates err with a formatted message. It returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// WithStack annotates err with the current stack. It returns nil if err is nil.
func WithStack(err error) error {
	return pkgerrors.WithStack(err)
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func Cause(err error) error {
	return pkgerrors.Cause(err)
}

// NewWithReport creates an error and sends it to the registered reporters.
func NewWithReport(msg string) error {
	err := pkgerrors.New(msg)
	report(err)
	return err
}

// ErrorfAndReport formats an error and reports it.
func ErrorfAndReport(format string, args ...interface{}) error {
	err := pkgerrors.New(fmt.Sprintf(format, args...))
	report(err)
	return err
}

// WrapAndReport wraps err with msg and reports it. It returns nil when err is nil.
func WrapAndReport(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := pkgerrors.Wrap(err, msg)
	report(wrapped)
	return wrapped
}

func WrapfAndReport(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	wrapped := pkgerrors.Wrapf(err, format, args...)
	report(wrapped)
	return wrapped
}

func WithStackAndReport(err error) error {
	if err == nil {
		return nil
	}
	stacked := pkgerrors.WithStack(err)
	report(stacked)
	return stacked
}
