// SPDX-License-Identifier: AGPL-3.0-or-later
package clierr

import (
	"errors"
	"fmt"

	"github.com/bartekus/webstore/internal/apperrors"
	"github.com/bartekus/webstore/internal/script"
)

// Process exit codes.
const (
	CodeOK                 = 0
	CodeGeneric            = 1
	CodeScript             = 2
	CodeVendorRequest      = 3
	CodeValidationFailed   = 4
	CodeNotProcessedInTime = 5
	CodeManifestParse      = 6
	CodeIDMismatch         = 7
	CodeInvalidArgument    = 8
)

type ExitCoder interface {
	error
	ExitCode() int
}

// ExitError is an error that carries an explicit process exit code.
// It supports wrapping via Unwrap so errors.Is/As work as expected.
type ExitError struct {
	code  int
	msg   string
	cause error
}

func (e *ExitError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *ExitError) ExitCode() int { return e.code }

// Unwrap enables errors.Is/As to traverse the underlying cause.
func (e *ExitError) Unwrap() error { return e.cause }

// Wrap creates an ExitError that wraps an underlying cause. A nil cause
// yields a plain message.
func Wrap(code int, msg string, cause error) error {
	return &ExitError{code: normalize(code), msg: msg, cause: cause}
}

// Newf is a formatted variant.
func Newf(code int, format string, args ...any) error {
	return &ExitError{code: normalize(code), msg: fmt.Sprintf(format, args...)}
}

// domainCodes is checked in order; the first matching kind wins.
var domainCodes = []struct {
	kind error
	code int
}{
	{apperrors.ErrValidationFailed, CodeValidationFailed},
	{apperrors.ErrNotProcessedInTime, CodeNotProcessedInTime},
	{apperrors.ErrManifestParse, CodeManifestParse},
	{apperrors.ErrIDMismatch, CodeIDMismatch},
	{apperrors.ErrInvalidArgument, CodeInvalidArgument},
	{apperrors.ErrMissingAppID, CodeInvalidArgument},
	{apperrors.ErrVendorRequest, CodeVendorRequest},
	{apperrors.ErrUploadState, CodeVendorRequest},
	{apperrors.ErrPublishStatus, CodeVendorRequest},
}

// ExitCodeOf extracts an exit code from any error. An explicit ExitCoder
// wins, then the store error kinds, then script failures; anything else is 1.
func ExitCodeOf(err error) int {
	if err == nil {
		return CodeOK
	}
	var ec ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	for _, dc := range domainCodes {
		if errors.Is(err, dc.kind) {
			return dc.code
		}
	}
	var le *script.LineError
	if errors.As(err, &le) {
		return CodeScript
	}
	return CodeGeneric
}

func normalize(code int) int {
	// Exit code 0 means success; errors should never be 0.
	if code <= 0 {
		return CodeGeneric
	}
	return code
}
