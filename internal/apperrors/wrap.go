// SPDX-License-Identifier: AGPL-3.0-or-later

package apperrors

import "fmt"

// WrapVendor wraps an error with vendor request context
func WrapVendor(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrVendorRequest, context, err)
}

// WrapManifest wraps an error with manifest parsing context
func WrapManifest(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrManifestParse, context, err)
}

// WrapStorage wraps an error with storage context
func WrapStorage(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, context, err)
}

// Vendorf creates a vendor request error without an underlying cause,
// e.g. for a missing JSON field in an otherwise successful response.
func Vendorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrVendorRequest, fmt.Sprintf(format, args...))
}

// Invalidf creates an invalid argument error.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
