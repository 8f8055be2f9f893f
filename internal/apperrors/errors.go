// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apperrors defines the error kinds shared by the store clients and the
// publish/poll/download workflow. Callers match them with errors.Is.
package apperrors

import "errors"

var (
	ErrVendorRequest      = errors.New("vendor request failed")
	ErrValidationFailed   = errors.New("validation failed")
	ErrNotProcessedInTime = errors.New("not processed in time")
	ErrManifestParse      = errors.New("manifest parse error")
	ErrIDMismatch         = errors.New("item id mismatch")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrMissingAppID       = errors.New("missing app id")
	ErrUploadState        = errors.New("unexpected upload state")
	ErrPublishStatus      = errors.New("unexpected publish status")
	ErrStorage            = errors.New("storage error")
)
