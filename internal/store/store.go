// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the vendor-agnostic part of talking to extension stores:
// the status model shared by the vendor clients and the publish/poll/download
// workflow that waits for store-side processing before fetching artifacts.
package store

import "context"

// Client is the capability the download workflow polls. Both the Chrome and
// the Firefox clients implement it.
type Client interface {
	// Status reports whether the given item version has been processed by the
	// store and, once it has, the URLs of its downloadable files.
	Status(ctx context.Context, id, version string) (Status, error)
	// Fetch returns the content behind a URL obtained from Status.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Status is the result of one status query.
type Status struct {
	Processed  bool
	URLs       []string
	Validation *ValidationResult
}

// ValidationResult is the outcome of the store's automated content validation.
type ValidationResult struct {
	Success  bool
	Errors   []Message
	Warnings []Message
	Notices  []Message
}

// Message is a single validation finding.
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// Failed reports whether the validation explicitly failed.
func (v *ValidationResult) Failed() bool {
	return v != nil && !v.Success
}

// Partition sorts messages into errors, warnings and other notices by type.
func Partition(success bool, messages []Message) *ValidationResult {
	res := &ValidationResult{Success: success}
	for _, m := range messages {
		switch m.Type {
		case "error":
			res.Errors = append(res.Errors, m)
		case "warning":
			res.Warnings = append(res.Warnings, m)
		default:
			res.Notices = append(res.Notices, m)
		}
	}
	return res
}
