// SPDX-License-Identifier: AGPL-3.0-or-later
package chrome

import "github.com/bartekus/webstore/internal/apperrors"

// Target is the audience a published item is made available to.
type Target int

const (
	TargetPublic Target = iota
	TargetTrusted
)

// ParseTarget maps the user-facing names "public" and "trusted" to a Target.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "public":
		return TargetPublic, nil
	case "trusted":
		return TargetTrusted, nil
	default:
		return 0, apperrors.Invalidf("unknown publish target %q, expected one of public, trusted", s)
	}
}

func (t Target) String() string {
	switch t {
	case TargetPublic:
		return "public"
	case TargetTrusted:
		return "trusted"
	default:
		return "unknown"
	}
}

// publishTarget is the value the Web Store API expects.
func (t Target) publishTarget() (string, error) {
	switch t {
	case TargetPublic:
		return "default", nil
	case TargetTrusted:
		return "trustedTesters", nil
	default:
		return "", apperrors.Invalidf("unknown publish target %d", int(t))
	}
}
