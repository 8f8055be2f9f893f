// SPDX-License-Identifier: AGPL-3.0-or-later
package script

import (
	"errors"
	"fmt"
)

var (
	ErrVariableNotDefined = errors.New("variable not defined")
	ErrFunctionNotDefined = errors.New("function not defined")
	ErrInvalidState       = errors.New("invalid state")
	ErrSyntax             = errors.New("syntax error")
	ErrEmptyStack         = errors.New("no folder left on stack to pop into")
	ErrArgumentCount      = errors.New("wrong number of arguments")
	ErrVersionMismatch    = errors.New("version mismatch")
)

// LineError reports the script line a failure happened on.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

func arity(name string, args []string, min, max int) error {
	if len(args) >= min && len(args) <= max {
		return nil
	}
	want := fmt.Sprintf("%d", min)
	if max != min {
		want = fmt.Sprintf("%d to %d", min, max)
	}
	return fmt.Errorf("%w: %s takes %s, got %d", ErrArgumentCount, name, want, len(args))
}
