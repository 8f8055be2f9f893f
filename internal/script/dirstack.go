// SPDX-License-Identifier: AGPL-3.0-or-later
package script

import "github.com/edwingeng/deque"

// DirStack is the pushd/popd stack of absolute directories.
type DirStack struct {
	d deque.Deque
}

func NewDirStack() *DirStack {
	return &DirStack{d: deque.NewDeque()}
}

func (s *DirStack) Push(dir string) { s.d.PushBack(dir) }

// Pop removes the most recently pushed directory.
func (s *DirStack) Pop() (string, error) {
	if s.d.Empty() {
		return "", ErrEmptyStack
	}
	return s.d.PopBack().(string), nil
}

func (s *DirStack) Len() int { return s.d.Len() }
