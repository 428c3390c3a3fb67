// github.com/skef/afdko - compilation of OpenType layout tables
// Copyright (C) 2024  The afdko authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package gsub

import "fmt"

// A CompileError aborts compilation of the table.  Context identifies the
// enclosing feature (and, for anonymous lookups, the feature of the
// contextual rule that spawned them).
type CompileError struct {
	Context string
	Reason  string
}

func (e *CompileError) Error() string {
	if e.Context == "" {
		return "gsub: " + e.Reason
	}
	return fmt.Sprintf("gsub: in %s: %s", e.Context, e.Reason)
}

// A Note records a recoverable condition, such as a duplicate rule being
// collapsed.  Notes do not stop compilation.
type Note struct {
	Context string
	Message string
}

func (n Note) String() string {
	if n.Context == "" {
		return n.Message
	}
	return n.Message + " in " + n.Context
}

// fatal records the first fatal error.  Later errors are dropped, and all
// further rule processing is skipped.
func (b *Builder) fatal(format string, args ...interface{}) {
	if b.err != nil {
		return
	}
	b.err = &CompileError{
		Context: b.idText,
		Reason:  fmt.Sprintf(format, args...),
	}
}

func (b *Builder) note(format string, args ...interface{}) {
	b.notes = append(b.notes, Note{
		Context: b.idText,
		Message: fmt.Sprintf(format, args...),
	})
}

// checkOverflow validates one 16-bit offset.  ctx names the subtable's
// enclosing feature; offsetType and subType identify the offset in the
// error message.
func checkOverflow(ctx, offsetType string, offset uint32, subType string) error {
	if offset > 0xFFFF {
		return &CompileError{
			Context: ctx,
			Reason: fmt.Sprintf("%s rules cause an offset overflow (0x%x) to a %s",
				subType, offset, offsetType),
		}
	}
	return nil
}
