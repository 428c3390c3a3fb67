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

// An extensionRecord is the fixed-size indirection subtable of an Extension
// Substitution lookup.  It lives in the ordinary subtable area; the wrapped
// subtable follows the shared coverage and class areas and is addressed
// with a 32-bit offset.
// https://docs.microsoft.com/en-us/typography/opentype/spec/gsub#71-extension-substitution-subtable-format-1
type extensionRecord struct {
	wrappedType uint16
	offset      uint32 // adjusted during the write pass
}

const extensionRecordSize = 8

func (e *extensionRecord) append(b *Builder, sub *subtable, buf []byte) []byte {
	off := e.offset + b.offset.extensionSection - sub.offset

	buf = put16(buf, 1) // SubstFormat
	buf = put16(buf, e.wrappedType)
	buf = put32(buf, off)
	return buf
}
