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

// Package otl implements the parts of OpenType layout tables which are
// shared between the "GSUB" and "GPOS" tables: the script, feature and
// lookup lists, and the deduplicated coverage and class definition areas.
//
// A Table accumulates per-subtable registrations while a client (the gsub
// package, or a future gpos counterpart) packs its lookup subtables.  Once
// all subtables are registered, Fill assigns the final lookup list indices
// and computes the layout of all sections; the Append* methods then emit
// the sections in file order.
package otl

import "fmt"

// Tag is a 4-byte OpenType tag, e.g. "liga" or "DFLT".
type Tag string

// TagUndef marks subtables which must not be registered with any feature.
// It is used for the anonymous lookups synthesized by contextual rules.
const TagUndef Tag = ""

// TagDefaultLang is the language system tag stored in the DefaultLangSys
// slot of a script table rather than in its language system records.
const TagDefaultLang Tag = "dflt"

// LookupFlag contains bits which modify application of a lookup to a glyph
// string.
//
// https://docs.microsoft.com/en-us/typography/opentype/spec/chapter2#lookupFlags
type LookupFlag uint16

// Bit values for LookupFlag.
const (
	// RightToLeft only affects GPOS lookup type 3 (cursive attachment).
	RightToLeft LookupFlag = 0x0001

	// IgnoreBaseGlyphs indicates that the lookup ignores glyphs which
	// are classified as base glyphs in the GDEF table.
	IgnoreBaseGlyphs LookupFlag = 0x0002

	// IgnoreLigatures indicates that the lookup ignores glyphs which
	// are classified as ligatures in the GDEF table.
	IgnoreLigatures LookupFlag = 0x0004

	// IgnoreMarks indicates that the lookup ignores glyphs which are
	// classified as marks in the GDEF table.
	IgnoreMarks LookupFlag = 0x0008

	// UseMarkFilteringSet indicates that the lookup ignores all glyphs
	// classified as marks in the GDEF table, except for those in the
	// specified mark filtering set.
	UseMarkFilteringSet LookupFlag = 0x0010

	// MarkAttachTypeMask, if not zero, skips over all marks that are not
	// of the specified mark attachment class.
	MarkAttachTypeMask LookupFlag = 0xFF00
)

// LabelKind distinguishes the three ways a lookup can be identified before
// the final lookup list indices are known.
type LabelKind uint8

const (
	// LabelNamed identifies a lookup named by the feature file author.
	LabelNamed LabelKind = iota

	// LabelAnonymous identifies a lookup synthesized from an inline
	// replacement inside a contextual rule.
	LabelAnonymous

	// LabelReference re-registers a previously defined named lookup with
	// an additional feature.  Subtables carrying a reference label own no
	// data of their own.
	LabelReference
)

// A Label identifies a lookup before lookup list indices are assigned.
// Labels are resolved to dense indices by [Table.Fill].
type Label struct {
	Kind LabelKind
	ID   uint16
}

// IsReference reports whether the label merely references a lookup defined
// elsewhere.
func (l Label) IsReference() bool {
	return l.Kind == LabelReference
}

func (l Label) String() string {
	switch l.Kind {
	case LabelNamed:
		return fmt.Sprintf("lookup %d", l.ID)
	case LabelAnonymous:
		return fmt.Sprintf("anonymous lookup %d", l.ID)
	default:
		return fmt.Sprintf("lookup reference %d", l.ID)
	}
}

// key normalizes a label for index lookup: a reference resolves to the
// named lookup it refers to.
func (l Label) key() Label {
	if l.Kind == LabelReference {
		return Label{Kind: LabelNamed, ID: l.ID}
	}
	return l
}

// An Error reports a structural problem detected while laying out the
// shared sections, most importantly 16-bit offset overflow.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "otl: " + e.Reason
}

func put16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func putTag(buf []byte, t Tag) []byte {
	if len(t) != 4 {
		panic("malformed tag " + string(t))
	}
	return append(buf, t[0], t[1], t[2], t[3])
}
