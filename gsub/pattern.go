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

import (
	"slices"

	"seehuhn.de/go/sfnt/glyph"

	"github.com/skef/afdko/otl"
)

// Zone assigns a pattern element to one of the match areas of a chaining
// contextual rule.  Zones must appear in the order backtrack, input,
// lookahead along a pattern; enforcing this is the front end's job.
type Zone uint8

const (
	ZoneNone Zone = iota
	ZoneBacktrack
	ZoneInput
	ZoneLookahead
)

// A PatternElem is one position of a glyph pattern: a single glyph or a
// glyph class, with its zone assignment.  Marked elements inside the input
// zone may carry direct lookup references.
type PatternElem struct {
	Glyphs []glyph.ID
	Zone   Zone
	Marked bool

	// Lookups lists lookups applied directly at this (marked) position,
	// instead of an inline replacement.
	Lookups []otl.Label
}

// A Pattern is an ordered glyph pattern.  Patterns are owned by the rule
// that references them: once a pattern has been passed to
// [Builder.RuleAdd], the builder takes ownership and the caller must not
// modify or reuse it.
type Pattern []PatternElem

// Add appends a pattern element for the given glyphs.
func (p *Pattern) Add(zone Zone, glyphs ...glyph.ID) {
	*p = append(*p, PatternElem{Glyphs: glyphs, Zone: zone})
}

// MarkLast marks the most recently added element.
func (p *Pattern) MarkLast() {
	(*p)[len(*p)-1].Marked = true
}

// AddLookup attaches a direct lookup reference to the most recently added
// element.
func (p *Pattern) AddLookup(label otl.Label) {
	elem := &(*p)[len(*p)-1]
	elem.Lookups = append(elem.Lookups, label)
}

// clone makes an independent copy of the first n elements of p.
// n < 0 copies the whole pattern.
func (p Pattern) clone(n int) Pattern {
	if n < 0 || n > len(p) {
		n = len(p)
	}
	q := make(Pattern, n)
	for i := 0; i < n; i++ {
		q[i] = p[i]
		q[i].Glyphs = slices.Clone(p[i].Glyphs)
		q[i].Lookups = slices.Clone(p[i].Lookups)
	}
	return q
}

// crossProduct enumerates all glyph sequences matched by the pattern,
// expanding every glyph class.  The last position varies fastest.
func (p Pattern) crossProduct() [][]glyph.ID {
	n := 1
	for _, elem := range p {
		n *= len(elem.Glyphs)
	}
	seqs := make([][]glyph.ID, 0, n)
	idx := make([]int, len(p))
	for {
		seq := make([]glyph.ID, len(p))
		for i, elem := range p {
			seq[i] = elem.Glyphs[idx[i]]
		}
		seqs = append(seqs, seq)

		i := len(p) - 1
		for i >= 0 {
			idx[i]++
			if idx[i] < len(p[i].Glyphs) {
				break
			}
			idx[i] = 0
			i--
		}
		if i < 0 {
			break
		}
	}
	return seqs
}

// hasClass reports whether any position of the pattern is a glyph class.
func (p Pattern) hasClass() bool {
	for _, elem := range p {
		if len(elem.Glyphs) > 1 {
			return true
		}
	}
	return false
}

// A substRule is one substitution rule destined for a lookup: a target
// pattern and an optional replacement.  length caches the target pattern
// length for the ligature sort.
type substRule struct {
	targ   Pattern
	repl   Pattern // nil for "ignore" rules
	length int
}
