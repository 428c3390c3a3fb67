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
	"fmt"
	"slices"

	"seehuhn.de/go/sfnt/glyph"
)

// A ligRule is one ligature: the component sequence (excluding the first
// glyph, which the coverage table carries) and the resulting glyph.
type ligRule struct {
	comps []glyph.ID
	lig   glyph.ID
}

// A ligSet groups the ligatures starting with the same first glyph, in
// preference order: longer component sequences first.
type ligSet struct {
	first glyph.ID
	ligs  []ligRule
}

// Ligature Substitution Format 1: ligature sets indexed by a coverage of
// first glyphs.
// https://docs.microsoft.com/en-us/typography/opentype/spec/gsub#41-ligature-substitution-format-1
type ligatureSubst struct {
	cov  uint32
	sets []ligSet
}

func ligatureSize(sets []ligSet) uint32 {
	size := uint32(6 + 2*len(sets))
	for _, set := range sets {
		size += uint32(2 + 2*len(set.ligs))
		for _, lig := range set.ligs {
			size += uint32(4 + 2*len(lig.comps))
		}
	}
	return size
}

// cmpLigature orders ligature rules for packing: by first glyph, then by
// decreasing length so that longer matches take precedence, then by
// component glyphs so that duplicates become adjacent.
func cmpLigature(a, c substRule) int {
	if d := int(a.targ[0].Glyphs[0]) - int(c.targ[0].Glyphs[0]); d != 0 {
		return d
	}
	if a.length != c.length {
		return c.length - a.length
	}
	for i := 1; i < a.length; i++ {
		if d := int(a.targ[i].Glyphs[0]) - int(c.targ[i].Glyphs[0]); d != 0 {
			return d
		}
	}
	return 0
}

// checkAndSortLigature sorts the rules and collapses duplicates.  A rule
// repeating an earlier target sequence with the same result is dropped with
// a note; a different result is an error.
func (b *Builder) checkAndSortLigature(si *subtableInfo) bool {
	slices.SortStableFunc(si.rules, cmpLigature)

	w := 0
	for j := range si.rules {
		if j > 0 && cmpLigature(si.rules[j-1], si.rules[j]) == 0 {
			prev := &si.rules[w-1]
			rule := &si.rules[j]
			if prev.repl[0].Glyphs[0] == rule.repl[0].Glyphs[0] {
				b.note("removing duplicate ligature substitution: %s",
					ligRuleText(rule))
				continue
			}
			b.fatal("duplicate target sequence for ligature substitution: %s",
				ligRuleText(rule))
			return false
		}
		si.rules[w] = si.rules[j]
		w++
	}
	si.rules = si.rules[:w]
	return true
}

func ligRuleText(rule *substRule) string {
	s := "glyphs"
	for _, elem := range rule.targ {
		s += fmt.Sprintf(" %d", elem.Glyphs[0])
	}
	return s
}

// fillLigature packs all ligature rules into a single format 1 subtable.
func (b *Builder) fillLigature(si *subtableInfo) {
	if len(si.rules) == 0 {
		return
	}
	if !b.checkAndSortLigature(si) {
		return
	}

	sub := b.newSubtable(si)
	o := b.subOtl(sub)

	var sets []ligSet
	o.CoverageBegin()
	for i := range si.rules {
		rule := &si.rules[i]
		first := rule.targ[0].Glyphs[0]
		if len(sets) == 0 || sets[len(sets)-1].first != first {
			sets = append(sets, ligSet{first: first})
			o.CoverageAddGlyph(first)
		}
		set := &sets[len(sets)-1]

		comps := make([]glyph.ID, rule.length-1)
		for k := 1; k < rule.length; k++ {
			comps[k-1] = rule.targ[k].Glyphs[0]
		}
		set.ligs = append(set.ligs, ligRule{comps: comps, lig: rule.repl[0].Glyphs[0]})

		b.maxContext = max(b.maxContext, rule.length)
	}
	cov := o.CoverageEnd() // adjusted during the write pass

	bd := &ligatureSubst{cov: cov, sets: sets}
	size := ligatureSize(sets)
	if sub.useExt {
		bd.cov += size
		b.offset.extension += size + o.CoverageSize()
	} else {
		b.offset.subtable += size
	}
	b.addSubtable(sub, bd)
}

func (s *ligatureSubst) subformat() uint16 { return 1 }

func (s *ligatureSubst) append(b *Builder, sub *subtable, buf []byte) ([]byte, error) {
	cov := s.cov
	if !sub.useExt {
		cov += b.offset.subtable - sub.offset
	}
	if err := checkOverflow(sub.idText, "coverage table", cov, "ligature substitution"); err != nil {
		return nil, err
	}

	buf = put16(buf, s.subformat())
	buf = put16(buf, uint16(cov))
	buf = put16(buf, uint16(len(s.sets)))

	setOff := uint32(6 + 2*len(s.sets))
	for _, set := range s.sets {
		buf = put16(buf, uint16(setOff))
		setOff += uint32(2 + 2*len(set.ligs))
		for _, lig := range set.ligs {
			setOff += uint32(4 + 2*len(lig.comps))
		}
	}

	for _, set := range s.sets {
		buf = put16(buf, uint16(len(set.ligs)))
		ligOff := uint32(2 + 2*len(set.ligs))
		for _, lig := range set.ligs {
			buf = put16(buf, uint16(ligOff))
			ligOff += uint32(4 + 2*len(lig.comps))
		}
		for _, lig := range set.ligs {
			buf = put16(buf, uint16(lig.lig))
			buf = put16(buf, uint16(len(lig.comps)+1))
			for _, gid := range lig.comps {
				buf = put16(buf, uint16(gid))
			}
		}
	}

	if sub.useExt {
		buf = sub.extOtl.AppendCoverage(buf)
	}
	return buf, nil
}
