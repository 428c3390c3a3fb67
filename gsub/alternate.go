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
)

// Alternate Substitution Format 1: one covered glyph maps to a set of
// alternate glyphs.  The binary layout is the same as multiple
// substitution, but the replacement is a set, not a sequence.
// https://docs.microsoft.com/en-us/typography/opentype/spec/gsub#31-alternate-substitution-format-1
type alternateSubst struct {
	cov  uint32
	sets [][]glyph.ID
}

func alternateSize(nRules, nGids int) uint32 {
	return uint32(6 + 4*nRules + 2*nGids)
}

// fillAlternate packs the accumulated alternate-set rules with the same
// greedy subtable breaking as fillMultiple.
func (b *Builder) fillAlternate(si *subtableInfo) {
	slices.SortStableFunc(si.rules, func(a, c substRule) int {
		return int(a.targ[0].Glyphs[0]) - int(c.targ[0].Glyphs[0])
	})

	nGids := 0
	first := 0
	for j := 0; j < len(si.rules); j++ {
		rule := &si.rules[j]
		if j != 0 && rule.targ[0].Glyphs[0] == si.rules[j-1].targ[0].Glyphs[0] {
			b.fatal("duplicate target glyph for alternate substitution: glyph %d",
				rule.targ[0].Glyphs[0])
			return
		}

		nGidsNew := nGids + len(rule.repl[0].Glyphs)
		sizeNew := alternateSize(j-first+1, nGidsNew)

		switch {
		case sizeNew > 0xFFFF:
			if j == first {
				b.fatal("alternate substitution rule overflows a subtable (0x%x)", sizeNew)
				return
			}
			b.addAlternateSubtable(si, si.rules[first:j])
			nGids = 0
			first = j
			j--
		case j == len(si.rules)-1:
			b.addAlternateSubtable(si, si.rules[first:])
		default:
			nGids = nGidsNew
		}
	}
}

func (b *Builder) addAlternateSubtable(si *subtableInfo, rules []substRule) {
	sub := b.newSubtable(si)
	o := b.subOtl(sub)

	nGids := 0
	sets := make([][]glyph.ID, len(rules))
	o.CoverageBegin()
	for i := range rules {
		rule := &rules[i]
		o.CoverageAddGlyph(rule.targ[0].Glyphs[0])
		sets[i] = slices.Clone(rule.repl[0].Glyphs)
		nGids += len(sets[i])
	}
	cov := o.CoverageEnd() // adjusted during the write pass

	bd := &alternateSubst{cov: cov, sets: sets}
	size := alternateSize(len(rules), nGids)
	if sub.useExt {
		bd.cov += size
		b.offset.extension += size + o.CoverageSize()
	} else {
		b.offset.subtable += size
	}
	b.maxContext = max(b.maxContext, 1)
	b.addSubtable(sub, bd)
}

func (s *alternateSubst) subformat() uint16 { return 1 }

func (s *alternateSubst) append(b *Builder, sub *subtable, buf []byte) ([]byte, error) {
	cov := s.cov
	if !sub.useExt {
		cov += b.offset.subtable - sub.offset
	}
	if err := checkOverflow(sub.idText, "coverage table", cov, "alternate substitution"); err != nil {
		return nil, err
	}

	buf = put16(buf, s.subformat())
	buf = put16(buf, uint16(cov))
	buf = put16(buf, uint16(len(s.sets)))

	off := uint32(6 + 2*len(s.sets))
	for _, set := range s.sets {
		buf = put16(buf, uint16(off))
		off += uint32(2 + 2*len(set))
	}
	for _, set := range s.sets {
		buf = put16(buf, uint16(len(set)))
		for _, gid := range set {
			buf = put16(buf, uint16(gid))
		}
	}

	if sub.useExt {
		buf = sub.extOtl.AppendCoverage(buf)
	}
	return buf, nil
}
