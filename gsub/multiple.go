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

// Multiple Substitution Format 1: one covered glyph maps to a sequence of
// glyphs.  Sequence tables follow the header.
// https://docs.microsoft.com/en-us/typography/opentype/spec/gsub#21-multiple-substitution-format-1
type multipleSubst struct {
	cov  uint32
	seqs [][]glyph.ID
}

// multipleSize is the structural size of a format 1 subtable holding
// nRules sequences with nGids replacement glyphs in total.
func multipleSize(nRules, nGids int) uint32 {
	return uint32(6 + 4*nRules + 2*nGids)
}

// fillMultiple packs the accumulated one-to-many rules, greedily breaking
// into a new subtable whenever adding the next rule would push the
// structural size past the 16-bit offset ceiling.
func (b *Builder) fillMultiple(si *subtableInfo) {
	slices.SortStableFunc(si.rules, func(a, c substRule) int {
		return int(a.targ[0].Glyphs[0]) - int(c.targ[0].Glyphs[0])
	})

	nGids := 0
	first := 0
	for j := 0; j < len(si.rules); j++ {
		rule := &si.rules[j]
		if j != 0 && rule.targ[0].Glyphs[0] == si.rules[j-1].targ[0].Glyphs[0] {
			b.fatal("duplicate target glyph for multiple substitution: glyph %d",
				rule.targ[0].Glyphs[0])
			return
		}

		nGidsNew := nGids + len(rule.repl)
		sizeNew := multipleSize(j-first+1, nGidsNew)

		switch {
		case sizeNew > 0xFFFF:
			if j == first {
				// A single rule which does not fit cannot be split further.
				b.fatal("multiple substitution rule overflows a subtable (0x%x)", sizeNew)
				return
			}
			// Just overflowed; emit everything before this rule and start
			// a new subtable with it.
			b.addMultipleSubtable(si, si.rules[first:j])
			nGids = 0
			first = j
			j--
		case j == len(si.rules)-1:
			b.addMultipleSubtable(si, si.rules[first:])
		default:
			nGids = nGidsNew
		}
	}
}

func (b *Builder) addMultipleSubtable(si *subtableInfo, rules []substRule) {
	sub := b.newSubtable(si)
	o := b.subOtl(sub)

	nGids := 0
	seqs := make([][]glyph.ID, len(rules))
	o.CoverageBegin()
	for i := range rules {
		rule := &rules[i]
		o.CoverageAddGlyph(rule.targ[0].Glyphs[0])
		seq := make([]glyph.ID, len(rule.repl))
		for k, elem := range rule.repl {
			seq[k] = elem.Glyphs[0]
		}
		seqs[i] = seq
		nGids += len(seq)
	}
	cov := o.CoverageEnd() // adjusted during the write pass

	bd := &multipleSubst{cov: cov, seqs: seqs}
	size := multipleSize(len(rules), nGids)
	if sub.useExt {
		bd.cov += size
		b.offset.extension += size + o.CoverageSize()
	} else {
		b.offset.subtable += size
	}
	b.maxContext = max(b.maxContext, 1)
	b.addSubtable(sub, bd)
}

func (s *multipleSubst) subformat() uint16 { return 1 }

func (s *multipleSubst) append(b *Builder, sub *subtable, buf []byte) ([]byte, error) {
	cov := s.cov
	if !sub.useExt {
		cov += b.offset.subtable - sub.offset
	}
	if err := checkOverflow(sub.idText, "coverage table", cov, "multiple substitution"); err != nil {
		return nil, err
	}

	buf = put16(buf, s.subformat())
	buf = put16(buf, uint16(cov))
	buf = put16(buf, uint16(len(s.seqs)))

	off := uint32(6 + 2*len(s.seqs))
	for _, seq := range s.seqs {
		buf = put16(buf, uint16(off))
		off += uint32(2 + 2*len(seq))
	}
	for _, seq := range s.seqs {
		buf = put16(buf, uint16(len(seq)))
		for _, gid := range seq {
			buf = put16(buf, uint16(gid))
		}
	}

	if sub.useExt {
		buf = sub.extOtl.AppendCoverage(buf)
	}
	return buf, nil
}
