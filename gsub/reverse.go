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
	"sort"

	"seehuhn.de/go/sfnt/glyph"
)

// Reverse Chaining Contextual Single Substitution Format 1.  The
// substitute glyphs run parallel to the input coverage, so both are sorted
// together by input glyph ID.
// https://docs.microsoft.com/en-us/typography/opentype/spec/gsub#81-reverse-chaining-contextual-single-substitution-format-1
type reverseSubst struct {
	inputCov    uint32
	back, look  []uint32 // coverage offsets, pattern order
	substitutes []glyph.ID
}

func rchain1Size(nBack, nLook, nSubst int) uint32 {
	return uint32(10 + 2*(nBack+nLook+nSubst))
}

// fillReverse emits one format 1 subtable per accumulated rule.
func (b *Builder) fillReverse(si *subtableInfo) {
	for i := range si.rules {
		b.addReverseSubtable(si, &si.rules[i])
		if b.err != nil {
			return
		}
	}
}

func (b *Builder) addReverseSubtable(si *subtableInfo, rule *substRule) {
	var backElems, lookElems []PatternElem
	var input *PatternElem
	for i := range rule.targ {
		elem := &rule.targ[i]
		switch elem.Zone {
		case ZoneBacktrack:
			backElems = append(backElems, *elem)
		case ZoneInput:
			// The front end guarantees a single input position.
			if input == nil {
				input = elem
			}
		case ZoneLookahead:
			lookElems = append(lookElems, *elem)
		}
	}

	sub := b.newSubtable(si)
	o := b.subOtl(sub)

	// Keep the substitutes aligned with the input coverage: sort both by
	// input glyph ID, the order the coverage table will use.
	var inGlyphs, subGlyphs []glyph.ID
	if input != nil {
		inGlyphs = input.Glyphs
		if rule.repl != nil {
			subGlyphs = rule.repl[0].Glyphs
			sort.Sort(&parallelGlyphs{in: inGlyphs, out: subGlyphs})
		}
	}

	o.CoverageBegin()
	for _, gid := range inGlyphs {
		o.CoverageAddGlyph(gid)
	}
	inputCov := o.CoverageEnd() // adjusted during the write pass

	bd := &reverseSubst{
		inputCov:    inputCov,
		back:        setCoverages(o, backElems),
		look:        setCoverages(o, lookElems),
		substitutes: subGlyphs,
	}

	b.maxContext = max(b.maxContext, 1+len(lookElems))

	size := rchain1Size(len(bd.back), len(bd.look), len(bd.substitutes))
	if sub.useExt {
		bd.inputCov += size
		for i := range bd.back {
			bd.back[i] += size
		}
		for i := range bd.look {
			bd.look[i] += size
		}
		b.offset.extension += size + o.CoverageSize()
	} else {
		b.offset.subtable += size
	}
	b.addSubtable(sub, bd)
}

// parallelGlyphs sorts an input glyph list and its substitute list with a
// single key, the input glyph ID.
type parallelGlyphs struct {
	in, out []glyph.ID
}

func (p *parallelGlyphs) Len() int           { return len(p.in) }
func (p *parallelGlyphs) Less(i, j int) bool { return p.in[i] < p.in[j] }
func (p *parallelGlyphs) Swap(i, j int) {
	p.in[i], p.in[j] = p.in[j], p.in[i]
	p.out[i], p.out[j] = p.out[j], p.out[i]
}

func (s *reverseSubst) subformat() uint16 { return 1 }

func (s *reverseSubst) append(b *Builder, sub *subtable, buf []byte) ([]byte, error) {
	var adjustment uint32
	if !sub.useExt {
		adjustment = b.offset.subtable - sub.offset
	}

	emit := func(buf []byte, cov uint32, which string) ([]byte, error) {
		cov += adjustment
		if err := checkOverflow(sub.idText, which, cov, "reverse chain contextual substitution"); err != nil {
			return nil, err
		}
		return put16(buf, uint16(cov)), nil
	}

	buf = put16(buf, s.subformat())

	var err error
	if buf, err = emit(buf, s.inputCov, "coverage table"); err != nil {
		return nil, err
	}

	buf = put16(buf, uint16(len(s.back)))
	if b.LegacyChainOrder {
		for _, cov := range s.back {
			if buf, err = emit(buf, cov, "backtrack coverage table"); err != nil {
				return nil, err
			}
		}
	} else {
		for i := len(s.back) - 1; i >= 0; i-- {
			if buf, err = emit(buf, s.back[i], "backtrack coverage table"); err != nil {
				return nil, err
			}
		}
	}

	buf = put16(buf, uint16(len(s.look)))
	for _, cov := range s.look {
		if buf, err = emit(buf, cov, "lookahead coverage table"); err != nil {
			return nil, err
		}
	}

	buf = put16(buf, uint16(len(s.substitutes)))
	for _, gid := range s.substitutes {
		buf = put16(buf, uint16(gid))
	}

	if sub.useExt {
		buf = sub.extOtl.AppendCoverage(buf)
	}
	return buf, nil
}
