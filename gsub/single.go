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

	"golang.org/x/exp/maps"
	"seehuhn.de/go/sfnt/glyph"
)

// addSingleRules merges one single-substitution rule into the accumulator's
// glyph mapping, enumerating target classes.  If the replacement class is
// shorter than the target class its last glyph is reused.
func (b *Builder) addSingleRules(si *subtableInfo, targ, repl Pattern) {
	if si.singles == nil {
		si.singles = make(map[glyph.ID]glyph.ID)
	}

	tGlyphs := targ[0].Glyphs
	rGlyphs := repl[0].Glyphs
	ri := 0
	for _, t := range tGlyphs {
		r := rGlyphs[ri]
		if old, ok := si.singles[t]; ok {
			if old == r {
				b.note("removing duplicate single substitution: glyph %d -> glyph %d", t, r)
			} else {
				b.fatal("duplicate target glyph for single substitution: glyph %d", t)
				return
			}
		} else {
			si.singles[t] = r
		}
		if ri+1 < len(rGlyphs) {
			ri++
		}
	}
}

// Single Substitution Format 1: a constant delta applied to every covered
// glyph.
// https://docs.microsoft.com/en-us/typography/opentype/spec/gsub#11-single-substitution-format-1
type singleSubst1 struct {
	cov   uint32
	delta int16
}

// Single Substitution Format 2: covered glyphs and substitutes listed
// explicitly, in coverage order.
// https://docs.microsoft.com/en-us/typography/opentype/spec/gsub#12-single-substitution-format-2
type singleSubst2 struct {
	cov  uint32
	gids []glyph.ID
}

const singleSubst1Size = 6

func singleSubst2Size(n int) uint32 {
	return uint32(6 + 2*n)
}

// fillSingle chooses between format 1 and 2: format 1 applies when the
// difference between replacement and target is the same for every pair.
func (b *Builder) fillSingle(si *subtableInfo) {
	if len(si.singles) == 0 {
		return
	}
	b.maxContext = max(b.maxContext, 1)

	targs := maps.Keys(si.singles)
	slices.Sort(targs)

	constDelta := true
	delta := int(si.singles[targs[0]]) - int(targs[0])
	for _, t := range targs[1:] {
		if int(si.singles[t])-int(t) != delta {
			constDelta = false
			break
		}
	}

	sub := b.newSubtable(si)
	o := b.subOtl(sub)
	o.CoverageBegin()
	for _, t := range targs {
		o.CoverageAddGlyph(t)
	}
	cov := o.CoverageEnd() // adjusted during the write pass

	if constDelta {
		bd := &singleSubst1{cov: cov, delta: int16(delta)}
		size := uint32(singleSubst1Size)
		if sub.useExt {
			bd.cov += size // final value
			b.offset.extension += size + o.CoverageSize()
		} else {
			b.offset.subtable += size
		}
		b.addSubtable(sub, bd)
		return
	}

	gids := make([]glyph.ID, len(targs))
	for i, t := range targs {
		gids[i] = si.singles[t]
	}
	bd := &singleSubst2{cov: cov, gids: gids}
	size := singleSubst2Size(len(gids))
	if sub.useExt {
		bd.cov += size
		b.offset.extension += size + o.CoverageSize()
	} else {
		b.offset.subtable += size
	}
	b.addSubtable(sub, bd)
}

func (s *singleSubst1) subformat() uint16 { return 1 }

func (s *singleSubst1) append(b *Builder, sub *subtable, buf []byte) ([]byte, error) {
	cov := s.cov
	if !sub.useExt {
		cov += b.offset.subtable - sub.offset
	}
	if err := checkOverflow(sub.idText, "coverage table", cov, "single substitution"); err != nil {
		return nil, err
	}

	buf = put16(buf, s.subformat())
	buf = put16(buf, uint16(cov))
	buf = put16(buf, uint16(s.delta))

	if sub.useExt {
		buf = sub.extOtl.AppendCoverage(buf)
	}
	return buf, nil
}

func (s *singleSubst2) subformat() uint16 { return 2 }

func (s *singleSubst2) append(b *Builder, sub *subtable, buf []byte) ([]byte, error) {
	cov := s.cov
	if !sub.useExt {
		cov += b.offset.subtable - sub.offset
	}
	if err := checkOverflow(sub.idText, "coverage table", cov, "single substitution"); err != nil {
		return nil, err
	}

	buf = put16(buf, s.subformat())
	buf = put16(buf, uint16(cov))
	buf = put16(buf, uint16(len(s.gids)))
	for _, gid := range s.gids {
		buf = put16(buf, uint16(gid))
	}

	if sub.useExt {
		buf = sub.extOtl.AppendCoverage(buf)
	}
	return buf, nil
}

func put16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func put32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
