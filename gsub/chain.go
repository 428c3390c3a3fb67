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

	"seehuhn.de/go/sfnt/glyph"

	"github.com/skef/afdko/otl"
)

// A seqLookup applies one lookup at one position of the input sequence.
// Anonymous lookups are recorded by label; index is resolved after the
// layout layer has assigned lookup indices.
type seqLookup struct {
	seqIndex uint16
	label    otl.Label
	index    uint16
}

// Chained Contexts Substitution Format 3: one rule per subtable, each match
// position backed by its own coverage table.
// https://docs.microsoft.com/en-us/typography/opentype/spec/chapter2#chseqctxt3
type chainSubst struct {
	back, input, look []uint32 // coverage offsets, pattern order
	lookups           []seqLookup
}

func chain3Size(nBack, nInput, nLook, nSubst int) uint32 {
	return uint32(10 + 2*(nBack+nInput+nLook) + 4*nSubst)
}

// setCoverages builds one coverage table per pattern element and collects
// the tentative offsets.
func setCoverages(o *otl.Table, elems []PatternElem) []uint32 {
	if len(elems) == 0 {
		return nil
	}
	covs := make([]uint32, len(elems))
	for i, elem := range elems {
		o.CoverageBegin()
		for _, gid := range elem.Glyphs {
			o.CoverageAddGlyph(gid)
		}
		covs[i] = o.CoverageEnd()
	}
	return covs
}

// fillChain emits one format 3 subtable per accumulated rule.
func (b *Builder) fillChain(si *subtableInfo) {
	for i := range si.rules {
		b.addChainSubtable(si, &si.rules[i])
		if b.err != nil {
			return
		}
	}
}

func (b *Builder) addChainSubtable(si *subtableInfo, rule *substRule) {
	var backElems, inputElems, lookElems []PatternElem
	var marked Pattern
	iSeq := 0
	for _, elem := range rule.targ {
		switch elem.Zone {
		case ZoneBacktrack:
			backElems = append(backElems, elem)
		case ZoneInput:
			if elem.Marked {
				if marked == nil {
					iSeq = len(inputElems)
				}
				marked = append(marked, elem)
			}
			inputElems = append(inputElems, elem)
		case ZoneLookahead:
			lookElems = append(lookElems, elem)
		}
	}

	sub := b.newSubtable(si)
	o := b.subOtl(sub)

	bd := &chainSubst{
		back:  setCoverages(o, backElems),
		input: setCoverages(o, inputElems),
		look:  setCoverages(o, lookElems),
	}

	if rule.repl != nil {
		// A single inline replacement; it becomes an anonymous lookup
		// applied at the first marked position.
		label := b.addAnonRule(si, marked, rule.repl)
		bd.lookups = append(bd.lookups, seqLookup{
			seqIndex: uint16(iSeq),
			label:    label,
		})
	} else {
		for i, elem := range marked {
			for _, label := range elem.Lookups {
				bd.lookups = append(bd.lookups, seqLookup{
					seqIndex: uint16(iSeq + i),
					label:    label,
				})
			}
		}
	}

	b.maxContext = max(b.maxContext, len(inputElems)+len(lookElems))

	size := chain3Size(len(bd.back), len(bd.input), len(bd.look), len(bd.lookups))
	if sub.useExt {
		for i := range bd.back {
			bd.back[i] += size
		}
		for i := range bd.input {
			bd.input[i] += size
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

func (s *chainSubst) subformat() uint16 { return 3 }

func (s *chainSubst) append(b *Builder, sub *subtable, buf []byte) ([]byte, error) {
	var adjustment uint32
	if !sub.useExt {
		adjustment = b.offset.subtable - sub.offset
	}

	emit := func(buf []byte, cov uint32, which string) ([]byte, error) {
		cov += adjustment
		if err := checkOverflow(sub.idText, which, cov, "chain contextual substitution"); err != nil {
			return nil, err
		}
		return put16(buf, uint16(cov)), nil
	}

	buf = put16(buf, s.subformat())

	// Backtrack coverages run from the position closest to the input
	// outward.  The pattern order is the reverse of that, except under the
	// pre-1.5 interpretation.
	var err error
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

	buf = put16(buf, uint16(len(s.input)))
	for _, cov := range s.input {
		if buf, err = emit(buf, cov, "input coverage table"); err != nil {
			return nil, err
		}
	}

	buf = put16(buf, uint16(len(s.look)))
	for _, cov := range s.look {
		if buf, err = emit(buf, cov, "lookahead coverage table"); err != nil {
			return nil, err
		}
	}

	buf = put16(buf, uint16(len(s.lookups)))
	for _, sl := range s.lookups {
		buf = put16(buf, sl.seqIndex)
		buf = put16(buf, sl.index)
	}

	if sub.useExt {
		buf = sub.extOtl.AppendCoverage(buf)
	}
	return buf, nil
}

// addAnonRule converts the inline replacement of a contextual rule into a
// rule of an anonymous lookup and returns the lookup's label.  Compatible
// consecutive rules share one anonymous lookup.
func (b *Builder) addAnonRule(cur *subtableInfo, marked Pattern, repl Pattern) otl.Label {
	var lkpType LookupType
	if len(marked) == 1 {
		if len(repl) > 1 {
			lkpType = Multiple
		} else {
			lkpType = Single
		}
	} else {
		lkpType = Ligature
	}

	targ := marked.clone(-1)
	for i := range targ {
		targ[i].Zone = ZoneNone
		targ[i].Marked = false
		targ[i].Lookups = nil
	}
	repl = repl.clone(-1)

	if len(b.anon) > 0 {
		si := b.anon[len(b.anon)-1]
		if si.lkpType == lkpType && si.lkpFlag == cur.lkpFlag &&
			si.markSetIndex == cur.markSetIndex &&
			si.parentFeature == cur.feature {
			switch lkpType {
			case Single:
				if b.addSingleToAnon(si, targ, repl) {
					return si.label
				}
			case Ligature:
				if b.addLigatureToAnon(si, targ, repl) {
					return si.label
				}
			}
		}
	}

	asi := &subtableInfo{
		script:        cur.script,
		language:      cur.language,
		parentFeature: cur.feature,
		lkpType:       lkpType,
		lkpFlag:       cur.lkpFlag,
		markSetIndex:  cur.markSetIndex,
		label:         b.NextAnonLabel(),
		useExtension:  cur.useExtension,
	}
	b.addSubstRule(asi, targ, repl)
	b.anon = append(b.anon, asi)
	return asi.label
}

// addSingleToAnon merges a single substitution into an existing anonymous
// lookup.  The merge is all or nothing: if any target glyph already maps to
// a different replacement, the lookup is left untouched.
func (b *Builder) addSingleToAnon(si *subtableInfo, targ, repl Pattern) bool {
	tGlyphs := targ[0].Glyphs
	rGlyphs := repl[0].Glyphs

	needed := make(map[glyph.ID]glyph.ID)
	ri := 0
	for _, t := range tGlyphs {
		r := rGlyphs[ri]
		if old, ok := si.singles[t]; ok {
			if old != r {
				return false
			}
		} else {
			needed[t] = r
		}
		if ri+1 < len(rGlyphs) {
			ri++
		}
	}

	if si.singles == nil {
		si.singles = make(map[glyph.ID]glyph.ID)
	}
	for t, r := range needed {
		si.singles[t] = r
	}
	return true
}

// addLigatureToAnon merges a ligature substitution into an existing
// anonymous lookup.  A target sequence which duplicates an existing rule
// with the same result is dropped; a conflicting result, or a sequence
// which is a prefix of an existing one (or the reverse), prevents the
// merge.
func (b *Builder) addLigatureToAnon(si *subtableInfo, targ, repl Pattern) bool {
	lig := repl[0].Glyphs[0]

	seqs := targ.crossProduct()
	found := make([]bool, len(seqs))
	for i, seq := range seqs {
		for j := range si.rules {
			rule := &si.rules[j]
			if seq[0] != rule.targ[0].Glyphs[0] {
				continue
			}
			k := 1
			for k < len(seq) && k < rule.length &&
				seq[k] == rule.targ[k].Glyphs[0] {
				k++
			}
			switch {
			case k == len(seq) && k == rule.length:
				if lig == rule.repl[0].Glyphs[0] {
					found[i] = true
					continue
				}
				return false
			case k == len(seq) || k == rule.length:
				// One sequence is a prefix of the other.
				return false
			}
		}
	}

	for i, seq := range seqs {
		if found[i] {
			continue
		}
		t := make(Pattern, len(seq))
		for k, gid := range seq {
			t[k] = PatternElem{Glyphs: []glyph.ID{gid}}
		}
		r := Pattern{PatternElem{Glyphs: []glyph.ID{lig}}}
		si.rules = append(si.rules, substRule{targ: t, repl: r, length: len(seq)})
	}
	return true
}

// createAnonLookups packs the pending anonymous lookups, in creation order.
// Their tags stay unset so that they never register with the feature list.
func (b *Builder) createAnonLookups() {
	for _, si := range b.anon {
		si.script = otl.TagUndef
		si.language = otl.TagUndef
		si.feature = otl.TagUndef
		b.idText = fmt.Sprintf("feature '%s'", si.parentFeature)
		b.lookupEnd(si)
	}
}

// setAnonLookupIndices resolves the lookup labels recorded in contextual
// subtables to the indices assigned by the layout layer.
func (b *Builder) setAnonLookupIndices() error {
	for _, sub := range b.subtables {
		cs, ok := sub.body.(*chainSubst)
		if !ok {
			continue
		}
		for i := range cs.lookups {
			idx, err := b.otl.LookupIndex(cs.lookups[i].label)
			if err != nil {
				return err
			}
			cs.lookups[i].index = idx
		}
	}
	return nil
}
