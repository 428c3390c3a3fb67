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

import "github.com/skef/afdko/otl"

// CVParams holds the parameters of a cvXX Character Variant feature.
// CharValues lists the Unicode code points the feature applies to.
type CVParams struct {
	UILabelNameID           uint16
	TooltipNameID           uint16
	SampleTextNameID        uint16
	NumNamedParams          uint16
	FirstParamUILabelNameID uint16
	CharValues              []rune
}

func (p *CVParams) size() uint32 {
	return uint32(14 + 3*len(p.CharValues))
}

// AddFeatureNameParam sets the featureNames UI name ID for the open
// featureNames pseudo-lookup.
func (b *Builder) AddFeatureNameParam(nameID uint16) {
	if b.state != stateAccumulating || b.nw.lkpType != FeatureNames {
		panic("gsub: AddFeatureNameParam outside a featureNames block")
	}
	b.nw.paramNameID = nameID
}

// AddCVParam sets the parameters for the open cvParameters pseudo-lookup.
// The builder takes ownership of params.CharValues.
func (b *Builder) AddCVParam(params CVParams) {
	if b.state != stateAccumulating || b.nw.lkpType != CVParameters {
		panic("gsub: AddCVParam outside a cvParameters block")
	}
	b.nw.cvParams = params
}

// featNameParam is the featureParams block of a Stylistic Set feature.
// https://docs.microsoft.com/en-us/typography/opentype/spec/features_pt#ssxx
type featNameParam struct {
	nameID uint16
}

const featureNameParamSize = 4

// cvParam is the featureParams block of a Character Variant feature.
// https://docs.microsoft.com/en-us/typography/opentype/spec/features_ae#cv01-cv99
type cvParam struct {
	params CVParams
}

// featureNumber decodes the two-digit suffix of an ssXX or cvXX feature
// tag.  ok is false if the prefix does not match or the digits are
// malformed.
func featureNumber(feature otl.Tag, prefix string) (uint16, bool) {
	if len(feature) != 4 || string(feature[:2]) != prefix {
		return 0, false
	}
	hi, lo := feature[2], feature[3]
	if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
		return 0, false
	}
	return uint16(hi-'0')*10 + uint16(lo-'0'), true
}

func (b *Builder) fillFeatureNames(si *subtableInfo) {
	if _, ok := featureNumber(si.feature, "ss"); !ok {
		b.fatal("a 'featureNames' block is only allowed in Stylistic Set (ssXX) features")
		return
	}
	if si.paramNameID != 0 && b.Names != nil &&
		b.Names.MissingWindowsDefaultName(si.paramNameID) {
		b.fatal("missing Windows default name for 'featureNames' nameid %d",
			si.paramNameID)
		return
	}

	sub := b.newSubtable(si)
	b.offset.featParams += featureNameParamSize
	b.addSubtable(sub, &featNameParam{nameID: si.paramNameID})
}

func (b *Builder) fillCVParameters(si *subtableInfo) {
	if _, ok := featureNumber(si.feature, "cv"); !ok {
		b.fatal("a 'cvParameters' block is only allowed in Character Variant (cvXX) features")
		return
	}
	if b.Names != nil {
		for _, nameID := range []uint16{
			si.cvParams.UILabelNameID,
			si.cvParams.TooltipNameID,
			si.cvParams.SampleTextNameID,
			si.cvParams.FirstParamUILabelNameID,
		} {
			if nameID != 0 && b.Names.MissingWindowsDefaultName(nameID) {
				b.fatal("missing Windows default name for 'cvParameters' nameid %d",
					nameID)
				return
			}
		}
	}

	sub := b.newSubtable(si)
	b.offset.featParams += si.cvParams.size()
	b.addSubtable(sub, &cvParam{params: si.cvParams})
}

func (s *featNameParam) subformat() uint16 { return 0 }

func (s *featNameParam) append(b *Builder, sub *subtable, buf []byte) ([]byte, error) {
	buf = put16(buf, s.subformat())
	buf = put16(buf, s.nameID)
	return buf, nil
}

func (s *cvParam) subformat() uint16 { return 0 }

func (s *cvParam) append(b *Builder, sub *subtable, buf []byte) ([]byte, error) {
	p := &s.params
	buf = put16(buf, s.subformat())
	buf = put16(buf, p.UILabelNameID)
	buf = put16(buf, p.TooltipNameID)
	buf = put16(buf, p.SampleTextNameID)
	buf = put16(buf, p.NumNamedParams)
	buf = put16(buf, p.FirstParamUILabelNameID)
	buf = put16(buf, uint16(len(p.CharValues)))
	for _, cv := range p.CharValues {
		// 24-bit Unicode value
		buf = append(buf, byte(cv>>16))
		buf = put16(buf, uint16(cv))
	}
	return buf, nil
}
