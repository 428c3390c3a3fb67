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

// Package gsub compiles substitution rules into the binary "GSUB" table.
//
// The front end feeds rules through FeatureBegin/LookupBegin/RuleAdd/
// LookupEnd/FeatureEnd; each LookupEnd selects binary subtable formats for
// the accumulated rules and packs them, splitting subtables where the
// 16-bit offset budget requires it.  Encode then runs the two-phase
// size/write pipeline and returns the finished table.
package gsub

import (
	"fmt"

	"seehuhn.de/go/sfnt/glyph"

	"github.com/skef/afdko/otl"
)

// LookupType identifies a GSUB lookup type.
type LookupType uint16

const (
	Single    LookupType = 1 // one glyph to one glyph
	Multiple  LookupType = 2 // one glyph to a sequence
	Alternate LookupType = 3 // one glyph to a set of alternates
	Ligature  LookupType = 4 // a sequence to one glyph
	Context   LookupType = 5
	Chain     LookupType = 6 // chaining contextual
	Extension LookupType = 7
	Reverse   LookupType = 8 // reverse chaining, single substitution

	// Pseudo-types for feature parameter blocks.  These never reach the
	// lookup list; their subtables live in the feature parameter area.
	FeatureNames LookupType = 9
	CVParameters LookupType = 10
)

// A NameChecker validates name IDs referenced by feature parameter blocks
// against the font's name table.
type NameChecker interface {
	// MissingWindowsDefaultName reports whether the name table lacks the
	// required Windows platform default entry for the given name ID.
	MissingWindowsDefaultName(nameID uint16) bool
}

// lookupState tracks the per-lookup state machine:
// open -> accumulating -> closing -> flushed.
type lookupState uint8

const (
	stateIdle lookupState = iota
	stateAccumulating
	stateClosing
)

// A subtableInfo accumulates the rules destined for one lookup, between
// LookupBegin and LookupEnd.
type subtableInfo struct {
	script, language, feature otl.Tag

	// parentFeature is the feature of the contextual rule that spawned an
	// anonymous lookup; it only controls anonymous lookup merging and
	// error reporting.
	parentFeature otl.Tag

	lkpType      LookupType
	lkpFlag      otl.LookupFlag
	markSetIndex uint16
	label        otl.Label
	useExtension bool

	paramNameID uint16
	cvParams    CVParams

	singles map[glyph.ID]glyph.ID // Single only
	rules   []substRule
}

func (si *subtableInfo) reset(lkpType LookupType, lkpFlag otl.LookupFlag,
	label otl.Label, useExtension bool, markSetIndex uint16) {
	si.lkpType = lkpType
	si.lkpFlag = lkpFlag
	si.label = label
	si.useExtension = useExtension
	si.markSetIndex = markSetIndex
	si.paramNameID = 0
	si.cvParams = CVParams{}
	si.singles = nil
	si.rules = si.rules[:0]
}

// A subtable is one packed binary subtable, with the bookkeeping needed to
// relocate its offsets during the write pass.
type subtable struct {
	script, language, feature otl.Tag
	idText                    string

	lkpType      LookupType
	lkpFlag      otl.LookupFlag
	markSetIndex uint16
	label        otl.Label

	// offset is the tentative offset, relative to the subtable area (or
	// the feature parameter area for feature parameter blocks).
	offset uint32

	useExt bool
	extRec extensionRecord
	extOtl *otl.Table // coverage tables owned by an extension payload

	body body
}

// body is the closed set of subtable payloads.  append emits the payload,
// relocating its internal offsets against the final area sizes.
type body interface {
	subformat() uint16
	append(b *Builder, sub *subtable, buf []byte) ([]byte, error)
}

// offsetCounters tracks the running byte totals of the three subtable
// areas during the size pass.  All counters are frozen once Encode starts
// the write pass.
type offsetCounters struct {
	subtable         uint32
	extension        uint32
	extensionSection uint32 // set after otl.Fill
	featParams       uint32
}

// A Builder compiles one GSUB table.  The zero value is not ready for use;
// call NewBuilder.
type Builder struct {
	// Names, if non-nil, validates the name IDs referenced by
	// featureNames and cvParameters blocks.
	Names NameChecker

	// LegacyChainOrder emits backtrack coverage offsets in declaration
	// order, as required by OpenType 1.4 and earlier (and InDesign 2.0).
	// The default is the reversed order of OpenType 1.5 and later.
	LegacyChainOrder bool

	otl *otl.Table

	nw        subtableInfo
	state     lookupState
	subtables []*subtable
	anon      []*subtableInfo
	offset    offsetCounters

	anonLabelNext uint16
	maxContext    int
	idText        string

	notes []Note
	err   error
	out   []byte
	done  bool
}

// NewBuilder returns an empty GSUB table builder.
func NewBuilder() *Builder {
	b := &Builder{}
	b.Reset()
	return b
}

// Reset discards all accumulated state, making the builder ready for an
// independent compilation.
func (b *Builder) Reset() {
	b.otl = otl.NewTable()
	b.nw = subtableInfo{}
	b.state = stateIdle
	b.subtables = nil
	b.anon = nil
	b.offset = offsetCounters{}
	b.anonLabelNext = 0
	b.maxContext = 0
	b.idText = ""
	b.notes = nil
	b.err = nil
	b.out = nil
	b.done = false
}

// FeatureBegin starts a feature block.  It may be called repeatedly for
// the same feature tag.
func (b *Builder) FeatureBegin(script, language, feature otl.Tag) {
	b.nw.script = script
	b.nw.language = language
	b.nw.feature = feature
	b.idText = fmt.Sprintf("feature '%s'", feature)
}

// FeatureEnd ends a feature block.  It performs no action but brackets
// feature calls.
func (b *Builder) FeatureEnd() {}

// LookupBegin starts a new lookup of the given type within the current
// feature block.  The extension request is fixed here and applies to every
// subtable the lookup produces.
func (b *Builder) LookupBegin(lkpType LookupType, lkpFlag otl.LookupFlag,
	label otl.Label, useExtension bool, markSetIndex uint16) {
	if b.state != stateIdle {
		panic("gsub: LookupBegin inside an open lookup")
	}
	b.state = stateAccumulating
	b.nw.reset(lkpType, lkpFlag, label, useExtension, markSetIndex)
}

// RuleAdd adds one substitution rule to the open lookup.  The builder
// takes ownership of both patterns.  repl is nil for "ignore" rules.
func (b *Builder) RuleAdd(targ, repl Pattern) {
	if b.state != stateAccumulating {
		panic("gsub: RuleAdd outside a lookup")
	}
	if b.err != nil {
		return
	}
	b.addSubstRule(&b.nw, targ, repl)
}

// LookupEnd closes the open lookup, selects subtable formats for its rules
// and packs them.
func (b *Builder) LookupEnd() {
	if b.state != stateAccumulating {
		panic("gsub: LookupEnd without LookupBegin")
	}
	b.state = stateIdle
	b.lookupEnd(&b.nw)
}

func (b *Builder) lookupEnd(si *subtableInfo) {
	// A reference label re-registers an existing lookup with the current
	// feature; there are no rules to pack.
	if si.label.IsReference() {
		b.addSubtable(b.newSubtable(si), nil)
		return
	}

	if b.err != nil {
		si.rules = nil
		si.singles = nil
		return
	}

	if b.state == stateClosing {
		panic("gsub: reentrant subtable packing")
	}
	b.state = stateClosing

	switch si.lkpType {
	case Single:
		b.fillSingle(si)
	case Multiple:
		b.fillMultiple(si)
	case Alternate:
		b.fillAlternate(si)
	case Ligature:
		b.fillLigature(si)
	case Chain:
		b.fillChain(si)
	case Reverse:
		b.fillReverse(si)
	case FeatureNames:
		b.fillFeatureNames(si)
	case CVParameters:
		b.fillCVParameters(si)
	default:
		// Unreachable for well-formed front ends; catches new lookup
		// types which have not been hooked up here.
		panic(fmt.Sprintf("gsub: unknown lookup type %d in %s", si.lkpType, b.idText))
	}
	b.state = stateIdle

	if err := checkOverflow(b.idText, "lookup subtable", b.offset.subtable, "substitution"); err != nil && b.err == nil {
		b.err = err
	}

	// The rules have been consumed (or abandoned after an error); drop
	// them so that a later empty lookup cannot reuse them.
	si.rules = nil
	si.singles = nil
}

// NextAnonLabel allocates a fresh anonymous lookup label.
func (b *Builder) NextAnonLabel() otl.Label {
	l := otl.Label{Kind: otl.LabelAnonymous, ID: b.anonLabelNext}
	b.anonLabelNext++
	return l
}

// MaxContext returns the longest input+lookahead context used by any rule,
// for the OS/2 table's usMaxContext field.
func (b *Builder) MaxContext() int {
	return b.maxContext
}

// Notes returns the informational notes recorded during compilation.
func (b *Builder) Notes() []Note {
	return b.notes
}

// newSubtable records the common subtable bookkeeping, assigns the
// tentative offset, and reserves an extension indirection record in the
// ordinary area when the lookup requested extension use.
func (b *Builder) newSubtable(si *subtableInfo) *subtable {
	hasParams := si.lkpType == FeatureNames || si.lkpType == CVParameters

	sub := &subtable{
		script:       si.script,
		language:     si.language,
		feature:      si.feature,
		idText:       b.idText,
		lkpType:      si.lkpType,
		lkpFlag:      si.lkpFlag,
		markSetIndex: si.markSetIndex,
		label:        si.label,
	}
	if hasParams {
		sub.offset = b.offset.featParams
	} else {
		sub.offset = b.offset.subtable
	}

	if si.useExtension && !si.label.IsReference() && !hasParams {
		sub.useExt = true
		sub.extOtl = otl.NewTable()
		sub.extRec = extensionRecord{
			wrappedType: uint16(si.lkpType),
			offset:      b.offset.extension, // adjusted during the write pass
		}
		b.offset.subtable += extensionRecordSize
	}
	return sub
}

// subOtl returns the layout table a subtable's coverage and class tables
// belong to: the private extension-area table for extension payloads, and
// the shared table otherwise.
func (b *Builder) subOtl(sub *subtable) *otl.Table {
	if sub.useExt {
		return sub.extOtl
	}
	return b.otl
}

func (b *Builder) addSubtable(sub *subtable, bd body) {
	sub.body = bd
	b.subtables = append(b.subtables, sub)
}

// addSubstRule adds one rule to an accumulator, enumerating glyph classes
// where the binary format requires single glyphs.
func (b *Builder) addSubstRule(si *subtableInfo, targ, repl Pattern) {
	switch si.lkpType {
	case Single:
		b.addSingleRules(si, targ, repl)

	case Ligature:
		length := len(targ)
		if targ.hasClass() {
			for _, seq := range targ.crossProduct() {
				t := make(Pattern, len(seq))
				for i, gid := range seq {
					t[i] = PatternElem{Glyphs: []glyph.ID{gid}}
				}
				si.rules = append(si.rules, substRule{targ: t, repl: repl.clone(-1), length: length})
			}
			return
		}
		si.rules = append(si.rules, substRule{targ: targ, repl: repl, length: length})

	default:
		si.rules = append(si.rules, substRule{targ: targ, repl: repl, length: len(targ)})
	}
}

// Fill runs the size pass: anonymous lookups are flushed, every subtable
// is registered with the layout layer, lookup indices are assigned and the
// extension section base is fixed.  Fill reports false if the table is
// empty.
func (b *Builder) fill() (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	if len(b.subtables) == 0 && len(b.anon) == 0 {
		return false, nil
	}

	b.createAnonLookups()
	if b.err != nil {
		return false, b.err
	}

	for _, sub := range b.subtables {
		isRef := sub.label.IsReference()
		isExt := sub.useExt
		hasParams := sub.lkpType == FeatureNames || sub.lkpType == CVParameters

		rec := otl.SubtableRecord{
			Script:           sub.script,
			Language:         sub.language,
			Feature:          sub.feature,
			LookupType:       uint16(sub.lkpType),
			Flags:            sub.lkpFlag,
			MarkFilteringSet: sub.markSetIndex,
			Label:            sub.label,
			HasFeatureParams: hasParams,
		}
		if isExt {
			rec.LookupType = uint16(Extension)
			rec.ExtensionType = uint16(sub.lkpType)
		}
		if !isRef {
			rec.Offset = sub.offset
			if isExt {
				rec.Format = 1
			} else {
				rec.Format = sub.body.subformat()
			}
		}
		b.otl.SubtableAdd(rec)
	}

	if err := b.otl.Fill(b.offset.featParams); err != nil {
		return false, err
	}

	b.offset.extensionSection = b.offset.subtable +
		b.otl.CoverageSize() + b.otl.ClassSize()

	if err := b.setAnonLookupIndices(); err != nil {
		return false, err
	}
	return true, nil
}

// Encode compiles the accumulated rules into the binary GSUB table.  It
// returns nil (and no error) if no rules were added.
func (b *Builder) Encode() ([]byte, error) {
	if b.done {
		return b.out, b.err
	}
	b.done = true

	ok, err := b.fill()
	if err != nil {
		b.err = err
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	buf := b.otl.AppendTop(nil)
	buf = b.appendFeatParams(buf)
	buf = b.otl.AppendLookupList(buf)

	// Ordinary subtable area.  Extension lookups contribute only their
	// indirection records here; reference subtables contribute nothing.
	for _, sub := range b.subtables {
		if sub.label.IsReference() {
			continue
		}
		if sub.useExt {
			buf = sub.extRec.append(b, sub, buf)
			continue
		}
		switch sub.lkpType {
		case Single, Multiple, Alternate, Ligature, Chain, Reverse:
			buf, err = sub.body.append(b, sub, buf)
			if err != nil {
				b.err = err
				return nil, err
			}
		}
	}

	// Shared coverage and class areas.
	buf = b.otl.AppendCoverage(buf)
	buf = b.otl.AppendClasses(buf)

	// Extension section: each payload is immediately followed by its own
	// coverage and class tables.
	for _, sub := range b.subtables {
		if sub.label.IsReference() || !sub.useExt {
			continue
		}
		buf, err = sub.body.append(b, sub, buf)
		if err != nil {
			b.err = err
			return nil, err
		}
	}

	b.out = buf
	return buf, nil
}

func (b *Builder) appendFeatParams(buf []byte) []byte {
	for _, sub := range b.subtables {
		if sub.label.IsReference() {
			continue
		}
		switch sub.lkpType {
		case FeatureNames, CVParameters:
			buf, _ = sub.body.append(b, sub, buf)
		}
	}
	return buf
}
