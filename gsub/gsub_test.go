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
	"bytes"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"seehuhn.de/go/sfnt/glyph"

	"github.com/skef/afdko/internal/testfont"
	"github.com/skef/afdko/otl"
)

func named(id uint16) otl.Label {
	return otl.Label{Kind: otl.LabelNamed, ID: id}
}

// tbl wraps an encoded table for structural checks.
type tbl struct {
	data []byte
	t    *testing.T
}

func (d *tbl) u16(pos int) int {
	if pos < 0 || pos+2 > len(d.data) {
		d.t.Fatalf("read at %d outside table (len %d)", pos, len(d.data))
	}
	return int(d.data[pos])<<8 | int(d.data[pos+1])
}

func (d *tbl) u32(pos int) int {
	return d.u16(pos)<<16 | d.u16(pos+2)
}

func (d *tbl) tag(pos int) string {
	if pos < 0 || pos+4 > len(d.data) {
		d.t.Fatalf("read at %d outside table (len %d)", pos, len(d.data))
	}
	return string(d.data[pos : pos+4])
}

func (d *tbl) lookupListPos() int { return d.u16(8) }

func (d *tbl) lookupCount() int { return d.u16(d.lookupListPos()) }

func (d *tbl) lookupPos(i int) int {
	ll := d.lookupListPos()
	return ll + d.u16(ll+2+2*i)
}

func (d *tbl) lookupType(i int) int { return d.u16(d.lookupPos(i)) }

func (d *tbl) subtableCount(i int) int { return d.u16(d.lookupPos(i) + 4) }

func (d *tbl) subtablePos(i, j int) int {
	lp := d.lookupPos(i)
	return lp + d.u16(lp+6+2*j)
}

// coverage decodes a coverage table into its glyph list.
func (d *tbl) coverage(pos int) []glyph.ID {
	var glyphs []glyph.ID
	switch format := d.u16(pos); format {
	case 1:
		n := d.u16(pos + 2)
		for i := 0; i < n; i++ {
			glyphs = append(glyphs, glyph.ID(d.u16(pos+4+2*i)))
		}
	case 2:
		n := d.u16(pos + 2)
		for i := 0; i < n; i++ {
			first := d.u16(pos + 4 + 6*i)
			last := d.u16(pos + 6 + 6*i)
			for g := first; g <= last; g++ {
				glyphs = append(glyphs, glyph.ID(g))
			}
		}
	default:
		d.t.Fatalf("bad coverage format %d at %d", format, pos)
	}
	return glyphs
}

func (d *tbl) featureCount() int { return d.u16(d.u16(6)) }

func (d *tbl) featureTag(i int) string {
	fl := d.u16(6)
	return d.tag(fl + 2 + 6*i)
}

func (d *tbl) featurePos(i int) int {
	fl := d.u16(6)
	return fl + d.u16(fl+6+6*i)
}

func encode(t *testing.T, b *Builder) *tbl {
	t.Helper()
	data, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return &tbl{data: data, t: t}
}

func singleLookup(b *Builder, mapping map[glyph.ID]glyph.ID, useExt bool) {
	b.FeatureBegin("latn", otl.TagDefaultLang, "smcp")
	b.LookupBegin(Single, 0, named(0), useExt, 0)
	for from, to := range mapping {
		var targ, repl Pattern
		targ.Add(ZoneNone, from)
		repl.Add(ZoneNone, to)
		b.RuleAdd(targ, repl)
	}
	b.LookupEnd()
	b.FeatureEnd()
}

func TestSingleConstantDelta(t *testing.T) {
	b := NewBuilder()
	singleLookup(b, map[glyph.ID]glyph.ID{10: 20, 11: 21, 12: 22}, false)
	d := encode(t, b)

	if d.lookupCount() != 1 || d.lookupType(0) != 1 {
		t.Fatalf("got %d lookups, first type %d", d.lookupCount(), d.lookupType(0))
	}
	pos := d.subtablePos(0, 0)
	if format := d.u16(pos); format != 1 {
		t.Fatalf("got subtable format %d, want 1", format)
	}
	if delta := int16(d.u16(pos + 4)); delta != 10 {
		t.Errorf("got delta %d, want 10", delta)
	}
	got := d.coverage(pos + d.u16(pos+2))
	want := []glyph.ID{10, 11, 12}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("coverage mismatch (-want +got):\n%s", diff)
	}
}

func TestSingleExplicit(t *testing.T) {
	b := NewBuilder()
	singleLookup(b, map[glyph.ID]glyph.ID{10: 20, 11: 30}, false)
	d := encode(t, b)

	pos := d.subtablePos(0, 0)
	if format := d.u16(pos); format != 2 {
		t.Fatalf("got subtable format %d, want 2", format)
	}
	if n := d.u16(pos + 4); n != 2 {
		t.Fatalf("got %d substitutes, want 2", n)
	}
	got := []glyph.ID{glyph.ID(d.u16(pos + 6)), glyph.ID(d.u16(pos + 8))}
	want := []glyph.ID{20, 30}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("substitutes mismatch (-want +got):\n%s", diff)
	}
}

func TestSingleDuplicates(t *testing.T) {
	b := NewBuilder()
	b.FeatureBegin("latn", otl.TagDefaultLang, "smcp")
	b.LookupBegin(Single, 0, named(0), false, 0)
	for i := 0; i < 2; i++ {
		var targ, repl Pattern
		targ.Add(ZoneNone, 10)
		repl.Add(ZoneNone, 20)
		b.RuleAdd(targ, repl)
	}
	b.LookupEnd()
	b.FeatureEnd()
	if _, err := b.Encode(); err != nil {
		t.Fatal(err)
	}
	if len(b.Notes()) != 1 {
		t.Errorf("got %d notes, want 1", len(b.Notes()))
	}

	b = NewBuilder()
	singleLookup(b, map[glyph.ID]glyph.ID{10: 20}, false)
	b.FeatureBegin("latn", otl.TagDefaultLang, "smcp")
	b.LookupBegin(Single, 0, named(1), false, 0)
	var targ, repl Pattern
	targ.Add(ZoneNone, 10, 10)
	repl.Add(ZoneNone, 20, 30)
	b.RuleAdd(targ, repl)
	b.LookupEnd()
	b.FeatureEnd()
	if _, err := b.Encode(); err == nil {
		t.Error("conflicting single substitution not detected")
	}
}

func TestMultipleSequence(t *testing.T) {
	b := NewBuilder()
	b.FeatureBegin("latn", otl.TagDefaultLang, "ccmp")
	b.LookupBegin(Multiple, 0, named(0), false, 0)
	var targ, repl Pattern
	targ.Add(ZoneNone, 5)
	repl.Add(ZoneNone, 6)
	repl.Add(ZoneNone, 7)
	repl.Add(ZoneNone, 8)
	b.RuleAdd(targ, repl)
	b.LookupEnd()
	b.FeatureEnd()
	d := encode(t, b)

	if d.lookupType(0) != 2 {
		t.Fatalf("got lookup type %d, want 2", d.lookupType(0))
	}
	pos := d.subtablePos(0, 0)
	if n := d.u16(pos + 4); n != 1 {
		t.Fatalf("got %d sequences, want 1", n)
	}
	seqPos := pos + d.u16(pos+6)
	n := d.u16(seqPos)
	got := make([]glyph.ID, n)
	for i := range got {
		got[i] = glyph.ID(d.u16(seqPos + 2 + 2*i))
	}
	want := []glyph.ID{6, 7, 8}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sequence mismatch (-want +got):\n%s", diff)
	}
}

// TestMultipleSplit drives the accumulated rules past the 16-bit size limit
// and checks that the lookup splits into several subtables which together
// cover all targets.  Extension indirection keeps the ordinary subtable
// area small enough for the shared coverage offsets.
func TestMultipleSplit(t *testing.T) {
	const nRules = 2000
	b := NewBuilder()
	b.FeatureBegin("latn", otl.TagDefaultLang, "ccmp")
	b.LookupBegin(Multiple, 0, named(0), true, 0)
	for i := 0; i < nRules; i++ {
		var targ, repl Pattern
		targ.Add(ZoneNone, glyph.ID(1000+i))
		for k := 0; k < 15; k++ {
			repl.Add(ZoneNone, glyph.ID(100+k))
		}
		b.RuleAdd(targ, repl)
	}
	b.LookupEnd()
	b.FeatureEnd()
	d := encode(t, b)

	if d.lookupCount() != 1 {
		t.Fatalf("got %d lookups, want 1", d.lookupCount())
	}
	if d.lookupType(0) != 7 {
		t.Fatalf("got lookup type %d, want 7", d.lookupType(0))
	}
	nSub := d.subtableCount(0)
	if nSub < 2 {
		t.Fatalf("got %d subtables, want at least 2", nSub)
	}
	// the ordinary area holds only the fixed indirection records
	if gap := d.subtablePos(0, 1) - d.subtablePos(0, 0); gap != 8 {
		t.Errorf("got %d bytes between extension records, want 8", gap)
	}

	var covered []glyph.ID
	for j := 0; j < nSub; j++ {
		ext := d.subtablePos(0, j)
		if format := d.u16(ext); format != 1 {
			t.Fatalf("got extension format %d, want 1", format)
		}
		if wrapped := d.u16(ext + 2); wrapped != 2 {
			t.Fatalf("got wrapped type %d, want 2", wrapped)
		}
		pos := ext + d.u32(ext+4)
		if size := 6 + 4*d.u16(pos+4); size > 0xFFFF {
			t.Errorf("subtable %d too large (%d bytes of headers)", j, size)
		}
		covered = append(covered, d.coverage(pos+d.u16(pos+2))...)
	}

	want := make([]glyph.ID, nRules)
	for i := range want {
		want[i] = glyph.ID(1000 + i)
	}
	if diff := cmp.Diff(want, covered); diff != "" {
		t.Errorf("combined coverage mismatch (-want +got):\n%s", diff)
	}
}

func TestAlternate(t *testing.T) {
	b := NewBuilder()
	b.FeatureBegin("latn", otl.TagDefaultLang, "aalt")
	b.LookupBegin(Alternate, 0, named(0), false, 0)
	var targ, repl Pattern
	targ.Add(ZoneNone, 5)
	repl.Add(ZoneNone, 6, 7, 8)
	b.RuleAdd(targ, repl)
	b.LookupEnd()
	b.FeatureEnd()
	d := encode(t, b)

	if d.lookupType(0) != 3 {
		t.Fatalf("got lookup type %d, want 3", d.lookupType(0))
	}
	pos := d.subtablePos(0, 0)
	setPos := pos + d.u16(pos+6)
	n := d.u16(setPos)
	got := make([]glyph.ID, n)
	for i := range got {
		got[i] = glyph.ID(d.u16(setPos + 2 + 2*i))
	}
	want := []glyph.ID{6, 7, 8}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("alternate set mismatch (-want +got):\n%s", diff)
	}
}

// TestEncodeStable checks that two builders fed the same rules produce
// identical bytes, and that Encode is idempotent.
func TestEncodeStable(t *testing.T) {
	build := func() *Builder {
		b := NewBuilder()
		singleLookup(b, map[glyph.ID]glyph.ID{10: 20, 11: 30, 12: 40}, false)
		return b
	}

	b1 := build()
	data1, err := b1.Encode()
	if err != nil {
		t.Fatal(err)
	}
	data2, err := build().Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data1, data2) {
		t.Error("same rules produced different tables")
	}
	data3, err := b1.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data1, data3) {
		t.Error("second Encode call changed the result")
	}
}

func TestEmptyTable(t *testing.T) {
	b := NewBuilder()
	data, err := b.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if data != nil {
		t.Errorf("got %d bytes for an empty table, want none", len(data))
	}
}

// TestRealFont compiles a feature using glyph IDs from an actual font.
func TestRealFont(t *testing.T) {
	info := testfont.Load()
	lower := testfont.GIDs(info, "abcdefghijklmnopqrstuvwxyz")
	upper := testfont.GIDs(info, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")

	b := NewBuilder()
	b.FeatureBegin("latn", otl.TagDefaultLang, "smcp")
	b.LookupBegin(Single, 0, named(0), false, 0)
	for i := range lower {
		var targ, repl Pattern
		targ.Add(ZoneNone, lower[i])
		repl.Add(ZoneNone, upper[i])
		b.RuleAdd(targ, repl)
	}
	b.LookupEnd()
	b.FeatureEnd()
	d := encode(t, b)

	if d.featureCount() != 1 || d.featureTag(0) != "smcp" {
		t.Fatalf("got %d features, first %q", d.featureCount(), d.featureTag(0))
	}
	pos := d.subtablePos(0, 0)
	got := d.coverage(pos + d.u16(pos+2))
	if len(got) != len(lower) {
		t.Errorf("got %d covered glyphs, want %d", len(got), len(lower))
	}
}

// TestFeatureRegistration checks that a lookup used by several features is
// emitted once and referenced from each feature table.
func TestFeatureRegistration(t *testing.T) {
	b := NewBuilder()
	singleLookup(b, map[glyph.ID]glyph.ID{10: 20}, false)

	b.FeatureBegin("latn", otl.TagDefaultLang, "c2sc")
	b.LookupBegin(Single, 0, otl.Label{Kind: otl.LabelReference, ID: 0}, false, 0)
	b.LookupEnd()
	b.FeatureEnd()

	d := encode(t, b)
	if d.lookupCount() != 1 {
		t.Fatalf("got %d lookups, want 1", d.lookupCount())
	}
	if d.featureCount() != 2 {
		t.Fatalf("got %d features, want 2", d.featureCount())
	}
	// features are sorted by tag
	wantTags := []string{"c2sc", "smcp"}
	for i, want := range wantTags {
		if got := d.featureTag(i); got != want {
			t.Errorf("feature %d: got tag %q, want %q", i, got, want)
		}
		fp := d.featurePos(i)
		if n := d.u16(fp + 2); n != 1 {
			t.Errorf("feature %q: got %d lookups, want 1", want, n)
		}
		if idx := d.u16(fp + 4); idx != 0 {
			t.Errorf("feature %q: got lookup index %d, want 0", want, idx)
		}
	}
}

func TestMaxContext(t *testing.T) {
	b := NewBuilder()
	b.FeatureBegin("latn", otl.TagDefaultLang, "liga")
	b.LookupBegin(Ligature, 0, named(0), false, 0)
	var targ, repl Pattern
	targ.Add(ZoneNone, 1)
	targ.Add(ZoneNone, 2)
	targ.Add(ZoneNone, 3)
	repl.Add(ZoneNone, 9)
	b.RuleAdd(targ, repl)
	b.LookupEnd()
	b.FeatureEnd()
	if _, err := b.Encode(); err != nil {
		t.Fatal(err)
	}
	if got := b.MaxContext(); got != 3 {
		t.Errorf("got max context %d, want 3", got)
	}
}

func TestErrorContext(t *testing.T) {
	b := NewBuilder()
	b.FeatureBegin("latn", otl.TagDefaultLang, "smcp")
	b.LookupBegin(Single, 0, named(0), false, 0)
	var targ, repl Pattern
	targ.Add(ZoneNone, 10, 10)
	repl.Add(ZoneNone, 20, 30)
	b.RuleAdd(targ, repl)
	b.LookupEnd()
	b.FeatureEnd()
	_, err := b.Encode()
	if err == nil {
		t.Fatal("conflicting rules not detected")
	}
	want := fmt.Sprintf("gsub: in feature 'smcp': duplicate target glyph for single substitution: glyph %d", 10)
	if err.Error() != want {
		t.Errorf("got error %q, want %q", err, want)
	}
}

// TestCoverageOverflow grows the shared coverage area past the 16-bit
// offset ceiling while every individual subtable stays small.  The overflow
// is only detectable during the write pass, when the relocated coverage
// offsets are known.
func TestCoverageOverflow(t *testing.T) {
	b := NewBuilder()
	for i := 0; i < 30; i++ {
		b.FeatureBegin("latn", otl.TagDefaultLang, "smcp")
		b.LookupBegin(Single, 0, named(uint16(i)), false, 0)
		// 1500 sparse glyphs force a 3004-byte format 1 coverage table;
		// the constant delta keeps the subtable itself at 6 bytes.
		var targs, repls []glyph.ID
		for k := 0; k < 1500; k++ {
			gid := glyph.ID(i + 2*k)
			targs = append(targs, gid)
			repls = append(repls, gid+1)
		}
		var targ, repl Pattern
		targ.Add(ZoneNone, targs...)
		repl.Add(ZoneNone, repls...)
		b.RuleAdd(targ, repl)
		b.LookupEnd()
		b.FeatureEnd()
	}
	_, err := b.Encode()
	if err == nil {
		t.Fatal("coverage offset overflow not detected")
	}
	want := "gsub: in feature 'smcp': single substitution rules cause an offset overflow (0x10258) to a coverage table"
	if err.Error() != want {
		t.Errorf("got error %q, want %q", err, want)
	}
}
