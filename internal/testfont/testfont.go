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

// Package testfont provides a real font and its character mapping for use
// in unit tests and examples.
package testfont

import (
	"bytes"

	"golang.org/x/image/font/gofont/goregular"

	"seehuhn.de/go/sfnt"
	"seehuhn.de/go/sfnt/glyph"
)

// Load parses the bundled Go Regular font.
func Load() *sfnt.Font {
	info, err := sfnt.Read(bytes.NewReader(goregular.TTF))
	if err != nil {
		panic(err)
	}
	return info
}

// GIDs maps every rune of s to its glyph ID in the font.
func GIDs(info *sfnt.Font, s string) []glyph.ID {
	cmap, err := info.CMapTable.GetBest()
	if err != nil {
		panic(err)
	}
	gids := make([]glyph.ID, 0, len(s))
	for _, r := range s {
		gids = append(gids, cmap.Lookup(r))
	}
	return gids
}
