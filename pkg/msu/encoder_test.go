// Zaparoo MSU
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo MSU.
//
// Zaparoo MSU is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo MSU is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo MSU.  If not, see <http://www.gnu.org/licenses/>.

package msu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodedPage struct {
	pairs   []uint32
	writes  int
	partial bool
	bytes   int
}

type testingT interface {
	require.TestingT
	Helper()
	Fatalf(format string, args ...any)
}

// decodeStream replays an encoded stream the way the firmware does and
// returns the packed contents of every flushed page.
func decodeStream(t testingT, stream []byte) []decodedPage {
	t.Helper()
	require.Zero(t, len(stream)%FrameSize, "stream must be whole frames")

	var pages []decodedPage
	cur := decodedPage{pairs: make([]uint32, PagePairs)}
	for i := 0; i < len(stream); i += FrameSize {
		f := stream[i : i+FrameSize]
		switch {
		case f[0] == OpMultiWrite && f[1] == SubFillPacked:
			v := word(f[2:])
			for j := range cur.pairs {
				cur.pairs[j] = v
			}
		case f[0] == OpWritePair:
			require.Less(t, int(f[1]), PagePairs)
			cur.pairs[f[1]] = word(f[2:])
			cur.writes++
		case f[0] == OpMultiWrite && f[1] == SubControl && f[2] == CtrlPageFlush:
			cur.partial = f[3] == 0
			cur.bytes = int(f[4])
			pages = append(pages, cur)
			cur = decodedPage{pairs: make([]uint32, PagePairs)}
		default:
			t.Fatalf("unexpected frame % x", f)
		}
	}
	return pages
}

func word(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func filled(n int, v uint16) []uint16 {
	px := make([]uint16, n)
	for i := range px {
		px[i] = v
	}
	return px
}

func TestFromRGB888(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		r, g, b  uint8
		expected uint16
	}{
		{name: "black", expected: ColorBlack},
		{name: "white", r: 255, g: 255, b: 255, expected: ColorWhite},
		{name: "red", r: 255, expected: ColorRed},
		{name: "green", g: 255, expected: ColorGreen},
		{name: "blue", b: 255, expected: ColorBlue},
		{name: "truncates low bits", r: 0x07, g: 0x03, b: 0x07, expected: 0},
		{name: "orange", r: 0xF8, g: 0x80, expected: ColorOrange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, FromRGB888(tt.r, tt.g, tt.b))
		})
	}
}

func TestPack(t *testing.T) {
	t.Parallel()

	packed := Pack([]uint16{0x1234, 0xABCD, 0xFFFF, 0x0000, 0x0001})

	require.Len(t, packed, 2, "odd trailing pixel is dropped")
	assert.Equal(t, uint32(0x1234ABCD), packed[0])
	assert.Equal(t, uint32(0xFFFF0000), packed[1])
}

func descending(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(n - i)
	}
	return out
}

func TestDominant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		packed   []uint32
		expected uint32
	}{
		{name: "single value", packed: []uint32{7, 7, 7}, expected: 7},
		{name: "clear majority", packed: []uint32{1, 2, 2, 3, 2}, expected: 2},
		{name: "all distinct picks smallest", packed: []uint32{9, 8, 7}, expected: 7},
		{name: "tie goes to smallest", packed: []uint32{5, 6, 6, 5}, expected: 5},
		{
			name:     "tie with larger value first",
			packed:   []uint32{0xFFFF0000, 1, 0xFFFF0000, 1},
			expected: 1,
		},
		{name: "descending distinct page", packed: descending(PagePairs), expected: 1},
		{name: "empty", packed: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Dominant(tt.packed))
		})
	}
}

func TestEncodeFrame_AllWhiteDisplay(t *testing.T) {
	t.Parallel()

	stream := EncodeFrame(filled(DisplayWidth*DisplayHeight, 0xFFFF))

	fills, writes, fullFlush, partialFlush := 0, 0, 0, 0
	for i := 0; i < len(stream); i += FrameSize {
		f := stream[i : i+FrameSize]
		switch {
		case f[0] == OpMultiWrite && f[1] == SubFillPacked:
			assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, f[2:])
			fills++
		case f[0] == OpWritePair:
			writes++
		case f[0] == OpMultiWrite && f[1] == SubControl && f[2] == CtrlPageFlush && f[3] == 1:
			assert.Equal(t, []byte{0, 0}, f[4:])
			fullFlush++
		case f[0] == OpMultiWrite && f[1] == SubControl && f[2] == CtrlPageFlush:
			partialFlush++
		}
	}

	assert.Equal(t, 100, fills)
	assert.Equal(t, 100, fullFlush)
	assert.Zero(t, writes)
	assert.Zero(t, partialFlush)
	assert.Len(t, stream, 200*FrameSize)
}

func TestEncodeFrame_PartialTail(t *testing.T) {
	t.Parallel()

	px := filled(130, ColorBlack)
	px[128] = 0x1234
	px[129] = 0x5678

	pages := decodeStream(t, EncodeFrame(px))
	require.Len(t, pages, 2)

	assert.False(t, pages[0].partial)
	assert.Zero(t, pages[0].writes)

	tail := pages[1]
	assert.True(t, tail.partial)
	assert.Equal(t, 4, tail.bytes)
	assert.Equal(t, PagePairs, tail.writes, "tail page writes every pair")
	assert.Equal(t, uint32(0x12345678), tail.pairs[0])
	for i := 1; i < PagePairs; i++ {
		assert.Equal(t, uint32(0xFFFFFFFF), tail.pairs[i], "pair %d is filler", i)
	}
}

func TestEncodeFrame_SingleOutlier(t *testing.T) {
	t.Parallel()

	px := filled(PageEntries, ColorBlack)
	px[77] = ColorRed

	stream := EncodeFrame(px)
	expected := []byte{
		OpMultiWrite, SubFillPacked, 0, 0, 0, 0,
		OpWritePair, 38, 0, 0, 0xF8, 0x00,
		OpMultiWrite, SubControl, CtrlPageFlush, 1, 0, 0,
	}
	assert.Equal(t, expected, stream)
}

func TestEncodeFrame_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, EncodeFrame(nil))
}

func TestEncodeFrame_ShortBufferOnlyPartial(t *testing.T) {
	t.Parallel()

	pages := decodeStream(t, EncodeFrame([]uint16{1, 2, 3}))
	require.Len(t, pages, 1)
	assert.True(t, pages[0].partial)
	assert.Equal(t, 6, pages[0].bytes)
	assert.Equal(t, uint32(0x00010002), pages[0].pairs[0])
	assert.Equal(t, uint32(0x0003FFFF), pages[0].pairs[1])
}
