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
	"slices"
	"testing"

	"pgregory.net/rapid"
)

func pixelGen(maxLen int) *rapid.Generator[[]uint16] {
	// A small palette makes runs and repeated pairs common.
	palette := rapid.SampledFrom([]uint16{ColorBlack, ColorWhite, ColorRed, ColorGreen, ColorBlue})
	color := rapid.OneOf(palette, rapid.Uint16())
	return rapid.SliceOfN(color, 0, maxLen)
}

// TestPropertyPackPairsAdjacentPixels verifies the high half-word is the
// earlier pixel.
func TestPropertyPackPairsAdjacentPixels(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		px := pixelGen(512).Draw(t, "pixels")
		if len(px)%2 != 0 {
			px = px[:len(px)-1]
		}

		packed := Pack(px)
		if len(packed) != len(px)/2 {
			t.Fatalf("expected %d pairs, got %d", len(px)/2, len(packed))
		}
		for i, v := range packed {
			want := uint32(px[2*i])<<16 | uint32(px[2*i+1])
			if v != want {
				t.Fatalf("pair %d: got %08x, want %08x", i, v, want)
			}
		}
	})
}

// TestPropertyEncodeRoundTrip verifies replaying the stream reproduces every
// page exactly.
func TestPropertyEncodeRoundTrip(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		px := pixelGen(4*PageEntries).Draw(rt, "pixels")
		pages := decodeStream(rt, EncodeFrame(px))

		full := len(px) / PageEntries
		for p := range full {
			want := Pack(px[p*PageEntries : (p+1)*PageEntries])
			for i := range want {
				if pages[p].pairs[i] != want[i] {
					rt.Fatalf("page %d pair %d: got %08x, want %08x", p, i, pages[p].pairs[i], want[i])
				}
			}
		}

		if rem := len(px) % PageEntries; rem != 0 {
			tail := make([]uint16, PageEntries)
			copy(tail, px[full*PageEntries:])
			for i := rem; i < PageEntries; i++ {
				tail[i] = FillerColor
			}
			want := Pack(tail)
			for i := range want {
				if pages[full].pairs[i] != want[i] {
					rt.Fatalf("tail pair %d: got %08x, want %08x", i, pages[full].pairs[i], want[i])
				}
			}
		}
	})
}

// TestPropertyMajorityBecomesBackground verifies a strict majority value is
// always chosen and only the other pairs are written.
func TestPropertyMajorityBecomesBackground(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		bg := rapid.Uint32().Draw(t, "background")
		packed := make([]uint32, PagePairs)
		for i := range packed {
			packed[i] = bg
		}

		outliers := rapid.IntRange(0, PagePairs/2-1).Draw(t, "outliers")
		idx := rapid.Permutation(seq(PagePairs)).Draw(t, "order")[:outliers]
		for _, i := range idx {
			packed[i] = rapid.Uint32().Filter(func(v uint32) bool { return v != bg }).Draw(t, "outlier")
		}

		if got := Dominant(packed); got != bg {
			t.Fatalf("dominant %08x, want %08x", got, bg)
		}

		px := make([]uint16, 0, PageEntries)
		for _, v := range packed {
			px = append(px, uint16(v>>16), uint16(v))
		}
		stream := EncodeFrame(px)
		if writes := len(stream)/FrameSize - 2; writes != outliers {
			t.Fatalf("expected %d pair writes, got %d", outliers, writes)
		}
	})
}

// TestPropertyAllDistinctWritesEveryOtherPair verifies an all-distinct page
// takes its smallest value as background and writes every other pair.
func TestPropertyAllDistinctWritesEveryOtherPair(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfNDistinct(rapid.Uint32(), PagePairs, PagePairs, rapid.ID[uint32]).Draw(t, "values")
		if got, want := Dominant(values), slices.Min(values); got != want {
			t.Fatalf("dominant %08x, want smallest %08x", got, want)
		}
		px := make([]uint16, 0, PageEntries)
		for _, v := range values {
			px = append(px, uint16(v>>16), uint16(v))
		}

		stream := EncodeFrame(px)
		if writes := len(stream)/FrameSize - 2; writes != PagePairs-1 {
			t.Fatalf("expected %d pair writes, got %d", PagePairs-1, writes)
		}
	})
}

// TestPropertyPartialFlushCountsBytes verifies the final flush carries
// twice the number of leftover pixels, and full frames never take the
// partial path.
func TestPropertyPartialFlushCountsBytes(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 6*PageEntries).Draw(t, "length")
		stream := EncodeFrame(make([]uint16, n))

		partials := 0
		for i := 0; i < len(stream); i += FrameSize {
			f := stream[i : i+FrameSize]
			if f[0] == OpMultiWrite && f[1] == SubControl && f[2] == CtrlPageFlush && f[3] == 0 {
				partials++
				if int(f[4]) != (n%PageEntries)*2 {
					t.Fatalf("partial byte count %d, want %d", f[4], (n%PageEntries)*2)
				}
				if i != len(stream)-FrameSize {
					t.Fatalf("partial flush is not the final frame")
				}
			}
		}

		wantPartials := 0
		if n%PageEntries != 0 {
			wantPartials = 1
		}
		if partials != wantPartials {
			t.Fatalf("got %d partial flushes, want %d", partials, wantPartials)
		}
	})
}

func seq(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i
	}
	return s
}
