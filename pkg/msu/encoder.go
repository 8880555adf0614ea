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

// FromRGB888 converts an 8-bit-per-channel color to RGB565 by truncation.
func FromRGB888(r, g, b uint8) uint16 {
	return uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b)>>3
}

// Pack combines adjacent pixels into 32-bit pairs, the earlier pixel in the
// high half-word. A trailing odd pixel is ignored.
func Pack(pixels []uint16) []uint32 {
	packed := make([]uint32, len(pixels)/2)
	for i := range packed {
		packed[i] = uint32(pixels[2*i])<<16 | uint32(pixels[2*i+1])
	}
	return packed
}

// Dominant returns the most frequent value in packed. Ties go to the
// smallest value.
func Dominant(packed []uint32) uint32 {
	counts := make(map[uint32]int, len(packed))
	for _, v := range packed {
		counts[v]++
	}

	var best uint32
	bestCount := 0
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best = v
			bestCount = n
		}
	}
	return best
}

// EncodeFrame compresses a row-major RGB565 buffer into the device command
// stream. Each full page becomes a background fill, a write for every pair
// that differs from it and a page flush. A trailing partial page is padded
// with FillerColor and written out pair by pair.
func EncodeFrame(pixels []uint16) []byte {
	full := len(pixels) / PageEntries
	rem := len(pixels) % PageEntries

	out := make([]byte, 0, (full+1)*3*FrameSize)
	for p := range full {
		out = appendPage(out, pixels[p*PageEntries:(p+1)*PageEntries])
	}

	if rem != 0 {
		tail := make([]uint16, PageEntries)
		copy(tail, pixels[full*PageEntries:])
		for i := rem; i < PageEntries; i++ {
			tail[i] = FillerColor
		}
		out = appendPartialPage(out, tail, rem)
	}

	return out
}

func appendPage(out []byte, page []uint16) []byte {
	packed := Pack(page)
	bg := Dominant(packed)

	out = appendWord(append(out, OpMultiWrite, SubFillPacked), bg)
	for i, v := range packed {
		if v != bg {
			out = appendWord(append(out, OpWritePair, byte(i)), v)
		}
	}
	return append(out, OpMultiWrite, SubControl, CtrlPageFlush, 1, 0, 0)
}

func appendPartialPage(out []byte, page []uint16, entries int) []byte {
	for i, v := range Pack(page) {
		out = appendWord(append(out, OpWritePair, byte(i)), v)
	}
	return append(out, OpMultiWrite, SubControl, CtrlPageFlush, 0, byte(entries*2), 0)
}

func appendWord(out []byte, v uint32) []byte {
	return append(out, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
