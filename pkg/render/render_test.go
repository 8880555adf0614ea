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

package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/ZaparooProject/zaparoo-msu/pkg/metrics"
	"github.com/ZaparooProject/zaparoo-msu/pkg/msu"
	"github.com/ZaparooProject/zaparoo-msu/pkg/testing/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	err      error
	readings metrics.Readings
	calls    int
}

func (f *fakeSource) Collect(context.Context) (metrics.Readings, error) {
	f.calls++
	return f.readings, f.err
}

func sampleReadings() metrics.Readings {
	return metrics.Readings{
		CPUPercent:  37,
		MemPercent:  61,
		MemUsed:     5 << 30,
		DiskPercent: 80,
		DiskUsed:    200 << 30,
		Temperature: 48,
		HasTemp:     true,
	}
}

// quadrant returns the pixels of one grid tile.
func quadrant(pixels []uint16, col, row int) []uint16 {
	var out []uint16
	for y := row * tileH; y < (row+1)*tileH; y++ {
		for x := col * tileW; x < (col+1)*tileW; x++ {
			out = append(out, pixels[y*msu.DisplayWidth+x])
		}
	}
	return out
}

func TestFrame_Geometry(t *testing.T) {
	t.Parallel()

	src := &fakeSource{readings: sampleReadings()}
	r, err := NewRenderer(src)
	require.NoError(t, err)

	pixels, err := r.Frame(context.Background())
	require.NoError(t, err)
	assert.Len(t, pixels, msu.DisplayWidth*msu.DisplayHeight)
	assert.Equal(t, 1, src.calls)

	// mostly background, so black dominates every page
	packed := msu.Pack(pixels[:msu.PageEntries])
	assert.Equal(t, uint32(0), msu.Dominant(packed))
}

func TestFrame_TileColors(t *testing.T) {
	t.Parallel()

	r, err := NewRenderer(&fakeSource{readings: sampleReadings()})
	require.NoError(t, err)
	pixels, err := r.Frame(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name string
		// mask of channels that must stay empty for this tile's color
		forbidden uint16
		col, row  int
	}{
		{name: "temperature orange", col: 0, row: 0, forbidden: 0x001F},
		{name: "memory blue", col: 1, row: 0, forbidden: 0xFFE0},
		{name: "disk yellow", col: 0, row: 1, forbidden: 0x001F},
		{name: "cpu green", col: 1, row: 1, forbidden: 0xF81F},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := quadrant(pixels, tt.col, tt.row)
			inked := 0
			for _, p := range q {
				if p != msu.ColorBlack {
					inked++
				}
				require.Zero(t, p&tt.forbidden, "pixel %#04x outside tile color", p)
			}
			assert.Positive(t, inked, "tile should contain text")
		})
	}
}

func TestFrame_PartialReadings(t *testing.T) {
	t.Parallel()

	src := &fakeSource{readings: sampleReadings(), err: errors.New("disk: gone")}
	r, err := NewRenderer(src)
	require.NoError(t, err)

	pixels, err := r.Frame(context.Background())
	require.NoError(t, err)
	assert.Len(t, pixels, msu.DisplayWidth*msu.DisplayHeight)
	assert.Equal(t, 37, r.Latest().CPUPercent)
}

func TestFrame_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &mocks.MockReadingSource{}
	src.On("Collect", mock.Anything).Return(metrics.Readings{}, context.Canceled)
	r, err := NewRenderer(src)
	require.NoError(t, err)

	_, err = r.Frame(ctx)
	require.ErrorIs(t, err, context.Canceled)
	src.AssertNumberOfCalls(t, "Collect", 1)
}

func TestFrame_CollectsOncePerFrame(t *testing.T) {
	t.Parallel()

	src := &mocks.MockReadingSource{}
	src.On("Collect", mock.Anything).Return(sampleReadings(), nil)
	r, err := NewRenderer(src)
	require.NoError(t, err)

	for range 3 {
		_, err = r.Frame(context.Background())
		require.NoError(t, err)
	}

	src.AssertNumberOfCalls(t, "Collect", 3)
	assert.Equal(t, sampleReadings().CPUPercent, r.Latest().CPUPercent)
}

func TestFrame_DifferentReadingsDiffer(t *testing.T) {
	t.Parallel()

	src := &fakeSource{readings: sampleReadings()}
	r, err := NewRenderer(src)
	require.NoError(t, err)

	first, err := r.Frame(context.Background())
	require.NoError(t, err)

	src.readings.CPUPercent = 99
	second, err := r.Frame(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, quadrant(first, 0, 0), quadrant(second, 0, 0), "unchanged tiles are stable")
}

func TestRGBA(t *testing.T) {
	t.Parallel()

	for _, c := range []uint16{
		msu.ColorBlack, msu.ColorWhite, msu.ColorRed, msu.ColorGreen,
		msu.ColorBlue, msu.ColorOrange, msu.ColorGray1,
	} {
		rgba := RGBA(c)
		assert.Equal(t, c, msu.FromRGB888(rgba.R, rgba.G, rgba.B), "round trip %#04x", c)
	}
}

func TestToRGB565_RowMajor(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.SetRGBA(3, 1, color.RGBA{R: 0xFF, A: 0xFF})

	out := ToRGB565(img)
	require.Len(t, out, 8)
	assert.Equal(t, msu.ColorRed, out[7])
	for i := range 7 {
		assert.Equal(t, msu.ColorBlack, out[i])
	}
}
