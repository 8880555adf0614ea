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
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-msu/pkg/metrics"
	"github.com/ZaparooProject/zaparoo-msu/pkg/msu"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	FontSize = 13
	tileW    = msu.DisplayWidth / 2
	tileH    = msu.DisplayHeight / 2
	padX     = 4
	padY     = 3
)

// ReadingSource supplies the system readings drawn on each frame.
type ReadingSource interface {
	Collect(ctx context.Context) (metrics.Readings, error)
}

type tile struct {
	header func(metrics.Readings) string
	detail func(metrics.Readings) string
	col    int
	row    int
	color  uint16
}

// Grid is the 2x2 layout: temperature and memory on top, disk and cpu below.
var grid = []tile{
	{
		col: 0, row: 0, color: msu.ColorOrange,
		header: func(metrics.Readings) string { return "TMP" },
		detail: func(r metrics.Readings) string { return r.TemperatureText() },
	},
	{
		col: 1, row: 0, color: msu.ColorBlue,
		header: func(r metrics.Readings) string { return fmt.Sprintf("RAM %d%%", r.MemPercent) },
		detail: func(r metrics.Readings) string { return "(" + metrics.FormatBytes(r.MemUsed) + ")" },
	},
	{
		col: 0, row: 1, color: msu.ColorYellow,
		header: func(r metrics.Readings) string { return fmt.Sprintf("DSK %d%%", r.DiskPercent) },
		detail: func(r metrics.Readings) string { return "(" + metrics.FormatBytes(r.DiskUsed) + ")" },
	},
	{
		col: 1, row: 1, color: msu.ColorGreen,
		header: func(metrics.Readings) string { return "CPU" },
		detail: func(r metrics.Readings) string { return fmt.Sprintf("%d%%", r.CPUPercent) },
	},
}

type Renderer struct {
	src    ReadingSource
	face   font.Face
	latest metrics.Readings
	mu     syncutil.RWMutex
}

func NewRenderer(src ReadingSource) (*Renderer, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return &Renderer{src: src, face: face}, nil
}

// Frame collects fresh readings and returns the rendered display as
// row-major RGB565 pixels. Partial readings are drawn with a warning.
func (r *Renderer) Frame(ctx context.Context) ([]uint16, error) {
	readings, err := r.src.Collect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("collecting readings: %w", err)
		}
		log.Warn().Err(err).Msg("some readings unavailable")
	}

	r.mu.Lock()
	r.latest = readings
	img := r.draw(readings)
	r.mu.Unlock()

	return ToRGB565(img), nil
}

// Latest returns the readings used for the most recent frame.
func (r *Renderer) Latest() metrics.Readings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

func (r *Renderer) draw(readings metrics.Readings) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, msu.DisplayWidth, msu.DisplayHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{A: 0xFF}), image.Point{}, draw.Src)

	ascent := r.face.Metrics().Ascent
	lineHeight := r.face.Metrics().Height

	for _, t := range grid {
		d := font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(RGBA(t.color)),
			Face: r.face,
		}
		x := fixed.I(t.col*tileW + padX)
		y := fixed.I(t.row*tileH+padY) + ascent

		d.Dot = fixed.Point26_6{X: x, Y: y}
		d.DrawString(t.header(readings))
		d.Dot = fixed.Point26_6{X: x, Y: y + lineHeight}
		d.DrawString(t.detail(readings))
	}

	return img
}

// RGBA expands an RGB565 color for drawing.
func RGBA(c uint16) color.RGBA {
	return color.RGBA{
		R: uint8((c>>11)&0x1F) << 3,
		G: uint8((c>>5)&0x3F) << 2,
		B: uint8(c&0x1F) << 3,
		A: 0xFF,
	}
}

// ToRGB565 converts an image to row-major RGB565 pixels.
func ToRGB565(img *image.RGBA) []uint16 {
	b := img.Bounds()
	out := make([]uint16, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			out = append(out, msu.FromRGB888(c.R, c.G, c.B))
		}
	}
	return out
}
