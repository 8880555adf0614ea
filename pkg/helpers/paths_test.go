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

package helpers

import (
	"strings"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
)

func TestPaths(t *testing.T) {
	t.Parallel()

	assert.True(t, strings.HasPrefix(ConfigDir(), xdg.ConfigHome))
	assert.True(t, strings.HasSuffix(ConfigDir(), AppName))
	assert.True(t, strings.HasPrefix(DataDir(), xdg.DataHome))
	assert.True(t, strings.HasPrefix(LogDir(), DataDir()))
	assert.True(t, strings.HasSuffix(LogDir(), LogsDir))
}
