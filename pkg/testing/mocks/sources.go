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

package mocks

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/zaparoo-msu/pkg/metrics"
	"github.com/stretchr/testify/mock"
)

// MockFrameSource is a testify mock for the daemon's frame source.
type MockFrameSource struct {
	mock.Mock
}

func (m *MockFrameSource) Frame(ctx context.Context) ([]uint16, error) {
	args := m.Called(ctx)
	if err := args.Error(1); err != nil {
		return nil, fmt.Errorf("mock operation failed: %w", err)
	}
	if pixels, ok := args.Get(0).([]uint16); ok {
		return pixels, nil
	}
	return nil, nil
}

// MockReadingSource is a testify mock for the renderer's reading source.
type MockReadingSource struct {
	mock.Mock
}

func (m *MockReadingSource) Collect(ctx context.Context) (metrics.Readings, error) {
	args := m.Called(ctx)
	readings, _ := args.Get(0).(metrics.Readings)
	if err := args.Error(1); err != nil {
		return readings, fmt.Errorf("mock operation failed: %w", err)
	}
	return readings, nil
}
