/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ruletable

import (
	"testing"

	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"
)

func TestAddIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	prog := NewMockProgrammer(ctrl)
	tbl := New(prog)

	prog.EXPECT().AddRule(int32(3), true, Endpoint{}, Endpoint{}).Return(nil).Times(1)

	require.NoError(t, tbl.Add(3, true, Endpoint{}, Endpoint{}))
	require.NoError(t, tbl.Add(3, true, Endpoint{}, Endpoint{})) // no second AddRule call expected
	require.True(t, tbl.Present(3))
}

func TestAddRejectsOutOfRangePeer(t *testing.T) {
	ctrl := gomock.NewController(t)
	prog := NewMockProgrammer(ctrl)
	tbl := New(prog)

	require.Error(t, tbl.Add(MaxPeerID, true, Endpoint{}, Endpoint{}))
	require.Error(t, tbl.Add(-1, true, Endpoint{}, Endpoint{}))
}

func TestChangeSkipsRedundantTriple(t *testing.T) {
	ctrl := gomock.NewController(t)
	prog := NewMockProgrammer(ctrl)
	tbl := New(prog)

	prog.EXPECT().AddRule(int32(1), true, Endpoint{}, Endpoint{}).Return(nil)
	require.NoError(t, tbl.Add(1, true, Endpoint{}, Endpoint{}))

	prog.EXPECT().ConfigureRule(int32(1), uint64(5_000_000), uint32(1000), uint32(0), 2.0).Return(nil).Times(1)

	require.NoError(t, tbl.Change(1, 5_000_000, 1000, 2.0))
	require.NoError(t, tbl.Change(1, 5_000_000, 1000, 2.0)) // identical triple, no second ConfigureRule call
}

func TestChangeMapsUndefinedBandwidth(t *testing.T) {
	ctrl := gomock.NewController(t)
	prog := NewMockProgrammer(ctrl)
	tbl := New(prog)

	prog.EXPECT().AddRule(int32(2), true, Endpoint{}, Endpoint{}).Return(nil)
	require.NoError(t, tbl.Add(2, true, Endpoint{}, Endpoint{}))

	prog.EXPECT().ConfigureRule(int32(2), uint64(DefaultBandwidthBitsPerSec), uint32(0), uint32(0), 0.0).Return(nil)
	require.NoError(t, tbl.Change(2, UndefinedBandwidth, -5, -10))
}

func TestChangeClampsLossAbove100(t *testing.T) {
	ctrl := gomock.NewController(t)
	prog := NewMockProgrammer(ctrl)
	tbl := New(prog)

	prog.EXPECT().AddRule(int32(4), true, Endpoint{}, Endpoint{}).Return(nil)
	require.NoError(t, tbl.Add(4, true, Endpoint{}, Endpoint{}))

	prog.EXPECT().ConfigureRule(int32(4), uint64(1000), uint32(10), uint32(0), 100.0).Return(nil)
	require.NoError(t, tbl.Change(4, 1000, 10, 250))
}

func TestChangeOnAbsentPeerFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	prog := NewMockProgrammer(ctrl)
	tbl := New(prog)

	require.Error(t, tbl.Change(9, 1000, 0, 0))
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	prog := NewMockProgrammer(ctrl)
	tbl := New(prog)

	prog.EXPECT().AddRule(int32(7), true, Endpoint{}, Endpoint{}).Return(nil)
	require.NoError(t, tbl.Add(7, true, Endpoint{}, Endpoint{}))

	prog.EXPECT().DeleteRule(int32(7)).Return(nil).Times(1)
	require.NoError(t, tbl.Remove(7))
	require.NoError(t, tbl.Remove(7)) // already absent, no second DeleteRule call
	require.False(t, tbl.Present(7))
}

func TestSnapshotReflectsAppliedTriple(t *testing.T) {
	ctrl := gomock.NewController(t)
	prog := NewMockProgrammer(ctrl)
	tbl := New(prog)

	prog.EXPECT().AddRule(int32(1), true, Endpoint{}, Endpoint{}).Return(nil)
	require.NoError(t, tbl.Add(1, true, Endpoint{}, Endpoint{}))

	prog.EXPECT().ConfigureRule(int32(1), uint64(2000), uint32(500), uint32(0), 3.5).Return(nil)
	require.NoError(t, tbl.Change(1, 2000, 500, 3.5))

	snap := tbl.Snapshot()
	require.Equal(t, Triple{BandwidthBitsPerSec: 2000, DelayMicros: 500, LossPercent: 3.5}, snap[1])
}
