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

package player

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/meteor/meteor/deadline"
	"github.com/facebook/meteor/meteor/scenario"
	"github.com/facebook/meteor/meteor/topology"
)

type change struct {
	peerID                 int32
	bandwidth, delay, loss float64
}

type fakeTable struct {
	changes []change
}

func (f *fakeTable) Change(peerID int32, bandwidth, delayMicros, lossPercent float64) error {
	f.changes = append(f.changes, change{peerID, bandwidth, delayMicros, lossPercent})
	return nil
}

type seekBuf struct{ *bytes.Reader }

func newSeekBuf(b []byte) *seekBuf { return &seekBuf{bytes.NewReader(b)} }

func buildScenario(t *testing.T) []byte {
	var buf bytes.Buffer
	w := scenario.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&scenario.Header{
		Signature:       [4]byte{'Q', 'O', 'M', 'T'},
		Major:           1,
		InterfaceCount:  2,
		TimeRecordCount: 1,
	}))
	require.NoError(t, w.WriteTimeRecord(&scenario.TimeRecord{Time: 0, RecordCount: 1}))
	require.NoError(t, w.WriteRecords([]scenario.LinkRecord{
		{FromID: 1, ToID: 0, Bandwidth: 2_000_000, LossRate: 0.1, Delay: 0.05},
	}))
	return buf.Bytes()
}

func testTopology(t *testing.T) *topology.Topology {
	topo, err := topology.Parse([]byte(`{
		"node0": {"id": "0"},
		"node1": {"id": "1"}
	}`))
	require.NoError(t, err)
	return topo
}

func TestRunAppliesFirstTickImmediately(t *testing.T) {
	raw := buildScenario(t)
	reader := scenario.NewReader(newSeekBuf(raw))
	topo := testTopology(t)
	tbl := &fakeTable{}
	sched := deadline.New(nil)

	p := New(reader, topo, tbl, sched, 0)
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, tbl.changes, 1)
	require.Equal(t, int32(1), tbl.changes[0].peerID)
	require.InDelta(t, 2_000_000, tbl.changes[0].bandwidth, 0.001)
	require.InDelta(t, 10.0, tbl.changes[0].loss, 0.001)
}

func TestRunRejectsInterfaceCountMismatch(t *testing.T) {
	raw := buildScenario(t)
	reader := scenario.NewReader(newSeekBuf(raw))

	topo, err := topology.Parse([]byte(`{"node0": {"id": "0"}}`))
	require.NoError(t, err)

	tbl := &fakeTable{}
	sched := deadline.New(nil)

	p := New(reader, topo, tbl, sched, 0)
	require.Error(t, p.Run(context.Background()))
}

func TestParseConnections(t *testing.T) {
	conns, err := ParseConnections(bytes.NewBufferString("0 1\n1 2\n"))
	require.NoError(t, err)
	require.Equal(t, int32(0), conns[[2]int32{0, 1}])
	require.Equal(t, int32(1), conns[[2]int32{1, 2}])
}

func TestBridgeModeSelectsBySlotMapping(t *testing.T) {
	raw := buildScenario(t)
	reader := scenario.NewReader(newSeekBuf(raw))
	topo := testTopology(t)
	tbl := &fakeTable{}
	sched := deadline.New(nil)

	p := New(reader, topo, tbl, sched, 0, WithBridgeConnections(map[[2]int32]int32{{1, 0}: 7}))
	require.NoError(t, p.Run(context.Background()))

	require.Len(t, tbl.changes, 1)
	require.Equal(t, int32(7), tbl.changes[0].peerID)
}
