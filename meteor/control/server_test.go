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

package control

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/meteor/meteor/ruletable"
)

type recordedCall struct {
	op                     string
	peerID                 int32
	src                    ruletable.Endpoint
	bandwidth, delay, loss float64
}

type fakeApplier struct {
	calls []recordedCall
}

func (f *fakeApplier) Add(peerID int32, useIPv4 bool, src, dst ruletable.Endpoint) error {
	f.calls = append(f.calls, recordedCall{op: "add", peerID: peerID, src: src})
	return nil
}

func (f *fakeApplier) Change(peerID int32, bandwidth, delayMicros, lossPercent float64) error {
	f.calls = append(f.calls, recordedCall{"change", peerID, ruletable.Endpoint{}, bandwidth, delayMicros, lossPercent})
	return nil
}

func (f *fakeApplier) Remove(peerID int32) error {
	f.calls = append(f.calls, recordedCall{op: "remove", peerID: peerID})
	return nil
}

func TestApplyAddAndUpdate(t *testing.T) {
	fa := &fakeApplier{}
	s := NewServer("127.0.0.1:0", fa, true)

	req, err := DecodeRequest([]byte(sampleRequest))
	require.NoError(t, err)

	s.apply(req)

	// add "1" (add+change), add "2" (add+change), update "1" (change), delete "1" (remove)
	require.Len(t, fa.calls, 6)

	var addedPeer1 bool
	for _, c := range fa.calls {
		if c.op == "add" && c.peerID == 1 {
			addedPeer1 = true
			require.Equal(t, []byte(net.ParseIP("192.168.0.1").To4()), []byte(c.src.IP))
		}
	}
	require.True(t, addedPeer1)
}

func TestApplyDelete(t *testing.T) {
	fa := &fakeApplier{}
	s := NewServer("127.0.0.1:0", fa, true)

	req, err := DecodeRequest([]byte(`{"delete": ["3", "4"]}`))
	require.NoError(t, err)

	s.apply(req)

	require.Len(t, fa.calls, 2)
	require.Equal(t, "remove", fa.calls[0].op)
	require.Equal(t, int32(3), fa.calls[0].peerID)
	require.Equal(t, int32(4), fa.calls[1].peerID)
}

func TestApplyConvertsUnits(t *testing.T) {
	fa := &fakeApplier{}
	s := NewServer("127.0.0.1:0", fa, true)

	req, err := DecodeRequest([]byte(`{"add": {"5": {"delay": "2", "bandwidth": "1000", "lossrate": "0.5"}}}`))
	require.NoError(t, err)

	s.apply(req)

	require.Len(t, fa.calls, 2)
	require.Equal(t, "add", fa.calls[0].op)
	require.Equal(t, "change", fa.calls[1].op)
	require.Equal(t, int32(5), fa.calls[1].peerID)
	require.InDelta(t, 1000, fa.calls[1].bandwidth, 0.001)
	require.InDelta(t, 2000, fa.calls[1].delay, 0.001) // ms -> us
	require.InDelta(t, 50, fa.calls[1].loss, 0.001)     // fraction -> percent
}
