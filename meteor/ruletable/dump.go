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
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
)

// DumpTable renders the current peer slots as a table, for -dump
// debug output. Peers are listed in ascending id order.
func (t *Table) DumpTable(w io.Writer) {
	snap := t.Snapshot()

	ids := make([]int32, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"peer", "handle", "bandwidth (bit/s)", "delay (us)", "loss (%)"})
	for _, id := range ids {
		tr := snap[id]
		table.Append([]string{
			fmt.Sprintf("%d", id),
			fmt.Sprintf("1:%d", PeerHandle(id)),
			fmt.Sprintf("%d", tr.BandwidthBitsPerSec),
			fmt.Sprintf("%d", tr.DelayMicros),
			fmt.Sprintf("%.2f", tr.LossPercent),
		})
	}
	table.Render()
}

// PeerHandle mirrors tcprog.PeerHandle's HTB minor / netem major
// derivation (handle = 10 + peer_id), duplicated here to keep dump.go
// free of a tcprog import.
func PeerHandle(peerID int32) int32 {
	return peerID + 10
}
